package irraw

import (
	"encoding/binary"
	"errors"

	"irlearn-go/x/kvstore"
)

// Store is the key-value persistence a Signal is saved to.
// Get returns kvstore.ErrNotFound for a missing key.
type Store interface {
	Put(key string, p []byte) (int, error)
	Get(key string) ([]byte, error)
}

// Encode lays s out as little-endian 16-bit words.
func Encode(s Signal) []byte {
	out := make([]byte, 2*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

// Decode is the inverse of Encode. A trailing odd byte is ignored.
func Decode(p []byte) Signal {
	out := make(Signal, len(p)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(p[2*i:])
	}
	return out
}

// Save writes s under key. Anything short of a full write is ErrShortWrite.
func Save(st Store, key string, s Signal) error {
	n, err := st.Put(key, Encode(s))
	if err != nil {
		return errors.Join(ErrShortWrite, err)
	}
	if n != 2*len(s) {
		return ErrShortWrite
	}
	return nil
}

// Load reads the signal stored under key. A missing key or an empty blob is
// ErrAbsent. Samples are returned as stored.
func Load(st Store, key string) (Signal, error) {
	p, err := st.Get(key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrAbsent
	}
	if err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, ErrAbsent
	}
	return Decode(p), nil
}
