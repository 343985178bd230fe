// Package kvstore holds small named blobs, the way the firmware keeps learned
// IR signals. Mem is volatile; FS keeps one littlefs file per key on any
// tinyfs block device (on-chip flash, an I2C EEPROM, a host file).
package kvstore

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotFound = errors.New("kvstore: not found")
	ErrKey      = errors.New("kvstore: bad key")
)

// MaxKeyLen is the littlefs name limit.
const MaxKeyLen = 255

// Store is the contract the IR device persists through.
type Store interface {
	Put(key string, p []byte) (int, error)
	Get(key string) ([]byte, error)
	Delete(key string) error
	Keys() []string
}

func checkKey(key string) error {
	if key == "" || key == "." || key == ".." || len(key) > MaxKeyLen || strings.ContainsRune(key, '/') {
		return ErrKey
	}
	return nil
}

// Mem is a map-backed Store.
type Mem struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMem() *Mem { return &Mem{m: map[string][]byte{}} }

func (s *Mem) Put(key string, p []byte) (int, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.m[key] = append([]byte(nil), p...)
	s.mu.Unlock()
	return len(p), nil
}

func (s *Mem) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Mem) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return ErrNotFound
	}
	delete(s.m, key)
	return nil
}

func (s *Mem) Keys() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}
