package kvstore

import (
	"io"
	"os"
	"sort"
	"sync"

	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/littlefs"
)

// Geometry Blocks presents for media without a native erase.
const (
	ProgSize  = 16
	BlockSize = 256
)

// Medium is fixed-size random-access storage.
type Medium interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

// Blocks adapts a Medium with no erase operation (EEPROM, file, RAM) to a
// tinyfs.BlockDevice. Erasing writes 0xFF.
type Blocks struct{ Medium }

func (b Blocks) Size() int64           { return b.Medium.Size() / BlockSize * BlockSize }
func (b Blocks) WriteBlockSize() int64 { return ProgSize }
func (b Blocks) EraseBlockSize() int64 { return BlockSize }

func (b Blocks) EraseBlocks(start, n int64) error {
	var ff [BlockSize]byte
	for i := range ff {
		ff[i] = 0xFF
	}
	for i := int64(0); i < n; i++ {
		if _, err := b.WriteAt(ff[:], (start+i)*BlockSize); err != nil {
			return err
		}
	}
	return nil
}

// FS is a Store keeping each key as a file in the root of a littlefs volume.
type FS struct {
	mu    sync.Mutex
	lfs   *littlefs.LFS
	sizes map[string]int
	after io.Closer
}

// Mount mounts the littlefs volume on dev, formatting it when no valid
// volume is found.
func Mount(dev tinyfs.BlockDevice) (*FS, error) {
	lfs := littlefs.New(dev)
	// 256 is a multiple of both program sizes in use (16 here, 256 on
	// rp2040 flash) and divides both erase sizes.
	lfs.Configure(&littlefs.Config{
		CacheSize:     256,
		LookaheadSize: 32,
		BlockCycles:   500,
	})
	if err := lfs.Mount(); err != nil {
		if err := lfs.Format(); err != nil {
			return nil, err
		}
		if err := lfs.Mount(); err != nil {
			return nil, err
		}
	}
	s := &FS{lfs: lfs, sizes: map[string]int{}}
	if err := s.scan(); err != nil {
		_ = lfs.Unmount()
		return nil, err
	}
	return s, nil
}

func (s *FS) scan() error {
	dir, err := s.lfs.Open("/")
	if err != nil {
		return err
	}
	defer dir.Close()
	infos, err := dir.Readdir(0)
	if err != nil {
		return err
	}
	for _, fi := range infos {
		if fi.IsDir() || checkKey(fi.Name()) != nil {
			continue
		}
		s.sizes[fi.Name()] = int(fi.Size())
	}
	return nil
}

func path(key string) string { return "/" + key }

// Put replaces the file for key. littlefs commits the new contents on close.
func (s *FS) Put(key string, p []byte) (int, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.lfs.OpenFile(path(key), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(p)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	s.sizes[key] = n
	return n, nil
}

func (s *FS) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.sizes[key]
	if !ok {
		return nil, ErrNotFound
	}
	f, err := s.lfs.Open(path(key))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p := make([]byte, n)
	if _, err := io.ReadFull(f, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *FS) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sizes[key]; !ok {
		return ErrNotFound
	}
	if err := s.lfs.Remove(path(key)); err != nil {
		return err
	}
	delete(s.sizes, key)
	return nil
}

func (s *FS) Keys() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.sizes))
	for k := range s.sizes {
		out = append(out, k)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Close unmounts the volume and releases the medium when FS owns it.
func (s *FS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.lfs.Unmount()
	if s.after != nil {
		if cerr := s.after.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Buffer is an in-memory Medium.
type Buffer []byte

// NewBuffer returns an erased (0xFF) buffer of size bytes.
func NewBuffer(size int) Buffer {
	b := make(Buffer, size)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

func (b Buffer) Size() int64 { return int64(len(b)) }

func (b Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(b)) {
		return 0, io.ErrShortWrite
	}
	return copy(b[off:], p), nil
}

type fileMedium struct {
	*os.File
	size int64
}

func (f fileMedium) Size() int64 { return f.size }

// OpenFile mounts a littlefs volume kept in a host file of size bytes.
// Close unmounts it and closes the file.
func OpenFile(name string, size int64) (*FS, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err == nil && fi.Size() < size {
		err = f.Truncate(size)
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s, err := Mount(Blocks{fileMedium{File: f, size: size}})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.after = f
	return s, nil
}
