// Package mmfile provides read-write shared memory mappings of heap files.
//
// A File holds the open descriptor, an exclusive advisory lock and the mapping.
// Writes through Bytes land in the page cache immediately; durability is the
// caller's job (see heap/dirty).
package mmfile

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrLocked indicates another File already holds the heap file's lock.
	ErrLocked = errors.New("mmfile: file is locked by another user")
	// ErrEmpty indicates an existing file with zero length.
	ErrEmpty = errors.New("mmfile: empty file")
	// ErrTooLarge indicates a size that cannot be mapped on this platform.
	ErrTooLarge = errors.New("mmfile: file too large to map")
	// ErrUnsupported indicates a platform without shared mappings.
	ErrUnsupported = errors.New("mmfile: shared mappings not supported on this platform")
	// ErrClosed indicates use of a File after Close.
	ErrClosed = errors.New("mmfile: file closed")
)

// File is a locked, shared, read-write mapping of a whole file.
type File struct {
	f     *os.File
	path  string
	data  []byte
	unmap func() error
}

// Create creates path (which must not exist), sizes it to size zero-filled bytes,
// locks it and maps it.
func Create(path string, size int) (*File, error) {
	if size <= 0 || int64(size) > int64(^uint(0)>>1) {
		return nil, fmt.Errorf("mmfile: create %s size %d: %w", path, size, ErrTooLarge)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if err := f.Truncate(int64(size)); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("mmfile: size %s: %w", path, err)
	}
	m, err := mapOpened(f, path, size)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return m, nil
}

// Open locks and maps an existing file at its current size.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return nil, err
	}
	sz := st.Size()
	if sz == 0 {
		_ = unlockFile(f)
		_ = f.Close()
		return nil, fmt.Errorf("mmfile: %s: %w", path, ErrEmpty)
	}
	if sz > int64(^uint(0)>>1) {
		_ = unlockFile(f)
		_ = f.Close()
		return nil, fmt.Errorf("mmfile: %s (%d bytes): %w", path, sz, ErrTooLarge)
	}
	return mapOpened(f, path, int(sz))
}

func mapOpened(f *os.File, path string, size int) (*File, error) {
	data, unmap, err := mapFile(f, size)
	if err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return nil, fmt.Errorf("mmfile: map %s: %w", path, err)
	}
	return &File{f: f, path: path, data: data, unmap: unmap}, nil
}

// Bytes returns the mapping. It stays valid until Close.
func (m *File) Bytes() []byte { return m.data }

// Path returns the file path.
func (m *File) Path() string { return m.path }

// FD returns the OS descriptor (a HANDLE on Windows), or -1 after Close.
func (m *File) FD() int {
	if m == nil || m.f == nil {
		return -1
	}
	return int(m.f.Fd())
}

// Close unmaps, unlocks and closes the file. It performs no sync. Calling
// Close twice is a no-op.
func (m *File) Close() error {
	if m.f == nil {
		return nil
	}
	var errs []error
	if m.data != nil {
		errs = append(errs, m.unmap())
		m.data = nil
	}
	errs = append(errs, unlockFile(m.f), m.f.Close())
	m.f = nil
	return errors.Join(errs...)
}
