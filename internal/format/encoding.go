package format

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// Binary encoding utilities for little-endian integers.
//
// Fields that are written once (header layout, descriptor geometry) go through
// encoding/binary. Fields that are shared between goroutines (anchors, stack
// tops, chain words, roots) are accessed with sync/atomic directly on the
// mapping. Atomic words use host byte order, which matches the file's
// little-endian order on every supported target (amd64, arm64).

// PutU16 writes a uint16 value to the buffer at the specified offset in little-endian format.
func PutU16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:off+2], v)
}

// PutU32 writes a uint32 value to the buffer at the specified offset in little-endian format.
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// PutU64 writes a uint64 value to the buffer at the specified offset in little-endian format.
func PutU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// ReadU16 reads a uint16 value from the buffer at the specified offset in little-endian format.
func ReadU16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

// ReadU32 reads a uint32 value from the buffer at the specified offset in little-endian format.
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// ReadU64 reads a uint64 value from the buffer at the specified offset in little-endian format.
func ReadU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

// Word returns the 8-byte word at off for use with sync/atomic.
// off must be 8-byte aligned; the mapping itself is page aligned.
func Word(b []byte, off int) *uint64 {
	_ = b[off+WordSize-1]
	return (*uint64)(unsafe.Pointer(&b[off]))
}

// Word32 returns the 4-byte word at off for use with sync/atomic.
func Word32(b []byte, off int) *uint32 {
	_ = b[off+3]
	return (*uint32)(unsafe.Pointer(&b[off]))
}

// LoadU64 atomically loads the word at off.
func LoadU64(b []byte, off int) uint64 {
	return atomic.LoadUint64(Word(b, off))
}

// StoreU64 atomically stores v into the word at off.
func StoreU64(b []byte, off int, v uint64) {
	atomic.StoreUint64(Word(b, off), v)
}

// CASU64 performs a compare-and-swap on the word at off.
func CASU64(b []byte, off int, old, v uint64) bool {
	return atomic.CompareAndSwapUint64(Word(b, off), old, v)
}

// LoadU32 atomically loads the 4-byte word at off.
func LoadU32(b []byte, off int) uint32 {
	return atomic.LoadUint32(Word32(b, off))
}

// StoreU32 atomically stores v into the 4-byte word at off.
func StoreU32(b []byte, off int, v uint32) {
	atomic.StoreUint32(Word32(b, off), v)
}
