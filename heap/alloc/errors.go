package alloc

import "errors"

var (
	// ErrOutOfMemory indicates no superblock could be found or carved.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrBadSize indicates a negative allocation size.
	ErrBadSize = errors.New("alloc: bad allocation size")

	// ErrBadConfig indicates a size-class configuration that cannot be laid out.
	ErrBadConfig = errors.New("alloc: bad size-class config")
)

// Misuse of Free is a programming error, not a runtime condition, and panics
// with one of these messages.
const (
	panicOutside      = "alloc: free of pointer outside the superblock table"
	panicContinuation = "alloc: free of pointer inside a large allocation"
	panicMisaligned   = "alloc: free of pointer not on a block boundary"
	panicUncarved     = "alloc: free into an uncarved superblock"
	panicDoubleFree   = "alloc: double free"
)
