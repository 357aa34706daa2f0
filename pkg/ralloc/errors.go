package ralloc

import (
	"errors"
	"fmt"

	"github.com/joshuapare/ralloc/heap"
	"github.com/joshuapare/ralloc/heap/alloc"
	"github.com/joshuapare/ralloc/internal/format"
	"github.com/joshuapare/ralloc/internal/mmfile"
)

var (
	// ErrOutOfMemory indicates Malloc could not find or carve a superblock.
	ErrOutOfMemory = errors.New("ralloc: out of memory")

	// ErrInvalidRoot indicates a root index out of range, an unset root, or a
	// pointer outside the heap.
	ErrInvalidRoot = errors.New("ralloc: invalid root")

	// ErrCorruptHeap indicates metadata that cannot be reconciled. Nothing is
	// repaired when it is returned.
	ErrCorruptHeap = errors.New("ralloc: corrupt heap")

	// ErrIO indicates the backing file could not be created, opened, mapped or
	// flushed. The OS error is wrapped alongside it.
	ErrIO = errors.New("ralloc: i/o error")

	// ErrClosed indicates use of a heap that is not initialized or is closed.
	ErrClosed = errors.New("ralloc: heap closed")

	// ErrInvalidSize indicates a negative allocation size, or a region size or
	// size-class configuration that cannot be laid out.
	ErrInvalidSize = errors.New("ralloc: invalid size")

	// ErrInitialized indicates Init on a heap that is already open.
	ErrInitialized = errors.New("ralloc: heap already initialized")
)

// classify maps lower-layer errors onto the package sentinels, keeping the
// original in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch {
	case errors.Is(err, alloc.ErrOutOfMemory):
		sentinel = ErrOutOfMemory
	case errors.Is(err, alloc.ErrBadSize), errors.Is(err, alloc.ErrBadConfig),
		errors.Is(err, format.ErrBadSize), errors.Is(err, format.ErrBadClassTable):
		sentinel = ErrInvalidSize
	case errors.Is(err, heap.ErrCorrupt), errors.Is(err, mmfile.ErrEmpty):
		sentinel = ErrCorruptHeap
	case errors.Is(err, heap.ErrRootRange):
		sentinel = ErrInvalidRoot
	default:
		sentinel = ErrIO
	}
	return fmt.Errorf("%w: %s: %w", sentinel, op, err)
}
