package heap

import (
	"fmt"

	"github.com/joshuapare/ralloc/internal/format"
)

// Root returns the value stored in root slot i. Zero means unset.
func (r *Region) Root(i int) (uint64, error) {
	if i < 0 || i >= format.RootCount {
		return 0, fmt.Errorf("root %d: %w", i, ErrRootRange)
	}
	return format.LoadU64(r.data, r.layout.Root(i)), nil
}

// SetRoot atomically stores v into root slot i.
func (r *Region) SetRoot(i int, v uint64) error {
	if i < 0 || i >= format.RootCount {
		return fmt.Errorf("root %d: %w", i, ErrRootRange)
	}
	format.StoreU64(r.data, r.layout.Root(i), v)
	return nil
}

// RootOffset returns the file offset of root slot i, for dirty tracking.
func (r *Region) RootOffset(i int) int { return r.layout.Root(i) }
