package ralloc

import (
	"fmt"

	"github.com/joshuapare/ralloc/internal/format"
)

// NumRoots is the number of root slots.
const NumRoots = format.RootCount

// SetRoot atomically stores p in root slot i. SetRoot(NilPtr, i) clears the
// slot. The pointer must lie inside the superblock table.
func (h *Heap) SetRoot(p Ptr, i int) error {
	s, err := h.session()
	if err != nil {
		return err
	}
	if p != NilPtr && !s.r.Layout().Contains(int(min(uint64(p), uint64(s.r.Layout().FileSize)))) {
		return fmt.Errorf("%w: pointer %s outside the heap", ErrInvalidRoot, p)
	}
	if err := s.r.SetRoot(i, uint64(p)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	s.dt.Add(s.r.RootOffset(i), format.RootSize)
	return nil
}

// GetRoot returns the pointer in root slot i. An unset slot is an error.
func (h *Heap) GetRoot(i int) (Ptr, error) {
	s, err := h.session()
	if err != nil {
		return NilPtr, err
	}
	v, err := s.r.Root(i)
	if err != nil {
		return NilPtr, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if v == 0 {
		return NilPtr, fmt.Errorf("%w: root %d is unset", ErrInvalidRoot, i)
	}
	return Ptr(v), nil
}
