package alloc

import (
	"sync/atomic"

	"github.com/joshuapare/ralloc/internal/format"
)

// stack is a Treiber stack of descriptors threaded through one link field of
// each descriptor. The top word pairs the head reference with a generation
// that changes on every successful push and pop, so a descriptor that is
// popped and pushed back between a reader's load and its CAS fails the CAS.
//
// push and pop are lock-free but not wait-free.
type stack struct {
	a    *Allocator
	top  *uint64 // in the header page
	link int     // descriptor field offset: DescNextFreeOffset or DescNextPartialOffset
}

func (s *stack) linkOff(d int) int { return s.a.descOff(d) + s.link }

func (s *stack) load() format.Top { return format.Top(atomic.LoadUint64(s.top)) }

func (s *stack) cas(old, v format.Top) bool {
	return atomic.CompareAndSwapUint64(s.top, uint64(old), uint64(v))
}

// push makes d the new top. The caller must own d.
func (s *stack) push(d int) {
	for {
		old := s.load()
		format.StoreU64(s.a.data, s.linkOff(d), uint64(old.Ref()))
		if s.cas(old, format.MakeTop(uint32(d)+1, old.Gen()+1)) {
			s.a.markDescriptor(d)
			return
		}
	}
}

// pop removes and returns the top descriptor, or false when empty.
func (s *stack) pop() (int, bool) {
	for {
		old := s.load()
		ref := old.Ref()
		if ref == 0 {
			return 0, false
		}
		link := uint32(format.LoadU64(s.a.data, s.linkOff(int(ref)-1)))
		if s.cas(old, format.MakeTop(link, old.Gen()+1)) {
			return int(ref) - 1, true
		}
	}
}

// reset empties the stack. Recovery only.
func (s *stack) reset() {
	old := s.load()
	atomic.StoreUint64(s.top, uint64(format.MakeTop(0, old.Gen()+1)))
}

// walk visits descriptors from the top down until fn returns false. It is
// only meaningful while the heap is quiescent; a cycle is cut after Count
// steps.
func (s *stack) walk(fn func(d int) bool) {
	ref := s.load().Ref()
	for seen := 0; ref != 0 && seen <= s.a.layout.Count; seen++ {
		d := int(ref) - 1
		if d >= s.a.layout.Count || !fn(d) {
			return
		}
		ref = uint32(format.LoadU64(s.a.data, s.linkOff(d)))
	}
}
