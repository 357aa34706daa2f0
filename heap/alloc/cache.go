package alloc

import (
	"sync/atomic"

	"github.com/joshuapare/ralloc/internal/format"
)

// slot holds the active descriptor (index + 1, 0 = none) of one size class.
// Padded to a cache line so neighbouring classes do not share one.
type slot struct {
	ref atomic.Uint32
	_   [format.CacheLineSize - 4]byte
}

// slots is a set of active descriptors, one per size class. A descriptor in a
// slot is owned by the slot: it is on no list, and only the goroutine that
// took it out may pop blocks from it.
type slots struct {
	s []slot
}

func newSlots(n int) *slots {
	return &slots{s: make([]slot, n)}
}

// take removes the active descriptor for sc.
func (s *slots) take(sc int) (int, bool) {
	ref := s.s[sc].ref.Swap(0)
	if ref == 0 {
		return 0, false
	}
	return int(ref) - 1, true
}

// put installs d if the slot is empty.
func (s *slots) put(sc, d int) bool {
	return s.s[sc].ref.CompareAndSwap(0, uint32(d)+1)
}

// Cache is a goroutine-affine set of active descriptors. Allocations through
// a Cache do not contend with other goroutines on the shared slots.
//
// A Cache must be used by one goroutine at a time.
type Cache struct {
	a     *Allocator
	slots *slots
	next  *Cache // registry link, immutable once published
	idle  atomic.Bool
}

// NewCache returns a Cache registered with the allocator, reusing one that
// was closed if possible. Registration is lock-free.
func (a *Allocator) NewCache() *Cache {
	for c := a.caches.Load(); c != nil; c = c.next {
		if c.idle.CompareAndSwap(true, false) {
			return c
		}
	}
	c := &Cache{a: a, slots: newSlots(len(a.partial))}
	for {
		head := a.caches.Load()
		c.next = head
		if a.caches.CompareAndSwap(head, c) {
			return c
		}
	}
}

// Malloc allocates size bytes from the cache's active descriptors.
func (c *Cache) Malloc(size int) (uint64, error) {
	return c.a.malloc(c.slots, size)
}

// Free returns a block. Blocks may be freed through any Cache or the
// allocator itself.
func (c *Cache) Free(off uint64) {
	c.a.Free(off)
}

// Release hands every active descriptor back to the shared lists. The cache
// stays usable.
func (c *Cache) Release() {
	c.a.releaseSlots(c.slots)
}

// Close releases the cache's descriptors and makes it available for reuse by
// NewCache. The Cache must not be used afterwards.
func (c *Cache) Close() {
	c.Release()
	c.idle.Store(true)
}

func (a *Allocator) releaseSlots(s *slots) {
	for sc := 1; sc < len(s.s); sc++ {
		if d, ok := s.take(sc); ok {
			a.release(sc, d)
		}
	}
}

// ReleaseAll returns the descriptors held by the shared slots and by every
// registered Cache to the lists. Callers quiesce allocation traffic first.
func (a *Allocator) ReleaseAll() {
	a.releaseSlots(a.shared)
	for c := a.caches.Load(); c != nil; c = c.next {
		a.releaseSlots(c.slots)
	}
}
