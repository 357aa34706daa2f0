package ralloc

import (
	"github.com/joshuapare/ralloc/heap/alloc"
)

// Malloc allocates a block of at least size bytes. Size 0 allocates the
// smallest block. Malloc fails with ErrOutOfMemory when no superblock can be
// found or carved; it never blocks.
func (h *Heap) Malloc(size int) (Ptr, error) {
	s, err := h.session()
	if err != nil {
		return NilPtr, err
	}
	off, err := s.a.Malloc(size)
	if err != nil {
		return NilPtr, classify("malloc", err)
	}
	return Ptr(off), nil
}

// Free returns a block obtained from Malloc. Freeing anything else, or
// freeing twice, panics or corrupts the heap.
func (h *Heap) Free(p Ptr) {
	s := h.s.Load()
	if s == nil {
		panic("ralloc: free on a closed heap")
	}
	s.a.Free(uint64(p))
}

// Bytes returns the block at p as a slice of its full capacity, or nil if p
// is not the start of a block. The pages are marked modified so Close
// flushes them. The slice is invalid after Free or Close.
func (h *Heap) Bytes(p Ptr) []byte {
	s := h.s.Load()
	if s == nil {
		return nil
	}
	n, ok := s.a.UsableSize(uint64(p))
	if !ok {
		return nil
	}
	s.dt.Add(int(p), n)
	data := s.r.Bytes()
	return data[p : int(p)+n : int(p)+n]
}

// UsableSize returns the capacity of the block at p.
func (h *Heap) UsableSize(p Ptr) (int, bool) {
	s := h.s.Load()
	if s == nil {
		return 0, false
	}
	return s.a.UsableSize(uint64(p))
}

// Cache is a per-goroutine allocation handle. It keeps its own active
// superblock per size class, so goroutines with their own Cache do not
// contend on allocation. A Cache must be used by one goroutine at a time.
type Cache struct {
	h *Heap
	c *alloc.Cache
}

// NewCache returns a Cache bound to the open heap. Closed caches are reused.
func (h *Heap) NewCache() (*Cache, error) {
	s, err := h.session()
	if err != nil {
		return nil, err
	}
	return &Cache{h: h, c: s.a.NewCache()}, nil
}

// Malloc allocates like Heap.Malloc, from the cache's superblocks.
func (c *Cache) Malloc(size int) (Ptr, error) {
	if c.h.s.Load() == nil {
		return NilPtr, ErrClosed
	}
	off, err := c.c.Malloc(size)
	if err != nil {
		return NilPtr, classify("malloc", err)
	}
	return Ptr(off), nil
}

// Free returns a block. Any block may be freed through any Cache.
func (c *Cache) Free(p Ptr) {
	if c.h.s.Load() == nil {
		panic("ralloc: free on a closed heap")
	}
	c.c.Free(uint64(p))
}

// Release hands the cache's partially used superblocks back to the heap.
// The cache stays usable.
func (c *Cache) Release() {
	if c.h.s.Load() != nil {
		c.c.Release()
	}
}

// Close releases the cache and makes it available for reuse.
func (c *Cache) Close() {
	if c.h.s.Load() != nil {
		c.c.Close()
	}
}
