package alloc

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/joshuapare/ralloc/heap"
	"github.com/joshuapare/ralloc/internal/format"
)

// Allocator is a lock-free superblock allocator over a mapped heap region.
//
// Malloc, Free and Cache operations are safe from any number of goroutines and
// use only atomic loads, stores and CAS. ReleaseAll, Recover and Stats-based
// invariant checks expect the caller to have quiesced all traffic.
type Allocator struct {
	region  *heap.Region
	data    []byte
	layout  format.Layout
	dt      DirtyTracker
	classes *sizeClassTable
	log     *slog.Logger

	free    stack
	partial []stack // indexed by size class; entry 0 unused

	shared *slots
	caches atomic.Pointer[Cache]
}

// New creates an allocator over r, using the class table persisted in r.
// Every page the allocator modifies is reported to dt. A nil logger discards.
func New(r *heap.Region, dt DirtyTracker, log *slog.Logger) (*Allocator, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	bs := r.BlockSizes()
	a := &Allocator{
		region:  r,
		data:    r.Bytes(),
		layout:  r.Layout(),
		dt:      dt,
		classes: newSizeClassTable(bs),
		log:     log,
	}
	a.free = stack{a: a, top: r.FreeListTop(), link: format.DescNextFreeOffset}
	a.partial = make([]stack, len(bs))
	for sc := 1; sc < len(bs); sc++ {
		a.partial[sc] = stack{a: a, top: r.PartialTop(sc), link: format.DescNextPartialOffset}
	}
	a.shared = newSlots(len(bs))

	if err := a.checkTops(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Allocator) checkTops() error {
	if ref := a.free.load().Ref(); int(ref) > a.layout.Count {
		return fmt.Errorf("%w: free list top %d beyond %d descriptors", heap.ErrCorrupt, ref, a.layout.Count)
	}
	for sc := 1; sc < len(a.partial); sc++ {
		if ref := a.partial[sc].load().Ref(); int(ref) > a.layout.Count {
			return fmt.Errorf("%w: partial list %d top %d beyond %d descriptors", heap.ErrCorrupt, sc, ref, a.layout.Count)
		}
	}
	return nil
}

// SizeClass returns the class serving a request of size bytes (0 = oversized).
func (a *Allocator) SizeClass(size int) int {
	return a.classes.sizeClass(max(size, 1))
}

// NumClasses returns the number of standard size classes.
func (a *Allocator) NumClasses() int { return a.classes.NumClasses() }

// Malloc allocates size bytes using the shared slot set and returns the
// block's file offset.
func (a *Allocator) Malloc(size int) (uint64, error) {
	return a.malloc(a.shared, size)
}

func (a *Allocator) malloc(s *slots, size int) (uint64, error) {
	if size < 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	sc := a.classes.sizeClass(max(size, 1))
	if sc == 0 {
		return a.mallocLarge(size)
	}
	off, err := a.mallocSmall(s, sc)
	if err != nil {
		return 0, err
	}
	a.dt.Add(int(off), int(a.classes.blockSize(sc)))
	return off, nil
}

func (a *Allocator) mallocSmall(s *slots, sc int) (uint64, error) {
	for {
		// Step 2: the active descriptor for sc, taken exclusively.
		if d, ok := s.take(sc); ok {
			if off, ok := a.popBlockAndRelease(s, sc, d); ok {
				return off, nil
			}
			continue
		}

		// Step 3: a descriptor from the partial list.
		if d, ok := a.partial[sc].pop(); ok {
			if a.loadAnchor(d).State() == format.StateEmpty {
				// Deferred retirement: emptied while parked on the list.
				a.retire(d)
				continue
			}
			if off, ok := a.popBlockAndRelease(s, sc, d); ok {
				return off, nil
			}
			continue
		}

		// Step 4: a fresh superblock, carved for sc with block 0 reserved.
		d, ok := a.takeSuperBlock()
		if !ok {
			a.log.Debug("alloc: out of memory", "class", sc, "block_size", a.classes.blockSize(sc))
			return 0, fmt.Errorf("%w: class %d (%d bytes)", ErrOutOfMemory, sc, a.classes.blockSize(sc))
		}
		remaining := a.carve(d, sc)
		if remaining > 0 {
			a.putBack(s, sc, d)
		}
		return uint64(a.layout.SuperBlock(d)), nil
	}
}

// popBlockAndRelease pops one block from d, which the caller owns, and hands
// d back to the slot unless it became full. It returns false if d had no free
// block.
func (a *Allocator) popBlockAndRelease(s *slots, sc, d int) (uint64, bool) {
	bs := a.classes.blockSize(sc)
	maxCount := a.classes.maxCount(sc)
	for {
		old := a.loadAnchor(d)
		if old.Count() == 0 {
			// Full: owned by nobody from here on.
			return 0, false
		}
		idx := old.Avail()
		next := a.loadChain(d, bs, idx)
		v := old.Next(next, old.Count()-1, maxCount)
		if a.casAnchor(d, old, v) {
			a.markDescriptor(d)
			if v.Count() > 0 {
				a.putBack(s, sc, d)
			}
			return uint64(a.chainOff(d, bs, idx)), true
		}
	}
}

// putBack installs d as the active descriptor for sc, or parks it on the
// partial list if the slot was refilled meanwhile.
func (a *Allocator) putBack(s *slots, sc, d int) {
	if !s.put(sc, d) {
		a.partial[sc].push(d)
	}
}

// release hands a descriptor that is leaving a holder back to the lists.
func (a *Allocator) release(sc, d int) {
	switch a.loadAnchor(d).State() {
	case format.StateEmpty:
		a.retire(d)
	case format.StateFull:
		// Unreachable for a held descriptor; owned by nobody.
	default:
		a.partial[sc].push(d)
	}
}

// retire moves an Empty descriptor to the superblock free list. Its geometry
// and chain stay intact until it is carved again.
func (a *Allocator) retire(d int) {
	a.free.push(d)
}

// takeSuperBlock pops the free list, or carves from the frontier. When both
// are exhausted it reclaims emptied superblocks that are still parked with a
// size class and tries again.
func (a *Allocator) takeSuperBlock() (int, bool) {
	for {
		if d, ok := a.free.pop(); ok {
			return d, true
		}
		if d, ok := a.frontier(1); ok {
			return d, true
		}
		if a.reclaim() == 0 {
			return 0, false
		}
	}
}

// reclaim retires every Empty descriptor found on the partial lists, in the
// shared slots and in the cache slots, and returns how many it retired.
// Non-empty descriptors go back where they came from.
func (a *Allocator) reclaim() int {
	n := 0
	for sc := 1; sc < len(a.partial); sc++ {
		var keep []int
		for range a.layout.Count {
			d, ok := a.partial[sc].pop()
			if !ok {
				break
			}
			if a.loadAnchor(d).State() == format.StateEmpty {
				a.retire(d)
				n++
				continue
			}
			keep = append(keep, d)
		}
		for i := len(keep) - 1; i >= 0; i-- {
			a.partial[sc].push(keep[i])
		}
	}
	n += a.reclaimSlots(a.shared)
	for c := a.caches.Load(); c != nil; c = c.next {
		n += a.reclaimSlots(c.slots)
	}
	if n > 0 {
		a.log.Debug("alloc: reclaimed empty superblocks", "count", n)
	}
	return n
}

// reclaimSlots retires the Empty descriptors held by s.
func (a *Allocator) reclaimSlots(s *slots) int {
	n := 0
	for sc := 1; sc < len(s.s); sc++ {
		d, ok := s.take(sc)
		if !ok {
			continue
		}
		if a.loadAnchor(d).State() == format.StateEmpty {
			a.retire(d)
			n++
			continue
		}
		a.putBack(s, sc, d)
	}
	return n
}

// frontier advances Used by n superblocks and returns the first index.
func (a *Allocator) frontier(n int) (int, bool) {
	used := a.region.UsedWord()
	want := uint64(n) * format.SuperBlockSize
	for {
		old := atomic.LoadUint64(used)
		if old+want > uint64(a.layout.Size) {
			return 0, false
		}
		if atomic.CompareAndSwapUint64(used, old, old+want) {
			a.dt.Add(format.HdrUsedOffset, format.WordSize)
			return int(old / format.SuperBlockSize), true
		}
	}
}

// carve formats superblock d for class sc, keeps block 0 for the caller and
// publishes the anchor. It returns the number of free blocks left.
func (a *Allocator) carve(d, sc int) uint32 {
	bs := a.classes.blockSize(sc)
	maxCount := a.classes.maxCount(sc)
	tag := a.loadAnchor(d).Tag()

	a.storeAnchor(d, format.MakeAnchor(format.NoBlock, 0, format.StateUninit, tag+1))
	a.storeGeometry(d, geometry{
		sizeClass: uint32(sc),
		blockSize: bs,
		maxCount:  maxCount,
		spans:     1,
	})
	for i := uint32(1); i < maxCount; i++ {
		next := i + 1
		if next == maxCount {
			next = format.NoBlock
		}
		a.storeChain(d, bs, i, next)
	}
	avail := uint32(1)
	if maxCount == 1 {
		avail = format.NoBlock
	}
	a.storeAnchor(d, format.MakeAnchor(avail, maxCount-1, format.StateFor(maxCount-1, maxCount), tag+2))

	a.markDescriptor(d)
	a.dt.Add(a.layout.SuperBlock(d), format.SuperBlockSize)
	a.log.Debug("alloc: carved superblock", "index", d, "class", sc, "block_size", bs, "blocks", maxCount)
	return maxCount - 1
}

// Free returns the block at off to its superblock. Passing anything other than
// a live pointer from Malloc panics or corrupts the heap.
func (a *Allocator) Free(off uint64) {
	d, ok := a.layout.IndexOf(int(off))
	if !ok {
		panic(fmt.Sprintf("%s: 0x%X", panicOutside, off))
	}
	g := a.loadGeometry(d)
	if g.spans == 0 {
		panic(fmt.Sprintf("%s: 0x%X", panicContinuation, off))
	}
	if g.sizeClass == 0 {
		a.freeLarge(d, off)
		return
	}
	rel := int(off) - a.layout.SuperBlock(d)
	if g.blockSize == 0 || rel%int(g.blockSize) != 0 || uint32(rel)/g.blockSize >= g.maxCount {
		panic(fmt.Sprintf("%s: 0x%X", panicMisaligned, off))
	}
	idx := uint32(rel) / g.blockSize
	sc := int(g.sizeClass)

	for {
		old := a.loadAnchor(d)
		switch {
		case old.State() == format.StateUninit:
			panic(fmt.Sprintf("%s: 0x%X", panicUncarved, off))
		case old.Count() >= g.maxCount:
			panic(fmt.Sprintf("%s: 0x%X", panicDoubleFree, off))
		}
		a.storeChain(d, g.blockSize, idx, old.Avail())
		v := old.Next(idx, old.Count()+1, g.maxCount)
		if !a.casAnchor(d, old, v) {
			continue
		}
		a.markDescriptor(d)
		a.dt.Add(int(off), format.WordSize)

		switch {
		case old.State() == format.StateFull && v.State() == format.StateEmpty:
			a.retire(d)
		case old.State() == format.StateFull:
			a.partial[sc].push(d)
		}
		// Partial -> Empty: the holder or the partial list still owns d. It
		// is retired when popped, or by reclaim once superblocks run out.
		return
	}
}

// UsableSize returns the capacity of the block at off, or false if off is not
// the start of a block.
func (a *Allocator) UsableSize(off uint64) (int, bool) {
	d, ok := a.layout.IndexOf(int(off))
	if !ok {
		return 0, false
	}
	g := a.loadGeometry(d)
	rel := int(off) - a.layout.SuperBlock(d)
	switch {
	case g.spans == 0:
		return 0, false
	case g.sizeClass == 0:
		if rel != 0 {
			return 0, false
		}
		return int(g.spans) * format.SuperBlockSize, true
	case g.blockSize == 0 || rel%int(g.blockSize) != 0:
		return 0, false
	default:
		return int(g.blockSize), true
	}
}
