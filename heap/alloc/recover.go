package alloc

import (
	"fmt"

	"github.com/joshuapare/ralloc/heap"
	"github.com/joshuapare/ralloc/internal/format"
)

// RecoveryReport summarizes one reconciliation pass.
type RecoveryReport struct {
	Scanned  int // descriptors below the frontier
	Free     int // superblocks on the free list afterwards
	Partial  int // descriptors on partial lists afterwards
	Full     int // full standard descriptors (live blocks only)
	Large    int // live large allocations
	Uncarved int // interrupted carves returned to the free list
	Leaked   []LeakedDescriptor
}

// LeakedDescriptor records a descriptor that failed validation. Its free
// blocks are abandoned; live blocks in it stay valid and may still be freed.
type LeakedDescriptor struct {
	Index  int
	Reason string
}

// Repaired reports whether any descriptor was rewritten.
func (r RecoveryReport) Repaired() bool { return len(r.Leaked) > 0 }

// Recover rebuilds the free and partial lists from the persisted anchors.
//
// It runs single-threaded: the caller must have stopped all allocation
// traffic. Descriptors held by slots and caches are dropped first since their
// anchors already describe them. Each descriptor below the frontier is then
// validated (anchor fields, state against count, and a free chain of exactly
// count distinct in-range blocks ending in the terminator) and placed on the
// list its anchor calls for. A descriptor that fails is rewritten as Full with
// an empty chain so its free blocks are never handed out again.
//
// Recover returns heap.ErrCorrupt without touching anything when the global
// frontier is inconsistent.
func (a *Allocator) Recover() (RecoveryReport, error) {
	used := a.region.Used()
	if used > uint64(a.layout.Size) || used%format.SuperBlockSize != 0 {
		return RecoveryReport{}, fmt.Errorf("%w: used %d of %d", heap.ErrCorrupt, used, a.layout.Size)
	}
	count := int(used / format.SuperBlockSize)

	a.dropSlots()
	a.free.reset()
	for sc := 1; sc < len(a.partial); sc++ {
		a.partial[sc].reset()
	}

	rep := RecoveryReport{Scanned: count}
	handled := make([]bool, count)

	// Pass 1: large runs, validated as a unit.
	for d := range count {
		if handled[d] {
			continue
		}
		an := a.loadAnchor(d)
		g := a.loadGeometry(d)
		if an.State() == format.StateUninit || g.sizeClass != 0 || g.spans == 0 {
			continue
		}
		handled[d] = true
		if reason, ok := a.validLargeHead(d, g, an, count); !ok {
			a.quarantine(d, an)
			rep.Leaked = append(rep.Leaked, LeakedDescriptor{Index: d, Reason: reason})
			continue
		}
		if an.State() == format.StateFull {
			for i := 1; i < int(g.spans); i++ {
				handled[d+i] = true
			}
			rep.Large++
			continue
		}
		// Freed run, possibly interrupted while its continuations were being
		// parked. Park the ones that still point back.
		for i := 1; i < int(g.spans) && d+i < count; i++ {
			c := a.loadGeometry(d + i)
			if c.sizeClass == 0 && c.spans == 0 && c.head == uint32(d)+1 {
				handled[d+i] = true
				a.parkFree(d + i)
				rep.Free++
			}
		}
		a.parkFree(d)
		rep.Free++
	}

	// Pass 2: everything else.
	for d := range count {
		if handled[d] {
			continue
		}
		an := a.loadAnchor(d)
		g := a.loadGeometry(d)
		switch {
		case an.State() == format.StateUninit:
			a.parkFree(d)
			rep.Uncarved++
			rep.Free++

		case g.sizeClass == 0 && g.spans == 0:
			// Continuation of no valid run. It is unreachable unless its
			// head may still be live.
			if a.headMayBeLive(g.head, count) {
				a.quarantine(d, an)
				rep.Leaked = append(rep.Leaked, LeakedDescriptor{Index: d, Reason: "orphan continuation of a live head"})
				continue
			}
			a.parkFree(d)
			rep.Free++

		default:
			reason, ok := a.validSmall(d, g, an)
			if !ok {
				a.quarantine(d, an)
				rep.Leaked = append(rep.Leaked, LeakedDescriptor{Index: d, Reason: reason})
				continue
			}
			switch an.State() {
			case format.StateEmpty:
				a.retire(d)
				rep.Free++
			case format.StatePartial:
				a.partial[g.sizeClass].push(d)
				rep.Partial++
			default:
				rep.Full++
			}
		}
	}

	if count > 0 {
		a.dt.Add(a.layout.DescTableOff, count*format.DescriptorSize)
	}
	a.dt.Add(0, format.HeaderSize)
	return rep, nil
}

func (a *Allocator) dropSlots() {
	for sc := 1; sc < len(a.shared.s); sc++ {
		a.shared.take(sc)
	}
	for c := a.caches.Load(); c != nil; c = c.next {
		for sc := 1; sc < len(c.slots.s); sc++ {
			c.slots.take(sc)
		}
	}
}

func (a *Allocator) validLargeHead(d int, g geometry, an format.Anchor, count int) (string, bool) {
	switch {
	case g.maxCount != 1 || g.blockSize != format.SuperBlockSize || g.head != 0:
		return "large head geometry", false
	case !an.Consistent(1):
		return "large head anchor " + an.String(), false
	case an.State() == format.StateEmpty:
		return "", true
	case d+int(g.spans) > count:
		return fmt.Sprintf("large run of %d past the frontier", g.spans), false
	}
	for i := 1; i < int(g.spans); i++ {
		c := a.loadGeometry(d + i)
		if c.sizeClass != 0 || c.spans != 0 || c.head != uint32(d)+1 {
			return fmt.Sprintf("continuation %d does not point back", d+i), false
		}
	}
	return "", true
}

func (a *Allocator) headMayBeLive(ref uint32, count int) bool {
	if ref == 0 || int(ref) > count {
		return false
	}
	h := int(ref) - 1
	st := a.loadAnchor(h).State()
	if st == format.StateUninit {
		return false
	}
	return !(a.loadGeometry(h).sizeClass == 0 && st == format.StateEmpty)
}

func (a *Allocator) validSmall(d int, g geometry, an format.Anchor) (string, bool) {
	sc := int(g.sizeClass)
	switch {
	case sc >= len(a.partial):
		return fmt.Sprintf("size class %d out of range", sc), false
	case g.blockSize != a.classes.blockSize(sc) || g.maxCount != a.classes.maxCount(sc):
		return fmt.Sprintf("geometry %d/%d does not match class %d", g.blockSize, g.maxCount, sc), false
	case g.spans != 1 || g.head != 0:
		return "span fields on a small superblock", false
	case !an.Consistent(g.maxCount):
		return "inconsistent anchor " + an.String(), false
	}
	return a.validChain(d, g, an)
}

// validChain walks exactly Count links and expects the terminator after them.
func (a *Allocator) validChain(d int, g geometry, an format.Anchor) (string, bool) {
	seen := make([]uint64, (g.maxCount+63)/64)
	idx := uint64(an.Avail())
	for i := uint32(0); i < an.Count(); i++ {
		if idx >= uint64(g.maxCount) {
			return fmt.Sprintf("chain link %d out of range at step %d", idx, i), false
		}
		if seen[idx/64]&(1<<(idx%64)) != 0 {
			return fmt.Sprintf("chain revisits block %d", idx), false
		}
		seen[idx/64] |= 1 << (idx % 64)
		idx = format.LoadU64(a.data, a.chainOff(d, g.blockSize, uint32(idx)))
	}
	if idx != format.NoBlock {
		return fmt.Sprintf("chain continues past count %d", an.Count()), false
	}
	return "", true
}

// quarantine rewrites d as Full with an empty chain, off every list. A
// descriptor whose geometry is untrustworthy becomes a single class 0
// superblock.
func (a *Allocator) quarantine(d int, an format.Anchor) {
	g := a.loadGeometry(d)
	sc := int(g.sizeClass)
	if sc == 0 || sc >= len(a.partial) ||
		g.blockSize != a.classes.blockSize(sc) || g.maxCount != a.classes.maxCount(sc) {
		a.storeGeometry(d, geometry{blockSize: format.SuperBlockSize, maxCount: 1, spans: 1})
	}
	a.storeAnchor(d, format.MakeAnchor(format.NoBlock, 0, format.StateFull, an.Tag()+1))
	a.markDescriptor(d)
}
