package alloc

import (
	"github.com/joshuapare/ralloc/internal/format"
)

// ClassStats describes the superblocks of one standard size class.
type ClassStats struct {
	Class       int
	BlockSize   int
	SuperBlocks int // carved superblocks currently of this class
	LiveBlocks  int
	FreeBlocks  int
}

// Stats is a snapshot of heap usage. Under concurrent traffic each field is
// individually plausible; the byte identity LiveBytes + FreeBytes + SlackBytes
// == RegionBytes holds exactly only when the heap is quiescent.
type Stats struct {
	RegionBytes       int
	UsedBytes         int // carved from the frontier
	LiveBytes         int // capacity of live blocks and live large runs
	FreeBytes         int // free blocks, free superblocks and the frontier
	SlackBytes        int // tails of superblocks too short for one more block
	FreeSuperBlocks   int // empty superblocks, listed or still held
	LargeAllocations  int
	LargeSuperBlocks  int
	UncarvedInTable   int // below the frontier but never carved (crash residue)
	FrontierRemaining int // superblocks never carved
	Classes           []ClassStats
}

// Stats scans every descriptor below the frontier.
func (a *Allocator) Stats() Stats {
	used := int(a.region.Used())
	count := used / format.SuperBlockSize
	st := Stats{
		RegionBytes:       a.layout.Size,
		UsedBytes:         used,
		FreeBytes:         a.layout.Size - used,
		FrontierRemaining: (a.layout.Size - used) / format.SuperBlockSize,
		Classes:           make([]ClassStats, a.classes.NumClasses()+1),
	}
	for sc := range st.Classes {
		st.Classes[sc].Class = sc
		st.Classes[sc].BlockSize = int(a.classes.blockSizes[sc])
	}

	for d := 0; d < count; d++ {
		an := a.loadAnchor(d)
		g := a.loadGeometry(d)
		switch {
		case an.State() == format.StateUninit:
			st.UncarvedInTable++
			st.FreeBytes += format.SuperBlockSize
		case g.sizeClass == 0 && g.spans == 0:
			// Counted with its head.
		case g.sizeClass == 0:
			if an.State() == format.StateEmpty {
				st.FreeSuperBlocks++
				st.FreeBytes += format.SuperBlockSize
				continue
			}
			st.LargeAllocations++
			st.LargeSuperBlocks += int(g.spans)
			st.LiveBytes += int(g.spans) * format.SuperBlockSize
		default:
			if int(g.sizeClass) >= len(st.Classes) || g.blockSize == 0 {
				continue
			}
			cs := &st.Classes[g.sizeClass]
			free := int(an.Count())
			live := int(g.maxCount) - free
			bs := int(g.blockSize)
			slack := format.SuperBlockSize - int(g.maxCount)*bs
			if an.State() == format.StateEmpty {
				st.FreeSuperBlocks++
				st.FreeBytes += format.SuperBlockSize
				continue
			}
			cs.SuperBlocks++
			cs.LiveBlocks += live
			cs.FreeBlocks += free
			st.LiveBytes += live * bs
			st.FreeBytes += free * bs
			st.SlackBytes += slack
		}
	}
	return st
}

// BlockSizes returns the class table (entry 0 unused).
func (a *Allocator) BlockSizes() []uint32 {
	return a.classes.blockSizes
}
