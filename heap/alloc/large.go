package alloc

import (
	"fmt"

	"github.com/joshuapare/ralloc/internal/format"
)

// Class 0 allocations own whole superblocks. A request up to one superblock
// takes any free superblock; a bigger one takes a contiguous run from the
// frontier. The head descriptor records the run length in spans; every
// continuation has spans 0 and points back at the head.

func (a *Allocator) mallocLarge(size int) (uint64, error) {
	if size > a.layout.Size {
		return 0, fmt.Errorf("%w: %d bytes exceeds region of %d", ErrOutOfMemory, size, a.layout.Size)
	}
	n := (size + format.SuperBlockSize - 1) / format.SuperBlockSize

	var d int
	var ok bool
	if n == 1 {
		d, ok = a.takeSuperBlock()
	} else {
		d, ok = a.frontier(n)
	}
	if !ok {
		a.log.Debug("alloc: out of memory", "class", 0, "superblocks", n)
		return 0, fmt.Errorf("%w: %d bytes (%d superblocks)", ErrOutOfMemory, size, n)
	}

	// Each anchor goes Uninit before its geometry changes, so a crash part
	// way leaves descriptors that recover as uncarved or orphaned.
	for i := 1; i < n; i++ {
		c := d + i
		tag := a.loadAnchor(c).Tag()
		a.storeAnchor(c, format.MakeAnchor(format.NoBlock, 0, format.StateUninit, tag+1))
		a.storeGeometry(c, geometry{
			blockSize: format.SuperBlockSize,
			maxCount:  1,
			head:      uint32(d) + 1,
		})
		a.storeAnchor(c, format.MakeAnchor(format.NoBlock, 0, format.StateFull, tag+2))
		a.markDescriptor(c)
	}
	tag := a.loadAnchor(d).Tag()
	a.storeAnchor(d, format.MakeAnchor(format.NoBlock, 0, format.StateUninit, tag+1))
	a.storeGeometry(d, geometry{
		blockSize: format.SuperBlockSize,
		maxCount:  1,
		spans:     uint32(n),
	})
	a.storeAnchor(d, format.MakeAnchor(format.NoBlock, 0, format.StateFull, tag+2))
	a.markDescriptor(d)

	off := a.layout.SuperBlock(d)
	a.dt.Add(off, size)
	return uint64(off), nil
}

func (a *Allocator) freeLarge(d int, off uint64) {
	if off != uint64(a.layout.SuperBlock(d)) {
		panic(fmt.Sprintf("%s: 0x%X", panicMisaligned, off))
	}
	old := a.loadAnchor(d)
	if old.State() != format.StateFull {
		panic(fmt.Sprintf("%s: 0x%X", panicDoubleFree, off))
	}
	if !a.casAnchor(d, old, old.Next(format.NoBlock, 1, 1)) {
		panic(fmt.Sprintf("%s: 0x%X", panicDoubleFree, off))
	}
	spans := int(a.loadGeometry(d).spans)
	for i := 1; i < spans; i++ {
		a.parkFree(d + i)
	}
	a.parkFree(d)
}
