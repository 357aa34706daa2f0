// Package alloc provides lock-free block allocation over a persistent heap
// region.
//
// # Overview
//
// The region is divided into fixed 64KB superblocks, each paired by index with
// a 64-byte descriptor. A superblock is carved for one size class into equal
// blocks, or dedicated (alone or as a contiguous run) to one oversized
// allocation. The descriptor's anchor word packs the head of the superblock's
// free chain, its free count and its state, and every block operation is a
// single CAS on it.
//
// # Ownership
//
// At any instant a descriptor has exactly one owner:
//
//   - an active slot (the shared slot set or a Cache)
//   - the partial list of its class
//   - the superblock free list
//   - nobody, when it is Full; only its live blocks refer to it
//
// Ownership moves only through a successful CAS or a stack push/pop, so a
// descriptor is never reachable from two of these at once. Free pushes a
// descriptor on a list only on the Full -> Partial and Full -> Empty
// transitions. A partial descriptor that empties while parked on its partial
// list is retired to the free list by whichever Malloc pops it next. When no
// free or uncarved superblock is left, Malloc first reclaims every Empty
// descriptor from the partial lists and the slots before reporting out of
// memory.
//
// # Usage Example
//
//	dt := dirty.NewTracker(region)
//	a, err := alloc.New(region, dt, logger)
//	if err != nil {
//	    return err
//	}
//
//	off, err := a.Malloc(64)
//	if err != nil {
//	    return err
//	}
//	// use region.Bytes()[off:off+64]
//	a.Free(off)
//
// Goroutines with heavy traffic take a Cache:
//
//	c := a.NewCache()
//	defer c.Close()
//	off, err := c.Malloc(128)
//
// # Size Classes
//
// The class table is computed from a SizeClassConfig when the heap is created
// and persisted in the header. The default ladder:
//
//	16 - 128      step 16          8 classes
//	160 - 4096    4 per doubling  20 classes
//	8192, 16384                    2 classes
//	> 16384       class 0: whole superblocks
//
// # Recovery
//
// After an unclean shutdown the lists in the header cannot be trusted. Recover
// rebuilds them from the anchors alone, and quarantines any descriptor whose
// anchor or chain does not validate.
package alloc
