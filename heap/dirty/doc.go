// Package dirty provides page-level dirty tracking and ordered flushing for
// mapped heap files.
//
// # Overview
//
// The tracker keeps one bit per 4KB page of the file. Marking a range dirty is
// an atomic OR on the covering bitmap words, so allocator fast paths on many
// goroutines can call Add without locks. Flushing drains the bitmap, turns the
// set bits into coalesced page ranges and msyncs them.
//
// # Usage
//
//	tracker := dirty.NewTracker(region)
//
//	// after writing a descriptor or a block
//	tracker.Add(off, n)
//
//	// before marking the heap clean
//	if err := tracker.FlushDataOnly(ctx); err != nil {
//	    return err
//	}
//	if err := tracker.FlushHeaderAndMeta(ctx, dirty.FlushAuto); err != nil {
//	    return err
//	}
//
// # Page-Level Granularity
//
//	Dirty pages: [1, 2, 5, 6] → Ranges: [0x1000-0x3000, 0x5000-0x7000]
//
// The header page (page 0) is never part of a data flush; it is written by
// FlushHeaderAndMeta, after the data, so the clean marker is the last write.
//
// # Memory Overhead
//
// One bit per page: a 1GB heap needs 32KB of bitmap.
//
// # Related Packages
//
//   - github.com/joshuapare/ralloc/heap/tx: sequence protocol built on the tracker
//   - github.com/joshuapare/ralloc/heap/alloc: marks descriptor and block pages
package dirty
