package dirty

import "context"

// DirtyTracker is the minimal interface for recording modified byte ranges.
//
// Allocators and root writers only need to report what they touched; they
// never decide when data reaches the disk.
type DirtyTracker interface {
	// Add marks a byte range as dirty. off is a file offset.
	Add(off, length int)
}

// FlushableTracker extends DirtyTracker with flushing, for components that
// own durability (the transaction manager).
type FlushableTracker interface {
	DirtyTracker

	// FlushDataOnly flushes dirty pages other than the header page.
	FlushDataOnly(ctx context.Context) error

	// FlushAll flushes every page but the header, dirty or not.
	FlushAll(ctx context.Context) error

	// FlushHeaderAndMeta flushes the header page and syncs the descriptor
	// according to mode.
	FlushHeaderAndMeta(ctx context.Context, mode FlushMode) error
}
