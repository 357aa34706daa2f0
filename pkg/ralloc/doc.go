/*
Package ralloc provides a lock-free, crash-recoverable persistent heap.

A heap is one memory-mapped file divided into 64 KiB superblocks. Blocks
are allocated and freed with atomic operations on per-superblock anchor words,
so Malloc and Free scale with the number of goroutines. Pointers are file
offsets and stay valid across restarts; up to 1024 of them can be stored as
named roots to find persistent structures again.

# Quick Start

	h := ralloc.New(nil)
	existed, err := h.Init("app.heap", 64<<20)
	if err != nil {
	    log.Fatal(err)
	}
	defer h.Close()

	if !existed {
	    p, _ := h.Malloc(128)
	    copy(h.Bytes(p), "hello")
	    _ = h.SetRoot(p, 0)
	}
	p, _ := h.GetRoot(0)
	fmt.Println(string(h.Bytes(p)[:5]))

# Crash Recovery

Init marks the heap dirty before handing it out and Close marks it clean
after every modified page is flushed. If the process dies in between, the
next Init finds the heap dirty and rebuilds the free lists from the
superblock anchors before returning; Recover then reports true:

	if recovered, _ := h.Recover(); recovered {
	    rep, _ := h.RecoveryReport()
	    log.Printf("recovered: %d partial, %d leaked", rep.Partial, len(rep.Leaked))
	}

Blocks that were live at the crash stay allocated; there is no tracing, so a
block allocated but not yet linked from a root is leaked.

# Concurrency

Heap.Malloc uses a shared active superblock per size class. Goroutines with
heavy traffic should take a Cache, which keeps its own:

	c, _ := h.NewCache()
	defer c.Close()
	p, err := c.Malloc(64)

Init, Recover, Verify, Stats and Close expect all other calls to have
finished.

# Error Handling

Errors wrap one of the package sentinels:

	ErrOutOfMemory  no superblock can be found or carved
	ErrInvalidRoot  bad root index, unset root, pointer outside the heap
	ErrCorruptHeap  header or layout cannot be trusted; nothing repaired
	ErrIO           file create/open/map/flush failure
	ErrClosed       heap not initialized or already closed

Free never returns an error: freeing a pointer not obtained from Malloc, or
freeing twice, is a programming error and panics where detected.
*/
package ralloc
