// Package heap provides the mapped backing region of a persistent heap file.
//
// # Overview
//
// A heap file is a fixed layout that never grows after creation:
//
//	[header 4KB] [root table 8KB] [descriptor table] [superblock 0] ... [superblock N-1]
//
// Region opens or creates such a file, validates its header against the
// layout derived from the persisted size, and hands out the mapping. It also
// owns the header words that several packages share: the sequence numbers
// used as the dirty flag, the frontier counter and the root table.
//
// Allocation policy lives in heap/alloc; durability in heap/dirty and heap/tx;
// offline checks in heap/verify.
//
// # Opening a Region
//
//	r, err := heap.Open("/var/lib/app/heap.bin")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	if !r.IsClean() {
//	    // previous session did not close; reconcile before use
//	}
//
// # Concurrency
//
// Region itself is immutable after Open. Header words and roots are accessed
// with sync/atomic, so they may be read and written from any goroutine.
package heap
