// Package tx provides the session protocol that doubles as the heap's dirty
// flag.
//
// # Overview
//
// The header carries two sequence numbers. A heap is clean when they are
// equal. Opening a session for writing bumps the primary sequence and flushes
// the header before any allocation happens; closing the session flushes every
// dirty data page, copies primary into secondary and flushes the header last.
// A crash anywhere in between leaves primary != secondary, which the next
// open detects.
//
// Session lifecycle:
//  1. Begin(): Increment PrimarySeq, update timestamp, flush header (+ fdatasync)
//  2. Allocate/free/set roots (pages recorded by the dirty tracker)
//  3. Commit(): Flush data pages, set SecondarySeq=PrimarySeq, flush header
//  4. Rollback(): Abandon the session; the heap stays dirty
//
// # Usage
//
//	dt := dirty.NewTracker(region)
//	mgr := tx.NewManager(region, dt, dirty.FlushAuto)
//	if err := mgr.Begin(ctx); err != nil {
//	    return err
//	}
//	// ... heap traffic ...
//	if err := mgr.Commit(ctx); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// Manager is not thread-safe. Begin and Commit require that no other goroutine
// is using the heap.
package tx
