// Package verify checks the structural invariants of a heap file offline.
//
// # Overview
//
// Every check works on the raw file bytes, so it can run against a copy on
// disk, a mapping that is not being modified, or a heap that failed to open.
// Nothing is repaired; see alloc.Allocator.Recover for that.
//
// Validation categories:
//   - Header: signature, version, fixed sizes, class table
//   - Checksum: layout checksum over the immutable header fields
//   - FileSize: file length against the layout derived from the header
//   - Frontier: Used within the region and superblock aligned
//   - Descriptors: anchor invariants, carve geometry, free chains, large runs
//   - Lists: free list and partial lists hold distinct, eligible descriptors
//   - Roots: every set root points into the superblock table
//   - SequenceNumbers: clean shutdown marker
//
// # Quick Start
//
//	data, _ := os.ReadFile("app.heap")
//	if err := verify.AllInvariants(data); err != nil {
//	    fmt.Printf("Validation failed: %v\n", err)
//	}
//
// A heap that is open for writing is always dirty, and descriptors held by
// allocation slots are on no list; both are expected there. Verify a closed
// heap for the strongest result.
//
// # ValidationError
//
// All validation functions return *ValidationError on failure:
//
//	type ValidationError struct {
//	    Type    string         // Error category (e.g., "Descriptors")
//	    Message string         // Human-readable description
//	    Offset  int            // File offset where error occurred (-1 if N/A)
//	    Details map[string]any // Additional context
//	}
//
// AllInvariants returns the first failure. SequenceNumbers is not part of it:
// a dirty heap is recoverable, not broken.
package verify
