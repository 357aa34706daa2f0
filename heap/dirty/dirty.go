package dirty

import (
	"context"
	"math/bits"
	"sync/atomic"

	"github.com/joshuapare/ralloc/heap"
	"github.com/joshuapare/ralloc/internal/format"
)

// FlushMode controls durability guarantees when a session closes.
type FlushMode int

const (
	// FlushAuto provides safe defaults for most use cases:
	// - msync() dirty data pages
	// - fdatasync() after header write
	FlushAuto FlushMode = iota

	// FlushDataOnly only flushes dirty data pages and the header via msync().
	// The caller is responsible for calling fdatasync() later.
	FlushDataOnly

	// FlushFull provides ultra-safe durability:
	// - msync() every data page, dirty or not
	// - msync() header page
	// - fdatasync() file descriptor
	// - On macOS, uses F_FULLFSYNC
	FlushFull
)

func (m FlushMode) String() string {
	switch m {
	case FlushAuto:
		return "auto"
	case FlushDataOnly:
		return "data-only"
	case FlushFull:
		return "full"
	default:
		return "unknown"
	}
}

// Range represents a dirty byte range (absolute file offsets).
type Range struct {
	Off int64 // Absolute offset in file
	Len int64 // Length in bytes
}

// Tracker records dirty pages of a region in a lock-free bitmap.
//
// Add is safe from any goroutine. Flush methods must not run concurrently
// with each other.
type Tracker struct {
	r     *heap.Region
	bits  []atomic.Uint64
	pages int
}

// NewTracker creates a dirty tracker covering the whole region.
func NewTracker(r *heap.Region) *Tracker {
	pages := (len(r.Bytes()) + format.PageSizeMask) / format.PageSize
	return &Tracker{
		r:     r,
		bits:  make([]atomic.Uint64, (pages+63)/64),
		pages: pages,
	}
}

// Add marks every page overlapping [off, off+length) dirty.
func (t *Tracker) Add(off, length int) {
	if length <= 0 || off < 0 {
		return
	}
	first := off / format.PageSize
	last := (off + length - 1) / format.PageSize
	if last >= t.pages {
		last = t.pages - 1
	}
	for p := first; p <= last; {
		w := p / 64
		lo := p % 64
		hi := 63
		if end := last - w*64; end < hi {
			hi = end
		}
		var mask uint64
		if hi-lo == 63 {
			mask = ^uint64(0)
		} else {
			mask = ((uint64(1) << (hi - lo + 1)) - 1) << lo
		}
		if t.bits[w].Load()&mask != mask {
			t.bits[w].Or(mask)
		}
		p = (w + 1) * 64
	}
}

// DirtyPages returns the number of pages currently marked.
func (t *Tracker) DirtyPages() int {
	n := 0
	for i := range t.bits {
		n += bits.OnesCount64(t.bits[i].Load())
	}
	return n
}

// FlushDataOnly flushes all dirty pages except the header page.
//
// Pages are cleared before they are written; on failure they are marked again
// so a later flush retries them. The header page bit is left untouched.
func (t *Tracker) FlushDataOnly(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := t.r.Bytes()
	if len(data) == 0 {
		return nil
	}
	ranges := t.drain()
	if len(ranges) == 0 {
		return nil
	}
	if err := t.flushRanges(ctx, data, ranges); err != nil {
		t.restore(ranges)
		return err
	}
	return nil
}

// FlushAll flushes everything after the header page and clears the bitmap.
func (t *Tracker) FlushAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := t.r.Bytes()
	if len(data) <= format.HeaderSize {
		return nil
	}
	ranges := t.drain()
	if err := msync(data); err != nil {
		t.restore(ranges)
		return err
	}
	return nil
}

// FlushHeaderAndMeta flushes the header page and optionally syncs the file.
//
//   - FlushAuto: fdatasync()
//   - FlushDataOnly: no fdatasync()
//   - FlushFull: fdatasync() + F_FULLFSYNC on macOS
func (t *Tracker) FlushHeaderAndMeta(ctx context.Context, mode FlushMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := t.r.Bytes()
	if len(data) == 0 {
		return nil
	}
	headerLen := min(format.HeaderSize, len(data))
	if err := msync(data[:headerLen]); err != nil {
		return err
	}
	t.bits[0].And(^uint64(1))

	if err := ctx.Err(); err != nil {
		return err
	}
	if mode == FlushDataOnly {
		return nil
	}
	return fdatasync(t.r.FD(), mode == FlushFull)
}

// Reset clears all marks.
func (t *Tracker) Reset() {
	for i := range t.bits {
		t.bits[i].Store(0)
	}
}

// DebugRanges returns the coalesced dirty ranges without clearing them,
// header page included.
func (t *Tracker) DebugRanges() []Range {
	snap := make([]uint64, len(t.bits))
	for i := range t.bits {
		snap[i] = t.bits[i].Load()
	}
	return coalesce(snap, 0)
}

// drain atomically takes every data page bit and returns the pages as
// coalesced ranges. The header page bit is preserved.
func (t *Tracker) drain() []Range {
	snap := make([]uint64, len(t.bits))
	for i := range t.bits {
		if i == 0 {
			snap[0] = t.bits[0].And(1) &^ 1
			continue
		}
		snap[i] = t.bits[i].Swap(0)
	}
	return coalesce(snap, 1)
}

func (t *Tracker) restore(ranges []Range) {
	for _, r := range ranges {
		t.Add(int(r.Off), int(r.Len))
	}
}

// coalesce turns a page bitmap into sorted, merged byte ranges, ignoring
// pages below firstPage.
func coalesce(snap []uint64, firstPage int) []Range {
	var out []Range
	start, prev := -1, -2
	for w, v := range snap {
		for v != 0 {
			b := bits.TrailingZeros64(v)
			v &= v - 1
			p := w*64 + b
			if p < firstPage {
				continue
			}
			if p != prev+1 {
				if start >= 0 {
					out = append(out, pageRange(start, prev))
				}
				start = p
			}
			prev = p
		}
	}
	if start >= 0 {
		out = append(out, pageRange(start, prev))
	}
	return out
}

func pageRange(first, last int) Range {
	return Range{
		Off: int64(first) * format.PageSize,
		Len: int64(last-first+1) * format.PageSize,
	}
}
