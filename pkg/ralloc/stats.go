package ralloc

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/joshuapare/ralloc/heap/alloc"
	"github.com/joshuapare/ralloc/heap/verify"
)

// Stats is a snapshot of heap usage.
type Stats struct {
	alloc.Stats
}

// Stats scans the descriptor table. The capacity identity
// LiveBytes + FreeBytes + SlackBytes == RegionBytes holds exactly when no
// other call is in flight.
func (h *Heap) Stats() (Stats, error) {
	s, err := h.session()
	if err != nil {
		return Stats{}, err
	}
	return Stats{s.a.Stats()}, nil
}

func (st Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "region %s, carved %s, live %s, free %s, slack %s\n",
		humanize.IBytes(uint64(st.RegionBytes)),
		humanize.IBytes(uint64(st.UsedBytes)),
		humanize.IBytes(uint64(st.LiveBytes)),
		humanize.IBytes(uint64(st.FreeBytes)),
		humanize.IBytes(uint64(st.SlackBytes)),
	)
	fmt.Fprintf(&b, "superblocks: %d free, %d never carved, %d in %d large allocations",
		st.FreeSuperBlocks, st.FrontierRemaining, st.LargeSuperBlocks, st.LargeAllocations)
	if st.UncarvedInTable > 0 {
		fmt.Fprintf(&b, ", %d interrupted carves", st.UncarvedInTable)
	}
	for _, cs := range st.Classes {
		if cs.SuperBlocks == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  class %2d %8s: %d superblocks, %s live blocks, %s free blocks",
			cs.Class,
			humanize.IBytes(uint64(cs.BlockSize)),
			cs.SuperBlocks,
			humanize.Comma(int64(cs.LiveBlocks)),
			humanize.Comma(int64(cs.FreeBlocks)),
		)
	}
	return b.String()
}

// Verify checks the structural invariants of the mapped heap. The caller
// must quiesce all other heap traffic.
func (h *Heap) Verify() error {
	s, err := h.session()
	if err != nil {
		return err
	}
	if err := verify.All(s.r.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptHeap, err)
	}
	return nil
}
