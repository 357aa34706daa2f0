package alloc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ralloc/heap"
	"github.com/joshuapare/ralloc/heap/dirty"
	"github.com/joshuapare/ralloc/internal/format"
)

type testEnv struct {
	a  *Allocator
	r  *heap.Region
	dt *dirty.Tracker
}

// newTestAllocator creates a region of size bytes with the given class table.
// A nil table uses ConfigDefault.
func newTestAllocator(t testing.TB, size int64, blockSizes []uint32) testEnv {
	t.Helper()
	if blockSizes == nil {
		var err error
		blockSizes, err = ConfigDefault.BlockSizes()
		require.NoError(t, err)
	}
	path := filepath.Join(t.TempDir(), "test.heap")
	r, err := heap.Create(path, size, blockSizes)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	dt := dirty.NewTracker(r)
	a, err := New(r, dt, nil)
	require.NoError(t, err)
	return testEnv{a: a, r: r, dt: dt}
}

// requireAnchorInvariants checks every carved descriptor's count/state pair.
func requireAnchorInvariants(t testing.TB, a *Allocator) {
	t.Helper()
	count := int(a.region.Used() / format.SuperBlockSize)
	for d := range count {
		an := a.loadAnchor(d)
		if an.State() == format.StateUninit {
			continue
		}
		g := a.loadGeometry(d)
		require.Truef(t, an.Consistent(g.maxCount), "descriptor %d: %s max=%d", d, an, g.maxCount)
	}
}

// requireSingleOwner checks that no descriptor sits in two places among the
// free list, the partial lists and the slots. The heap must be quiescent.
func requireSingleOwner(t testing.TB, a *Allocator) {
	t.Helper()
	owner := make(map[int]string)
	claim := func(d int, who string) {
		prev, dup := owner[d]
		require.Falsef(t, dup, "descriptor %d owned by %s and %s", d, prev, who)
		owner[d] = who
	}
	a.free.walk(func(d int) bool {
		claim(d, "free list")
		require.Equal(t, format.StateEmpty, a.loadAnchor(d).State(), "free list holds non-empty descriptor %d", d)
		return true
	})
	for sc := 1; sc < len(a.partial); sc++ {
		a.partial[sc].walk(func(d int) bool {
			claim(d, "partial list")
			require.NotEqual(t, format.StateFull, a.loadAnchor(d).State())
			require.Equal(t, uint32(sc), a.loadGeometry(d).sizeClass)
			return true
		})
	}
	checkSlots := func(s *slots, who string) {
		for sc := 1; sc < len(s.s); sc++ {
			if ref := s.s[sc].ref.Load(); ref != 0 {
				claim(int(ref)-1, who)
			}
		}
	}
	checkSlots(a.shared, "shared slot")
	for c := a.caches.Load(); c != nil; c = c.next {
		checkSlots(c.slots, "cache slot")
	}
}

// requireCapacityIdentity checks that live + free + slack covers the region.
func requireCapacityIdentity(t testing.TB, a *Allocator) Stats {
	t.Helper()
	st := a.Stats()
	require.Equal(t, st.RegionBytes, st.LiveBytes+st.FreeBytes+st.SlackBytes,
		"live=%d free=%d slack=%d", st.LiveBytes, st.FreeBytes, st.SlackBytes)
	return st
}

type span struct{ off, n uint64 }

// requireNoOverlap checks that no two live allocations share a byte.
func requireNoOverlap(t testing.TB, a *Allocator, live []uint64) {
	t.Helper()
	spans := make([]span, 0, len(live))
	for _, off := range live {
		n, ok := a.UsableSize(off)
		require.True(t, ok, "0x%X is not a block start", off)
		spans = append(spans, span{off, uint64(n)})
	}
	sortSpans(spans)
	for i := 1; i < len(spans); i++ {
		require.LessOrEqualf(t, spans[i-1].off+spans[i-1].n, spans[i].off,
			"0x%X+%d overlaps 0x%X", spans[i-1].off, spans[i-1].n, spans[i].off)
	}
}

func sortSpans(s []span) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].off < s[j-1].off; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
