package dirty

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ralloc/heap"
	"github.com/joshuapare/ralloc/internal/format"
)

// setupTestRegion creates a small formatted heap for testing.
func setupTestRegion(t testing.TB) *heap.Region {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.heap")
	r, err := heap.Create(path, 16*format.SuperBlockSize, []uint32{0, 16, 64})
	if err != nil {
		t.Fatalf("Failed to create test heap: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func Test_DirtyTracker_PageAlignment(t *testing.T) {
	tracker := NewTracker(setupTestRegion(t))

	tracker.Add(0x1000+100, 200)

	ranges := tracker.DebugRanges()
	if len(ranges) != 1 {
		t.Fatalf("Expected 1 range, got %d", len(ranges))
	}
	if ranges[0].Off != 0x1000 || ranges[0].Len != format.PageSize {
		t.Errorf("Range not page aligned: %+v", ranges[0])
	}
}

func Test_DirtyTracker_Coalesce_Adjacent(t *testing.T) {
	tracker := NewTracker(setupTestRegion(t))

	tracker.Add(0x1000, 0x1000)
	tracker.Add(0x2000, 0x1000)

	ranges := tracker.DebugRanges()
	require.Equal(t, []Range{{Off: 0x1000, Len: 0x2000}}, ranges)
}

func Test_DirtyTracker_Coalesce_Separate(t *testing.T) {
	tracker := NewTracker(setupTestRegion(t))

	tracker.Add(0x1000, 1)
	tracker.Add(0x5000, 0x1001)

	ranges := tracker.DebugRanges()
	require.Equal(t, []Range{
		{Off: 0x1000, Len: 0x1000},
		{Off: 0x5000, Len: 0x2000},
	}, ranges)
}

func Test_DirtyTracker_SpansBitmapWords(t *testing.T) {
	tracker := NewTracker(setupTestRegion(t))

	// Pages 60..70 straddle the first and second bitmap words.
	tracker.Add(60*format.PageSize, 11*format.PageSize)

	require.Equal(t, 11, tracker.DirtyPages())
	require.Equal(t, []Range{{Off: 60 * format.PageSize, Len: 11 * format.PageSize}}, tracker.DebugRanges())
}

func Test_DirtyTracker_IgnoresOutOfRange(t *testing.T) {
	r := setupTestRegion(t)
	tracker := NewTracker(r)

	tracker.Add(-1, 10)
	tracker.Add(100, 0)
	tracker.Add(len(r.Bytes())-1, 1<<20)

	require.Equal(t, 1, tracker.DirtyPages())
}

func Test_DirtyTracker_FlushDataOnly_KeepsHeader(t *testing.T) {
	tracker := NewTracker(setupTestRegion(t))

	tracker.Add(0, 100)
	tracker.Add(0x3000, 64)

	require.NoError(t, tracker.FlushDataOnly(context.Background()))
	require.Equal(t, []Range{{Off: 0, Len: format.PageSize}}, tracker.DebugRanges())

	require.NoError(t, tracker.FlushHeaderAndMeta(context.Background(), FlushAuto))
	require.Zero(t, tracker.DirtyPages())
}

func Test_DirtyTracker_FlushAll(t *testing.T) {
	tracker := NewTracker(setupTestRegion(t))
	tracker.Add(0x3000, 0x10000)

	require.NoError(t, tracker.FlushAll(context.Background()))
	require.Zero(t, tracker.DirtyPages())
}

func Test_DirtyTracker_FlushModes(t *testing.T) {
	tracker := NewTracker(setupTestRegion(t))
	for _, mode := range []FlushMode{FlushAuto, FlushDataOnly, FlushFull} {
		tracker.Add(0, 8)
		require.NoError(t, tracker.FlushHeaderAndMeta(context.Background(), mode), mode.String())
	}
}

func Test_DirtyTracker_Reset(t *testing.T) {
	tracker := NewTracker(setupTestRegion(t))
	tracker.Add(0x1000, 0x4000)
	tracker.Reset()
	require.Empty(t, tracker.DebugRanges())
	require.NoError(t, tracker.FlushDataOnly(context.Background()))
}

func Test_DirtyTracker_ConcurrentAdd(t *testing.T) {
	tracker := NewTracker(setupTestRegion(t))

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 32 {
				tracker.Add((g*32+i)*format.PageSize, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 256, tracker.DirtyPages())
	require.Equal(t, []Range{{Off: 0, Len: 256 * format.PageSize}}, tracker.DebugRanges())
}

func TestTracker_FlushDataOnly_PreCancelled(t *testing.T) {
	tracker := NewTracker(setupTestRegion(t))
	tracker.Add(0x1000, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, tracker.FlushDataOnly(ctx), context.Canceled)
	require.Equal(t, 1, tracker.DirtyPages(), "cancelled flush must keep marks")
}

func TestTracker_FlushHeaderAndMeta_PreCancelled(t *testing.T) {
	tracker := NewTracker(setupTestRegion(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, tracker.FlushHeaderAndMeta(ctx, FlushAuto), context.Canceled)
}

func Benchmark_DirtyTracker_Add(b *testing.B) {
	tracker := NewTracker(setupTestRegion(b))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tracker.Add((i%200)*format.PageSize, 64)
	}
}
