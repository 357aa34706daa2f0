package alloc

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ralloc/heap"
	"github.com/joshuapare/ralloc/internal/format"
)

const oneMiB = 1 << 20

func TestAllocator_FreeThenMallocReusesBlock(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a

	p, err := a.Malloc(64)
	require.NoError(t, err)
	a.Free(p)

	q, err := a.Malloc(64)
	require.NoError(t, err)
	assert.Equal(t, p, q)
}

func TestAllocator_OneMiBScenario(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a
	l := env.r.Layout()

	p1, err := a.Malloc(64)
	require.NoError(t, err)
	p2, err := a.Malloc(64)
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
	for _, p := range []uint64{p1, p2} {
		assert.True(t, l.Contains(int(p)), "0x%X outside the superblock table", p)
		assert.NotZero(t, p)
	}

	a.Free(p1)
	p3, err := a.Malloc(64)
	require.NoError(t, err)
	assert.Equal(t, p1, p3)
}

func TestAllocator_FirstBlockIsSuperBlockStart(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a

	p, err := a.Malloc(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(env.r.Layout().SuperBlock(0)), p)
	assert.Equal(t, uint64(format.SuperBlockSize), env.r.Used())

	// Block 0 was handed out on publication: one fewer free block.
	sc := a.SizeClass(100)
	an := a.loadAnchor(0)
	assert.Equal(t, a.classes.maxCount(sc)-1, an.Count())
	assert.Equal(t, format.StatePartial, an.State())

	n, ok := a.UsableSize(p)
	require.True(t, ok)
	assert.Equal(t, 112, n)
}

func TestAllocator_ZeroSizeUsesSmallestClass(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	p, err := env.a.Malloc(0)
	require.NoError(t, err)
	n, ok := env.a.UsableSize(p)
	require.True(t, ok)
	assert.Equal(t, 16, n)
}

func TestAllocator_NegativeSize(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	_, err := env.a.Malloc(-1)
	require.ErrorIs(t, err, ErrBadSize)
}

func TestAllocator_SequentialBlocks(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a
	base := uint64(env.r.Layout().SuperBlock(0))

	for i := range 10 {
		p, err := a.Malloc(48)
		require.NoError(t, err)
		assert.Equal(t, base+uint64(i*48), p)
	}
}

func TestAllocator_FullToPartialPushesPartialList(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a
	sc := a.SizeClass(16384)
	require.Equal(t, uint32(4), a.classes.maxCount(sc))

	var ps []uint64
	for range 4 {
		p, err := a.Malloc(16384)
		require.NoError(t, err)
		ps = append(ps, p)
	}
	require.Equal(t, format.StateFull, a.loadAnchor(0).State())
	_, held := a.shared.take(sc)
	require.False(t, held, "a full descriptor has no owner")

	a.Free(ps[2])
	assert.Equal(t, format.StatePartial, a.loadAnchor(0).State())
	assert.Equal(t, uint32(1), a.partial[sc].load().Ref())

	p, err := a.Malloc(16384)
	require.NoError(t, err)
	assert.Equal(t, ps[2], p)
	assert.Equal(t, uint64(format.SuperBlockSize), env.r.Used())
	requireSingleOwner(t, a)
}

func TestAllocator_FullToEmptyRetiresSuperBlock(t *testing.T) {
	env := newTestAllocator(t, oneMiB, []uint32{0, 16, format.SuperBlockSize})
	a := env.a

	p, err := a.Malloc(format.SuperBlockSize)
	require.NoError(t, err)
	require.Equal(t, 2, int(a.loadGeometry(0).sizeClass))
	require.Equal(t, format.StateFull, a.loadAnchor(0).State())

	a.Free(p)
	assert.Equal(t, format.StateEmpty, a.loadAnchor(0).State())
	assert.Equal(t, uint32(1), a.free.load().Ref())

	// The retired superblock is recarved for another class.
	q, err := a.Malloc(16)
	require.NoError(t, err)
	assert.Equal(t, p, q)
	assert.Equal(t, uint32(1), a.loadGeometry(0).sizeClass)
	assert.Equal(t, uint64(format.SuperBlockSize), env.r.Used())
	requireSingleOwner(t, a)
}

func TestAllocator_PartialToEmptyStaysWithHolder(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a

	p1, err := a.Malloc(64)
	require.NoError(t, err)
	p2, err := a.Malloc(64)
	require.NoError(t, err)
	a.Free(p1)
	a.Free(p2)

	assert.Equal(t, format.StateEmpty, a.loadAnchor(0).State())
	assert.Zero(t, a.free.load().Ref(), "held descriptor must not be listed")

	a.ReleaseAll()
	assert.Equal(t, uint32(1), a.free.load().Ref())

	p, err := a.Malloc(16384)
	require.NoError(t, err)
	assert.Equal(t, uint64(env.r.Layout().SuperBlock(0)), p)
	assert.Equal(t, uint64(format.SuperBlockSize), env.r.Used())
	requireSingleOwner(t, a)
}

func TestAllocator_DeferredRetirementFromPartialList(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a
	sc := a.SizeClass(16384)

	var ps []uint64
	for range 4 {
		p, err := a.Malloc(16384)
		require.NoError(t, err)
		ps = append(ps, p)
	}
	for _, p := range ps {
		a.Free(p)
	}
	// Emptied while parked on the partial list.
	assert.Equal(t, format.StateEmpty, a.loadAnchor(0).State())
	assert.Equal(t, uint32(1), a.partial[sc].load().Ref())
	assert.Zero(t, a.free.load().Ref())

	_, err := a.Malloc(16)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*format.SuperBlockSize), env.r.Used())

	// The next pop of the partial list retires it and the superblock is
	// recarved from the free list.
	p, err := a.Malloc(16384)
	require.NoError(t, err)
	assert.Equal(t, ps[0], p)
	assert.Zero(t, a.partial[sc].load().Ref())
	assert.Equal(t, uint64(2*format.SuperBlockSize), env.r.Used())
	requireSingleOwner(t, a)
}

func TestAllocator_LargeRun(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a
	l := env.r.Layout()

	p, err := a.Malloc(3*format.SuperBlockSize - 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(l.SuperBlock(0)), p)
	assert.Equal(t, uint64(3*format.SuperBlockSize), env.r.Used())

	n, ok := a.UsableSize(p)
	require.True(t, ok)
	assert.Equal(t, 3*format.SuperBlockSize, n)

	_, ok = a.UsableSize(uint64(l.SuperBlock(1)))
	assert.False(t, ok, "continuation is not a block start")
	assert.Panics(t, func() { a.Free(uint64(l.SuperBlock(2))) })

	g := a.loadGeometry(0)
	assert.Equal(t, uint32(3), g.spans)
	for d := 1; d < 3; d++ {
		c := a.loadGeometry(d)
		assert.Zero(t, c.spans)
		assert.Equal(t, uint32(1), c.head)
		assert.Equal(t, format.StateFull, a.loadAnchor(d).State())
	}

	a.Free(p)
	for d := range 3 {
		assert.Equal(t, format.StateEmpty, a.loadAnchor(d).State())
		assert.Equal(t, freeGeometry, a.loadGeometry(d))
	}
	freed := 0
	a.free.walk(func(int) bool { freed++; return true })
	assert.Equal(t, 3, freed)
	requireCapacityIdentity(t, a)
}

func TestAllocator_LargeSingleUsesFreeList(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a

	p, err := a.Malloc(2 * format.SuperBlockSize)
	require.NoError(t, err)
	a.Free(p)

	// One superblock comes from the free list.
	q, err := a.Malloc(format.SuperBlockSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*format.SuperBlockSize), env.r.Used())
	assert.True(t, q == p || q == p+format.SuperBlockSize)

	// A run always comes from the frontier.
	r, err := a.Malloc(2 * format.SuperBlockSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(env.r.Layout().SuperBlock(2)), r)
	assert.Equal(t, uint64(4*format.SuperBlockSize), env.r.Used())
}

func TestAllocator_OutOfMemory(t *testing.T) {
	env := newTestAllocator(t, 4*format.SuperBlockSize, nil)
	a := env.a

	_, err := a.Malloc(5 * format.SuperBlockSize)
	require.ErrorIs(t, err, ErrOutOfMemory)

	p, err := a.Malloc(4 * format.SuperBlockSize)
	require.NoError(t, err)

	_, err = a.Malloc(16)
	require.ErrorIs(t, err, ErrOutOfMemory)
	_, err = a.Malloc(format.SuperBlockSize)
	require.ErrorIs(t, err, ErrOutOfMemory)

	a.Free(p)
	_, err = a.Malloc(16)
	require.NoError(t, err)
}

func TestAllocator_HugeSizesAreOutOfMemory(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a

	for _, size := range []int{math.MaxInt, math.MaxInt - 10, math.MaxInt - format.SuperBlockSize, oneMiB + 1} {
		assert.Zero(t, a.SizeClass(size), "size %d", size)
		_, err := a.Malloc(size)
		require.ErrorIs(t, err, ErrOutOfMemory, "size %d", size)
	}
	assert.Zero(t, env.r.Used())
}

func TestAllocator_EmptySuperBlockServesOtherClasses(t *testing.T) {
	env := newTestAllocator(t, format.SuperBlockSize, nil)
	a := env.a
	base := uint64(env.r.Layout().SuperBlock(0))

	// Fill the only superblock with one class and empty it again. It stays
	// parked on that class's partial list.
	var ps []uint64
	for range 4 {
		p, err := a.Malloc(16384)
		require.NoError(t, err)
		ps = append(ps, p)
	}
	for _, p := range ps {
		a.Free(p)
	}
	require.Equal(t, format.StateEmpty, a.loadAnchor(0).State())
	require.NotZero(t, a.partial[a.SizeClass(16384)].load().Ref())

	p, err := a.Malloc(64)
	require.NoError(t, err, "emptied superblock must serve another class")
	assert.Equal(t, base, p)
	assert.Zero(t, a.partial[a.SizeClass(16384)].load().Ref())

	// Emptied while held by the shared slot, then wanted by class 0.
	a.Free(p)
	q, err := a.Malloc(40000)
	require.NoError(t, err, "emptied superblock must serve a large request")
	assert.Equal(t, base, q)

	a.Free(q)
	r, err := a.Malloc(16)
	require.NoError(t, err)
	assert.Equal(t, base, r)
	requireSingleOwner(t, a)
	requireAnchorInvariants(t, a)
}

func TestAllocator_ReclaimLeavesLiveSuperBlocks(t *testing.T) {
	env := newTestAllocator(t, 2*format.SuperBlockSize, nil)
	a := env.a

	c := a.NewCache()
	p, err := c.Malloc(64)
	require.NoError(t, err)
	c.Free(p)
	keep, err := a.Malloc(4096)
	require.NoError(t, err)

	// Both superblocks are carved: one emptied in the cache, one live in the
	// shared slot.
	q, err := a.Malloc(16384)
	require.NoError(t, err)
	assert.Equal(t, p, q)

	dk, _ := env.r.Layout().IndexOf(int(keep))
	assert.Equal(t, format.StatePartial, a.loadAnchor(dk).State())
	_, err = a.Malloc(16384 * 4)
	require.ErrorIs(t, err, ErrOutOfMemory)
	requireSingleOwner(t, a)
}

func TestAllocator_ExhaustClassThenRecycle(t *testing.T) {
	env := newTestAllocator(t, 2*format.SuperBlockSize, nil)
	a := env.a

	var ps []uint64
	for {
		p, err := a.Malloc(4096)
		if err != nil {
			require.ErrorIs(t, err, ErrOutOfMemory)
			break
		}
		ps = append(ps, p)
	}
	require.Len(t, ps, 32)
	requireNoOverlap(t, a, ps)

	for _, p := range ps {
		a.Free(p)
	}
	st := requireCapacityIdentity(t, a)
	assert.Zero(t, st.LiveBytes)

	// Both emptied superblocks sit on the partial list until it is popped.
	assert.Zero(t, a.free.load().Ref())
	q, err := a.Malloc(4096)
	require.NoError(t, err)
	a.Free(q)
	a.ReleaseAll()

	freed := 0
	a.free.walk(func(int) bool { freed++; return true })
	assert.Equal(t, 2, freed)
	requireSingleOwner(t, a)
}

func TestAllocator_FreeMisusePanics(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a
	l := env.r.Layout()

	small, err := a.Malloc(64)
	require.NoError(t, err)
	big, err := a.Malloc(16384)
	require.NoError(t, err)
	run, err := a.Malloc(2 * format.SuperBlockSize)
	require.NoError(t, err)

	assert.PanicsWithValue(t, panicOutside+": 0x0", func() { a.Free(0) })
	assert.Panics(t, func() { a.Free(uint64(l.FileSize)) })
	assert.Panics(t, func() { a.Free(small + 8) })
	assert.Panics(t, func() { a.Free(run + 16) })
	assert.Panics(t, func() { a.Free(uint64(l.SuperBlock(10))) }, "never carved")

	a.Free(big)
	assert.Panics(t, func() { a.Free(big) }, "double free into an empty superblock")

	a.Free(run)
	assert.Panics(t, func() { a.Free(run) }, "double free of a large run")
}

func TestAllocator_NewRejectsBadTops(t *testing.T) {
	env := newTestAllocator(t, 4*format.SuperBlockSize, nil)
	format.StoreU64(env.r.Bytes(), format.HdrFreeListTopOffset, uint64(format.MakeTop(99, 0)))

	_, err := New(env.r, env.dt, nil)
	require.ErrorIs(t, err, heap.ErrCorrupt)
}

func TestAllocator_MarksDirtyPages(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	env.dt.Reset()

	p, err := env.a.Malloc(64)
	require.NoError(t, err)

	pages := make(map[int64]bool)
	for _, r := range env.dt.DebugRanges() {
		for off := r.Off; off < r.Off+r.Len; off += format.PageSize {
			pages[off] = true
		}
	}
	assert.True(t, pages[0], "header page (Used)")
	assert.True(t, pages[int64(format.PageFloor(env.r.Layout().Descriptor(0)))], "descriptor page")
	assert.True(t, pages[int64(format.PageFloor(int(p)))], "block page")
}

// Randomized mix of sizes and frees, checking the structural invariants
// after every phase.
func TestAllocator_RandomizedInvariants(t *testing.T) {
	env := newTestAllocator(t, 4*oneMiB, nil)
	a := env.a
	rng := rand.New(rand.NewPCG(1, 2))

	var live []uint64
	for round := range 20 {
		for range 200 {
			size := rng.IntN(20000) + 1
			if rng.IntN(50) == 0 {
				size = rng.IntN(3*format.SuperBlockSize) + 1
			}
			p, err := a.Malloc(size)
			if err != nil {
				require.ErrorIs(t, err, ErrOutOfMemory)
				continue
			}
			n, ok := a.UsableSize(p)
			require.True(t, ok)
			require.GreaterOrEqual(t, n, size)
			live = append(live, p)
		}
		rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
		keep := len(live) / 3
		for _, p := range live[keep:] {
			a.Free(p)
		}
		live = live[:keep]

		requireNoOverlap(t, a, live)
		requireAnchorInvariants(t, a)
		requireSingleOwner(t, a)
		requireCapacityIdentity(t, a)
		if t.Failed() {
			t.Fatalf("invariants broken after round %d", round)
		}
	}

	for _, p := range live {
		a.Free(p)
	}
	a.ReleaseAll()
	st := requireCapacityIdentity(t, a)
	assert.Zero(t, st.LiveBytes)
	assert.Zero(t, st.LargeAllocations)
}

func TestAllocator_Stats(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a

	_, err := a.Malloc(64)
	require.NoError(t, err)
	_, err = a.Malloc(64)
	require.NoError(t, err)
	_, err = a.Malloc(2 * format.SuperBlockSize)
	require.NoError(t, err)

	st := requireCapacityIdentity(t, a)
	assert.Equal(t, oneMiB, st.RegionBytes)
	assert.Equal(t, 3*format.SuperBlockSize, st.UsedBytes)
	assert.Equal(t, 13, st.FrontierRemaining)
	assert.Equal(t, 1, st.LargeAllocations)
	assert.Equal(t, 2, st.LargeSuperBlocks)
	assert.Equal(t, 2*64+2*format.SuperBlockSize, st.LiveBytes)

	cs := st.Classes[a.SizeClass(64)]
	assert.Equal(t, 64, cs.BlockSize)
	assert.Equal(t, 1, cs.SuperBlocks)
	assert.Equal(t, 2, cs.LiveBlocks)
	assert.Equal(t, 1022, cs.FreeBlocks)
}
