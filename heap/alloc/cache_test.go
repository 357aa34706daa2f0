package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ralloc/internal/format"
)

func TestCache_SeparateActiveDescriptors(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a
	l := env.r.Layout()

	c1 := a.NewCache()
	c2 := a.NewCache()

	p1, err := c1.Malloc(64)
	require.NoError(t, err)
	p2, err := c2.Malloc(64)
	require.NoError(t, err)

	d1, _ := l.IndexOf(int(p1))
	d2, _ := l.IndexOf(int(p2))
	assert.NotEqual(t, d1, d2, "each cache carves its own superblock")

	// Blocks can be freed through any handle.
	c2.Free(p1)
	a.Free(p2)
	requireSingleOwner(t, a)
}

func TestCache_ReleaseHandsDescriptorToPartialList(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a
	base := uint64(env.r.Layout().SuperBlock(0))

	c := a.NewCache()
	p, err := c.Malloc(64)
	require.NoError(t, err)
	require.Equal(t, base, p)

	c.Release()
	sc := a.SizeClass(64)
	assert.Equal(t, uint32(1), a.partial[sc].load().Ref())

	q, err := a.Malloc(64)
	require.NoError(t, err)
	assert.Equal(t, base+64, q, "shared slot adopts the released descriptor")
	assert.Equal(t, uint64(format.SuperBlockSize), env.r.Used())

	// The cache stays usable after Release.
	_, err = c.Malloc(64)
	require.NoError(t, err)
}

func TestCache_ReleaseRetiresEmptyDescriptor(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a

	c := a.NewCache()
	p, err := c.Malloc(256)
	require.NoError(t, err)
	c.Free(p)
	require.Equal(t, format.StateEmpty, a.loadAnchor(0).State())

	c.Release()
	assert.Equal(t, uint32(1), a.free.load().Ref())
	requireSingleOwner(t, a)
}

func TestCache_CloseAllowsReuse(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a

	c1 := a.NewCache()
	_, err := c1.Malloc(32)
	require.NoError(t, err)
	c1.Close()

	c2 := a.NewCache()
	assert.Same(t, c1, c2)

	c3 := a.NewCache()
	assert.NotSame(t, c2, c3)

	n := 0
	for c := a.caches.Load(); c != nil; c = c.next {
		n++
	}
	assert.Equal(t, 2, n)
}

func TestAllocator_ReleaseAllCoversCaches(t *testing.T) {
	env := newTestAllocator(t, oneMiB, nil)
	a := env.a

	var caches []*Cache
	for range 4 {
		c := a.NewCache()
		_, err := c.Malloc(128)
		require.NoError(t, err)
		caches = append(caches, c)
	}
	_, err := a.Malloc(128)
	require.NoError(t, err)

	a.ReleaseAll()
	listed := 0
	a.partial[a.SizeClass(128)].walk(func(int) bool { listed++; return true })
	assert.Equal(t, 5, listed)
	for _, c := range caches {
		for sc := 1; sc < len(c.slots.s); sc++ {
			assert.Zero(t, c.slots.s[sc].ref.Load())
		}
	}
	requireSingleOwner(t, a)
}
