package alloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ralloc/internal/format"
)

func TestStack_LIFO(t *testing.T) {
	env := newTestAllocator(t, 8*format.SuperBlockSize, nil)
	s := &env.a.free

	for d := range 5 {
		s.push(d)
	}
	for want := 4; want >= 0; want-- {
		d, ok := s.pop()
		require.True(t, ok)
		assert.Equal(t, want, d)
	}
	_, ok := s.pop()
	assert.False(t, ok)
}

func TestStack_GenerationAdvances(t *testing.T) {
	env := newTestAllocator(t, 4*format.SuperBlockSize, nil)
	s := &env.a.free

	g0 := s.load().Gen()
	s.push(2)
	top := s.load()
	assert.Equal(t, uint32(3), top.Ref())
	assert.Equal(t, g0+1, top.Gen())

	_, ok := s.pop()
	require.True(t, ok)
	s.push(2)
	// Same descriptor on top, different word.
	assert.Equal(t, top.Ref(), s.load().Ref())
	assert.NotEqual(t, top, s.load())
	assert.False(t, s.cas(top, format.MakeTop(0, 0)), "stale top must not CAS")
}

func TestStack_Reset(t *testing.T) {
	env := newTestAllocator(t, 4*format.SuperBlockSize, nil)
	s := &env.a.partial[1]
	s.push(0)
	s.push(1)
	g := s.load().Gen()

	s.reset()
	_, ok := s.pop()
	assert.False(t, ok)
	assert.Equal(t, g+1, s.load().Gen())
}

func TestStack_WalkCutsCycles(t *testing.T) {
	env := newTestAllocator(t, 4*format.SuperBlockSize, nil)
	s := &env.a.free
	s.push(0)
	s.push(1)
	// Point descriptor 0 back at descriptor 1.
	format.StoreU64(env.a.data, s.linkOff(0), 2)

	visits := 0
	s.walk(func(int) bool { visits++; return true })
	assert.LessOrEqual(t, visits, env.a.layout.Count+1)
}

func TestStack_ConcurrentPushPop(t *testing.T) {
	const n = 64
	env := newTestAllocator(t, n*format.SuperBlockSize, nil)
	s := &env.a.free
	for d := range n {
		s.push(d)
	}

	const workers = 8
	const rounds = 2000
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				if d, ok := s.pop(); ok {
					s.push(d)
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[int]bool)
	for {
		d, ok := s.pop()
		if !ok {
			break
		}
		require.False(t, seen[d], "descriptor %d popped twice", d)
		seen[d] = true
	}
	assert.Len(t, seen, n)
}
