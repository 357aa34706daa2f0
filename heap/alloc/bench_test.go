package alloc

import (
	"strconv"
	"testing"
)

func BenchmarkMallocFree(b *testing.B) {
	for _, size := range []int{16, 64, 512, 4096, 16384, 65536} {
		b.Run(sizeName(size), func(b *testing.B) {
			env := newTestAllocator(b, 16*oneMiB, nil)
			a := env.a
			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				off, err := a.Malloc(size)
				if err != nil {
					b.Fatal(err)
				}
				a.Free(off)
			}
		})
	}
}

func BenchmarkMallocBurst(b *testing.B) {
	env := newTestAllocator(b, 64*oneMiB, nil)
	a := env.a
	offs := make([]uint64, 1024)
	b.ResetTimer()
	for b.Loop() {
		for i := range offs {
			off, err := a.Malloc(64)
			if err != nil {
				b.Fatal(err)
			}
			offs[i] = off
		}
		for _, off := range offs {
			a.Free(off)
		}
	}
}

func BenchmarkParallel_Shared(b *testing.B) {
	env := newTestAllocator(b, 64*oneMiB, nil)
	a := env.a
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			off, err := a.Malloc(64)
			if err != nil {
				b.Error(err)
				return
			}
			a.Free(off)
		}
	})
}

func BenchmarkParallel_Cache(b *testing.B) {
	env := newTestAllocator(b, 64*oneMiB, nil)
	a := env.a
	b.RunParallel(func(pb *testing.PB) {
		c := a.NewCache()
		defer c.Close()
		for pb.Next() {
			off, err := c.Malloc(64)
			if err != nil {
				b.Error(err)
				return
			}
			c.Free(off)
		}
	})
}

func sizeName(n int) string {
	if n >= 1<<10 && n%(1<<10) == 0 {
		return strconv.Itoa(n>>10) + "K"
	}
	return strconv.Itoa(n)
}
