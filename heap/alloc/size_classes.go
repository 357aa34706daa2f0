package alloc

import (
	"fmt"

	"github.com/joshuapare/ralloc/internal/format"
)

// SizeClassConfig defines the size-class ladder of a new heap.
//
// The ladder has three phases: linear steps for small blocks, a fixed number
// of geometric steps per doubling for medium blocks, then plain doubling up to
// the largest standard class. Requests above the last class are served by
// whole superblocks (class 0).
type SizeClassConfig struct {
	// Name for this configuration (for benchmarking and stats)
	Name string

	// Small allocation settings (linear increments)
	SmallMin       uint32 // First class
	SmallMax       uint32 // Last linear class
	SmallIncrement uint32 // Step between linear classes

	// Medium allocation settings (geometric growth)
	StepsPerDoubling uint32 // Classes per power of two above SmallMax
	MediumMax        uint32 // Last geometric class

	// LargeMax is the largest standard class, reached by doubling MediumMax.
	LargeMax uint32
}

// Predefined configurations.
var (
	// ConfigDefault: 16-128 step 16 (8 classes) + 4 per doubling to 4K
	// (20 classes) + 8K and 16K = 30 classes.
	ConfigDefault = SizeClassConfig{
		Name:             "Default",
		SmallMin:         16,
		SmallMax:         128,
		SmallIncrement:   16,
		StepsPerDoubling: 4,
		MediumMax:        4096,
		LargeMax:         16384,
	}

	// ConfigFine: 16-256 step 16 (16 classes) + 2 per doubling to 8K
	// (10 classes) + 16K = 27 classes.
	ConfigFine = SizeClassConfig{
		Name:             "Fine",
		SmallMin:         16,
		SmallMax:         256,
		SmallIncrement:   16,
		StepsPerDoubling: 2,
		MediumMax:        8192,
		LargeMax:         16384,
	}

	// ConfigCoarse: 16-64 step 16 (4 classes) + powers of two to 16K
	// (8 classes) = 12 classes. Less metadata, more internal fragmentation.
	ConfigCoarse = SizeClassConfig{
		Name:             "Coarse",
		SmallMin:         16,
		SmallMax:         64,
		SmallIncrement:   16,
		StepsPerDoubling: 1,
		MediumMax:        16384,
		LargeMax:         16384,
	}
)

// BlockSizes computes the persisted class table: entry 0 is the oversized
// class and holds 0, entries 1..n are strictly increasing block sizes.
func (c SizeClassConfig) BlockSizes() ([]uint32, error) {
	if c.SmallMin == 0 || c.SmallIncrement == 0 || c.SmallMax < c.SmallMin ||
		c.MediumMax < c.SmallMax || c.LargeMax < c.MediumMax || c.LargeMax > format.SuperBlockSize ||
		(c.MediumMax > c.SmallMax && c.StepsPerDoubling == 0) {
		return nil, fmt.Errorf("%w: %s: inconsistent bounds", ErrBadConfig, c.Name)
	}
	sizes := []uint32{0}
	add := func(n uint32) {
		n = uint32(format.AlignBlock(int(n)))
		if n > sizes[len(sizes)-1] {
			sizes = append(sizes, n)
		}
	}

	// Phase 1: linear
	for n := c.SmallMin; n <= c.SmallMax; n += c.SmallIncrement {
		add(n)
	}
	// Phase 2: geometric, StepsPerDoubling per power of two
	for base := c.SmallMax; base < c.MediumMax; base *= 2 {
		step := max(base/c.StepsPerDoubling, format.BlockAlignment)
		for n := base + step; n <= 2*base && n <= c.MediumMax; n += step {
			add(n)
		}
	}
	add(c.MediumMax)
	// Phase 3: doubling
	for n := c.MediumMax * 2; n <= c.LargeMax; n *= 2 {
		add(n)
	}
	add(c.LargeMax)

	if err := format.ValidateBlockSizes(sizes); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadConfig, c.Name, err)
	}
	return sizes, nil
}

// sizeClassTable maps request sizes to classes for one heap.
type sizeClassTable struct {
	blockSizes []uint32 // entry 0 unused
	maxCounts  []uint32 // blocks per superblock, per class
	lookup     []uint8  // class by (size+15)/16, for sizes up to the largest class
}

// newSizeClassTable builds the lookup for a persisted class table.
func newSizeClassTable(blockSizes []uint32) *sizeClassTable {
	t := &sizeClassTable{
		blockSizes: blockSizes,
		maxCounts:  make([]uint32, len(blockSizes)),
	}
	largest := blockSizes[len(blockSizes)-1]
	t.lookup = make([]uint8, largest/format.BlockAlignment+1)
	sc := 1
	for i := range t.lookup {
		n := uint32(i * format.BlockAlignment)
		for blockSizes[sc] < n {
			sc++
		}
		t.lookup[i] = uint8(sc)
	}
	for sc := 1; sc < len(blockSizes); sc++ {
		t.maxCounts[sc] = format.SuperBlockSize / blockSizes[sc]
	}
	return t
}

// sizeClass returns the smallest class whose block size is >= size, or 0 when
// size exceeds the largest standard class.
func (t *sizeClassTable) sizeClass(size int) int {
	if size > int(t.blockSizes[len(t.blockSizes)-1]) {
		return 0
	}
	i := (size + format.BlockAlignmentMask) / format.BlockAlignment
	if i >= len(t.lookup) {
		return 0
	}
	return int(t.lookup[i])
}

// NumClasses returns the number of standard classes (excluding class 0).
func (t *sizeClassTable) NumClasses() int {
	return len(t.blockSizes) - 1
}

func (t *sizeClassTable) blockSize(sc int) uint32 { return t.blockSizes[sc] }

func (t *sizeClassTable) maxCount(sc int) uint32 { return t.maxCounts[sc] }
