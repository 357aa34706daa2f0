package format

import (
	"fmt"

	"github.com/joshuapare/ralloc/internal/buf"
)

// Layout is the fixed geometry of one heap file. It is derived from the region
// size alone, so a reopened file can be checked against what its header claims.
type Layout struct {
	Size          int // superblock region bytes (Count * SuperBlockSize)
	Count         int // number of superblocks (and descriptors)
	DescTableOff  int
	SuperBlockOff int
	RootTableOff  int
	FileSize      int
}

// NewLayout computes the layout for a region of at least size bytes. The size
// is rounded up to a whole number of superblocks, minimum one.
func NewLayout(size int64) (Layout, error) {
	if size < 0 {
		return Layout{}, fmt.Errorf("layout: negative size %d: %w", size, ErrBadSize)
	}
	if size > MaxRegionSize {
		return Layout{}, fmt.Errorf("layout: size %d exceeds %d: %w", size, int64(MaxRegionSize), ErrBadSize)
	}
	rounded := AlignSuperBlock(int(size))
	if rounded == 0 {
		rounded = SuperBlockSize
	}
	count := rounded / SuperBlockSize

	descBytes, ok := buf.MulOverflowSafe(count, DescriptorSize)
	if !ok {
		return Layout{}, fmt.Errorf("layout: descriptor table overflow: %w", ErrBadSize)
	}
	sbOff := AlignSuperBlock(DescTableOff + descBytes)
	fileSize, ok := buf.AddOverflowSafe(sbOff, rounded)
	if !ok {
		return Layout{}, fmt.Errorf("layout: file size overflow: %w", ErrBadSize)
	}
	return Layout{
		Size:          rounded,
		Count:         count,
		DescTableOff:  DescTableOff,
		SuperBlockOff: sbOff,
		RootTableOff:  RootTableOff,
		FileSize:      fileSize,
	}, nil
}

// SuperBlock returns the file offset of superblock i.
func (l Layout) SuperBlock(i int) int {
	return l.SuperBlockOff + i*SuperBlockSize
}

// Descriptor returns the file offset of descriptor i.
func (l Layout) Descriptor(i int) int {
	return l.DescTableOff + i*DescriptorSize
}

// Root returns the file offset of root slot i.
func (l Layout) Root(i int) int {
	return l.RootTableOff + i*RootSize
}

// IndexOf maps a file offset inside the superblock table to the index of the
// superblock (and descriptor) that contains it.
func (l Layout) IndexOf(off int) (int, bool) {
	if off < l.SuperBlockOff || off >= l.SuperBlockOff+l.Size {
		return 0, false
	}
	return (off - l.SuperBlockOff) / SuperBlockSize, true
}

// Contains reports whether off lies inside the superblock table.
func (l Layout) Contains(off int) bool {
	_, ok := l.IndexOf(off)
	return ok
}
