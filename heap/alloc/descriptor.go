package alloc

import (
	"github.com/joshuapare/ralloc/internal/format"
)

// Descriptor fields live in the mapping. d is always a descriptor index; links
// and stack tops store d+1 so that zero means nil.

func (a *Allocator) descOff(d int) int { return a.layout.Descriptor(d) }

func (a *Allocator) loadAnchor(d int) format.Anchor {
	return format.Anchor(format.LoadU64(a.data, a.descOff(d)+format.DescAnchorOffset))
}

func (a *Allocator) casAnchor(d int, old, v format.Anchor) bool {
	return format.CASU64(a.data, a.descOff(d)+format.DescAnchorOffset, uint64(old), uint64(v))
}

func (a *Allocator) storeAnchor(d int, v format.Anchor) {
	format.StoreU64(a.data, a.descOff(d)+format.DescAnchorOffset, uint64(v))
}

// geometry is the carve-time part of a descriptor. It is written only by the
// descriptor's exclusive owner, before the anchor that publishes it.
type geometry struct {
	sizeClass uint32
	blockSize uint32
	maxCount  uint32
	spans     uint32 // superblocks covered; 0 on continuations
	head      uint32 // continuation: head index + 1
}

func (a *Allocator) loadGeometry(d int) geometry {
	off := a.descOff(d)
	return geometry{
		sizeClass: format.LoadU32(a.data, off+format.DescSizeClassOffset),
		blockSize: format.LoadU32(a.data, off+format.DescBlockSizeOffset),
		maxCount:  format.LoadU32(a.data, off+format.DescMaxCountOffset),
		spans:     format.LoadU32(a.data, off+format.DescSpansOffset),
		head:      format.LoadU32(a.data, off+format.DescHeadOffset),
	}
}

func (a *Allocator) storeGeometry(d int, g geometry) {
	off := a.descOff(d)
	format.StoreU32(a.data, off+format.DescSizeClassOffset, g.sizeClass)
	format.StoreU32(a.data, off+format.DescBlockSizeOffset, g.blockSize)
	format.StoreU32(a.data, off+format.DescMaxCountOffset, g.maxCount)
	format.StoreU32(a.data, off+format.DescSpansOffset, g.spans)
	format.StoreU32(a.data, off+format.DescHeadOffset, g.head)
}

// freeGeometry is the geometry of a superblock parked on the free list.
var freeGeometry = geometry{
	blockSize: format.SuperBlockSize,
	maxCount:  1,
	spans:     1,
}

// chainOff returns the offset of block i's free-chain word in superblock d.
func (a *Allocator) chainOff(d int, blockSize uint32, i uint32) int {
	return a.layout.SuperBlock(d) + int(i)*int(blockSize)
}

func (a *Allocator) loadChain(d int, blockSize uint32, i uint32) uint32 {
	return uint32(format.LoadU64(a.data, a.chainOff(d, blockSize, i)))
}

func (a *Allocator) storeChain(d int, blockSize uint32, i, next uint32) {
	format.StoreU64(a.data, a.chainOff(d, blockSize, i), uint64(next))
}

// markDescriptor records the descriptor's page as dirty.
func (a *Allocator) markDescriptor(d int) {
	a.dt.Add(a.descOff(d), format.DescriptorSize)
}

// parkFree resets d to a single free superblock and pushes it on the free
// list. The caller must own d exclusively. The anchor goes Uninit before the
// geometry changes, so an interrupted park recovers as an uncarved superblock.
func (a *Allocator) parkFree(d int) {
	tag := a.loadAnchor(d).Tag()
	a.storeAnchor(d, format.MakeAnchor(format.NoBlock, 0, format.StateUninit, tag+1))
	a.storeGeometry(d, freeGeometry)
	a.storeAnchor(d, format.MakeAnchor(format.NoBlock, 1, format.StateEmpty, tag+2))
	a.markDescriptor(d)
	a.free.push(d)
}
