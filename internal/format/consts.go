// Package format houses the on-disk layout of a persistent heap file: header
// fields, descriptor fields, the anchor and stack-top word encodings, and the
// arithmetic that maps descriptors to superblocks. It is deliberately free of
// allocation policy so that the allocator, the verifier and the CLI all agree
// on one definition of the file.
package format

// Signature is the four-byte magic at the start of every heap file.
// Layout:
//
//	0x00  'r' 'l' 'o' 'c'
var Signature = []byte{'r', 'l', 'o', 'c'}

const (
	// HeaderSize is the size of the header page in bytes.
	HeaderSize = 0x1000

	// MajorVersion and MinorVersion identify the layout revision. Any change to a
	// fixed size below requires a new major version.
	MajorVersion = 1
	MinorVersion = 0

	// SuperBlockSize is the fixed size of every superblock (64 KiB).
	SuperBlockSize = 64 << 10

	// CacheLineSize is the padding unit for descriptors and stack tops.
	CacheLineSize = 64

	// DescriptorSize is the stride of the descriptor table. One cache line.
	DescriptorSize = CacheLineSize

	// RootCount is the number of slots in the root table.
	RootCount = 1024

	// RootSize is the width of one root slot (an absolute file offset).
	RootSize = 8

	// RootTableOff is where the root table starts, directly after the header page.
	RootTableOff = HeaderSize

	// DescTableOff is where the descriptor table starts.
	DescTableOff = RootTableOff + RootCount*RootSize // 0x3000

	// MaxClasses bounds the size-class table, class 0 included.
	MaxClasses = 32

	// MinBlockSize is the smallest standard block size. A free block stores an
	// 8-byte chain word, and blocks are 16-byte aligned.
	MinBlockSize = 16

	// BlockAlignment is the alignment of every standard block size.
	BlockAlignment = 16

	// BlockAlignmentMask is BlockAlignment - 1.
	BlockAlignmentMask = BlockAlignment - 1

	// PageSize is the dirty-tracking and flush granularity.
	PageSize = 0x1000

	// PageSizeMask is PageSize - 1.
	PageSizeMask = PageSize - 1

	// MaxRegionSize caps the superblock region (1 TiB).
	MaxRegionSize = 1 << 40

	// WordSize is the width of an atomically updated word in the mapping.
	WordSize = 8
)

// Header field offsets.
//
//	Offset  Size  Description
//	------  ----  ----------------------------------------------------------
//	 0x000   4    'r' 'l' 'o' 'c'
//	 0x004   4    Primary sequence number (bumped when a session begins)
//	 0x008   4    Secondary sequence number (set to primary on clean close)
//	 0x00C   4    Layout checksum (CRC32 of 0x020..0x050 and the class table)
//	 0x010   8    Last write timestamp (unix nanoseconds)
//	 0x018   4    Major version
//	 0x01C   4    Minor version
//	 0x020   8    Size of the superblock region in bytes
//	 0x028   4    Superblock size
//	 0x02C   4    Descriptor size
//	 0x030   4    Root count
//	 0x034   4    Number of standard size classes
//	 0x038   8    Descriptor table offset
//	 0x040   8    Superblock table offset
//	 0x048   8    Root table offset
//	 0x100 128    Block size per class (u32 x MaxClasses, entry 0 unused)
//	 0x200   8    Used: bytes carved from the superblock frontier
//	 0x240   8    Superblock free list top
//	 0x400 2048   Partial list tops (one per class, 64-byte stride)
const (
	HdrSignatureOffset     = 0x000
	HdrSignatureSize       = 4
	HdrPrimarySeqOffset    = 0x004
	HdrSecondarySeqOffset  = 0x008
	HdrChecksumOffset      = 0x00C
	HdrTimeStampOffset     = 0x010
	HdrMajorVersionOffset  = 0x018
	HdrMinorVersionOffset  = 0x01C
	HdrSizeOffset          = 0x020
	HdrSuperBlockSizeOff   = 0x028
	HdrDescriptorSizeOff   = 0x02C
	HdrRootCountOffset     = 0x030
	HdrNumClassesOffset    = 0x034
	HdrDescTableOffset     = 0x038
	HdrSuperBlockTableOff  = 0x040
	HdrRootTableOffset     = 0x048
	HdrClassTableOffset    = 0x100
	HdrUsedOffset          = 0x200
	HdrFreeListTopOffset   = 0x240
	HdrPartialTopsOffset   = 0x400
	HdrPartialTopStride    = CacheLineSize
	hdrChecksumRegionStart = HdrSizeOffset
	hdrChecksumRegionEnd   = 0x050
	hdrClassTableLen       = MaxClasses * 4
)

// Descriptor field offsets, relative to the descriptor start.
//
//	Offset  Size  Description
//	------  ----  ----------------------------------------------------------
//	 0x00    8    Anchor (see Anchor)
//	 0x08    8    Next descriptor on the superblock free list (index + 1)
//	 0x10    8    Next descriptor on a partial list (index + 1)
//	 0x18    4    Size class (0 = oversized or uncarved)
//	 0x1C    4    Block size
//	 0x20    4    Blocks per superblock
//	 0x24    4    Superblocks spanned (continuations hold 0)
//	 0x28    4    Head descriptor of a span (index + 1, continuations only)
const (
	DescAnchorOffset      = 0x00
	DescNextFreeOffset    = 0x08
	DescNextPartialOffset = 0x10
	DescSizeClassOffset   = 0x18
	DescBlockSizeOffset   = 0x1C
	DescMaxCountOffset    = 0x20
	DescSpansOffset       = 0x24
	DescHeadOffset        = 0x28
)
