package format

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/joshuapare/ralloc/internal/buf"
)

// Header captures the fixed part of the header page. Mutable shared words (Used
// and the list tops) are not part of it; they are accessed atomically in place.
type Header struct {
	PrimarySequence   uint32
	SecondarySequence uint32
	Checksum          uint32
	LastWriteRaw      uint64
	MajorVersion      uint32
	MinorVersion      uint32
	Size              uint64
	SuperBlockSize    uint32
	DescriptorSize    uint32
	RootCount         uint32
	NumClasses        uint32
	DescTableOff      uint64
	SuperBlockOff     uint64
	RootTableOff      uint64

	// BlockSizes holds NumClasses+1 entries; entry 0 (oversized) is zero.
	BlockSizes []uint32
}

// ParseHeader validates the signature and version and extracts the header fields.
// It does not check the layout; see Header.Layout and VerifyChecksum.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("header: %w", ErrTruncated)
	}
	if !bytes.Equal(b[HdrSignatureOffset:HdrSignatureOffset+HdrSignatureSize], Signature) {
		return Header{}, fmt.Errorf("header: %w", ErrSignatureMismatch)
	}
	h := Header{
		PrimarySequence:   buf.U32LE(b[HdrPrimarySeqOffset:]),
		SecondarySequence: buf.U32LE(b[HdrSecondarySeqOffset:]),
		Checksum:          buf.U32LE(b[HdrChecksumOffset:]),
		LastWriteRaw:      buf.U64LE(b[HdrTimeStampOffset:]),
		MajorVersion:      buf.U32LE(b[HdrMajorVersionOffset:]),
		MinorVersion:      buf.U32LE(b[HdrMinorVersionOffset:]),
		Size:              buf.U64LE(b[HdrSizeOffset:]),
		SuperBlockSize:    buf.U32LE(b[HdrSuperBlockSizeOff:]),
		DescriptorSize:    buf.U32LE(b[HdrDescriptorSizeOff:]),
		RootCount:         buf.U32LE(b[HdrRootCountOffset:]),
		NumClasses:        buf.U32LE(b[HdrNumClassesOffset:]),
		DescTableOff:      buf.U64LE(b[HdrDescTableOffset:]),
		SuperBlockOff:     buf.U64LE(b[HdrSuperBlockTableOff:]),
		RootTableOff:      buf.U64LE(b[HdrRootTableOffset:]),
	}
	if h.MajorVersion != MajorVersion {
		return Header{}, fmt.Errorf("header: major version %d: %w", h.MajorVersion, ErrUnsupported)
	}
	if h.SuperBlockSize != SuperBlockSize || h.DescriptorSize != DescriptorSize || h.RootCount != RootCount {
		return Header{}, fmt.Errorf(
			"header: superblock=%d descriptor=%d roots=%d: %w",
			h.SuperBlockSize, h.DescriptorSize, h.RootCount, ErrUnsupported,
		)
	}
	if h.NumClasses == 0 || h.NumClasses >= MaxClasses {
		return Header{}, fmt.Errorf("header: %d classes: %w", h.NumClasses, ErrBadClassTable)
	}
	h.BlockSizes = make([]uint32, h.NumClasses+1)
	for sc := 1; sc <= int(h.NumClasses); sc++ {
		h.BlockSizes[sc] = buf.U32LE(b[HdrClassTableOffset+sc*4:])
	}
	if err := ValidateBlockSizes(h.BlockSizes); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Layout recomputes the geometry from Size and checks it against the stored
// table offsets.
func (h Header) Layout() (Layout, error) {
	l, err := NewLayout(int64(h.Size))
	if err != nil {
		return Layout{}, err
	}
	if uint64(l.Size) != h.Size ||
		uint64(l.DescTableOff) != h.DescTableOff ||
		uint64(l.SuperBlockOff) != h.SuperBlockOff ||
		uint64(l.RootTableOff) != h.RootTableOff {
		return Layout{}, fmt.Errorf(
			"header: size=%d desc=0x%X sb=0x%X roots=0x%X: %w",
			h.Size, h.DescTableOff, h.SuperBlockOff, h.RootTableOff, ErrLayoutMismatch,
		)
	}
	return l, nil
}

// IsClean reports whether the last session closed the heap cleanly.
func (h Header) IsClean() bool { return h.PrimarySequence == h.SecondarySequence }

// LastWrite returns the last write timestamp.
func (h Header) LastWrite() time.Time { return time.Unix(0, int64(h.LastWriteRaw)) }

// ValidateBlockSizes checks a class table: entry 0 unused, strictly increasing,
// aligned, and every class holding at least one block per superblock.
func ValidateBlockSizes(sizes []uint32) error {
	if len(sizes) < 2 || len(sizes) > MaxClasses {
		return fmt.Errorf("class table: %d entries: %w", len(sizes), ErrBadClassTable)
	}
	if sizes[0] != 0 {
		return fmt.Errorf("class table: entry 0 = %d: %w", sizes[0], ErrBadClassTable)
	}
	prev := uint32(0)
	for sc := 1; sc < len(sizes); sc++ {
		s := sizes[sc]
		if s < MinBlockSize || s%BlockAlignment != 0 || s > SuperBlockSize || s <= prev {
			return fmt.Errorf("class table: class %d size %d: %w", sc, s, ErrBadClassTable)
		}
		prev = s
	}
	return nil
}

// WriteHeader formats a fresh header page for layout l and class table sizes.
// Both sequence numbers start at 1 (clean).
func WriteHeader(b []byte, l Layout, sizes []uint32, now time.Time) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("header: %w", ErrTruncated)
	}
	if err := ValidateBlockSizes(sizes); err != nil {
		return err
	}
	clear(b[:HeaderSize])
	copy(b[HdrSignatureOffset:], Signature)
	PutU32(b, HdrPrimarySeqOffset, 1)
	PutU32(b, HdrSecondarySeqOffset, 1)
	PutU64(b, HdrTimeStampOffset, uint64(now.UnixNano()))
	PutU32(b, HdrMajorVersionOffset, MajorVersion)
	PutU32(b, HdrMinorVersionOffset, MinorVersion)
	PutU64(b, HdrSizeOffset, uint64(l.Size))
	PutU32(b, HdrSuperBlockSizeOff, SuperBlockSize)
	PutU32(b, HdrDescriptorSizeOff, DescriptorSize)
	PutU32(b, HdrRootCountOffset, RootCount)
	PutU32(b, HdrNumClassesOffset, uint32(len(sizes)-1))
	PutU64(b, HdrDescTableOffset, uint64(l.DescTableOff))
	PutU64(b, HdrSuperBlockTableOff, uint64(l.SuperBlockOff))
	PutU64(b, HdrRootTableOffset, uint64(l.RootTableOff))
	for sc := 1; sc < len(sizes); sc++ {
		PutU32(b, HdrClassTableOffset+sc*4, sizes[sc])
	}
	PutU32(b, HdrChecksumOffset, Checksum(b))
	return nil
}

// Checksum computes the layout checksum: CRC32-IEEE over the immutable layout
// fields and the class table.
func Checksum(b []byte) uint32 {
	c := crc32.NewIEEE()
	_, _ = c.Write(b[hdrChecksumRegionStart:hdrChecksumRegionEnd])
	_, _ = c.Write(b[HdrClassTableOffset : HdrClassTableOffset+hdrClassTableLen])
	return c.Sum32()
}

// VerifyChecksum compares the stored layout checksum against the header bytes.
func VerifyChecksum(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("header: %w", ErrTruncated)
	}
	if stored, got := ReadU32(b, HdrChecksumOffset), Checksum(b); stored != got {
		return fmt.Errorf("header: stored 0x%08X computed 0x%08X: %w", stored, got, ErrChecksum)
	}
	return nil
}
