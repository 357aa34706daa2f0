package heap

import (
	"time"

	"github.com/joshuapare/ralloc/internal/format"
)

// Header words that change at run time. All access is atomic.

// PrimarySequence returns the primary sequence number.
func (r *Region) PrimarySequence() uint32 {
	return format.LoadU32(r.data, format.HdrPrimarySeqOffset)
}

// SecondarySequence returns the secondary sequence number.
func (r *Region) SecondarySequence() uint32 {
	return format.LoadU32(r.data, format.HdrSecondarySeqOffset)
}

// SetPrimarySequence stores the primary sequence number.
func (r *Region) SetPrimarySequence(v uint32) {
	format.StoreU32(r.data, format.HdrPrimarySeqOffset, v)
}

// SetSecondarySequence stores the secondary sequence number.
func (r *Region) SetSecondarySequence(v uint32) {
	format.StoreU32(r.data, format.HdrSecondarySeqOffset, v)
}

// IsClean reports whether the sequence numbers match.
func (r *Region) IsClean() bool {
	return r.PrimarySequence() == r.SecondarySequence()
}

// Touch stores t as the last-write timestamp.
func (r *Region) Touch(t time.Time) {
	format.StoreU64(r.data, format.HdrTimeStampOffset, uint64(t.UnixNano()))
}

// Used returns the number of superblock bytes carved from the frontier.
func (r *Region) Used() uint64 {
	return format.LoadU64(r.data, format.HdrUsedOffset)
}

// UsedWord returns the frontier counter for CAS.
func (r *Region) UsedWord() *uint64 {
	return format.Word(r.data, format.HdrUsedOffset)
}

// FreeListTop returns the superblock free list top word.
func (r *Region) FreeListTop() *uint64 {
	return format.Word(r.data, format.HdrFreeListTopOffset)
}

// PartialTop returns the partial list top word for class sc.
func (r *Region) PartialTop(sc int) *uint64 {
	return format.Word(r.data, format.HdrPartialTopsOffset+sc*format.HdrPartialTopStride)
}
