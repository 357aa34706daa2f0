package verify

import (
	"fmt"

	"github.com/joshuapare/ralloc/internal/format"
)

// view is a parsed header plus the derived geometry the checks share.
type view struct {
	data  []byte
	h     format.Header
	l     format.Layout
	count int // descriptors below the frontier
}

func load(data []byte, typ string) (*view, error) {
	h, err := format.ParseHeader(data)
	if err != nil {
		return nil, &ValidationError{Type: typ, Message: "unreadable header: " + err.Error(), Offset: 0}
	}
	l, err := h.Layout()
	if err != nil {
		return nil, &ValidationError{Type: typ, Message: "bad layout: " + err.Error(), Offset: format.HdrSizeOffset}
	}
	if len(data) < l.FileSize {
		return nil, &ValidationError{
			Type:    typ,
			Message: fmt.Sprintf("file truncated: %d bytes, layout needs %d", len(data), l.FileSize),
			Offset:  -1,
		}
	}
	used := format.ReadU64(data, format.HdrUsedOffset)
	count := int(min(used, uint64(l.Size)) / format.SuperBlockSize)
	return &view{data: data, h: h, l: l, count: count}, nil
}

func (v *view) anchor(d int) format.Anchor {
	return format.Anchor(format.ReadU64(v.data, v.l.Descriptor(d)+format.DescAnchorOffset))
}

func (v *view) field(d, off int) uint32 {
	return format.ReadU32(v.data, v.l.Descriptor(d)+off)
}

func (v *view) link(d, off int) uint32 {
	return uint32(format.ReadU64(v.data, v.l.Descriptor(d)+off))
}

func (v *view) descErr(d int, msg string, args ...any) error {
	an := v.anchor(d)
	return &ValidationError{
		Type:    "Descriptors",
		Message: fmt.Sprintf("descriptor %d: ", d) + fmt.Sprintf(msg, args...),
		Offset:  v.l.Descriptor(d),
		Details: map[string]any{
			"index":      d,
			"anchor":     uint64(an),
			"state":      an.State().String(),
			"size_class": v.field(d, format.DescSizeClassOffset),
		},
	}
}

// Descriptors validates every descriptor: anchor invariants, carve geometry
// against the class table, free chains, and large-run structure. Descriptors
// above the frontier must never have been written.
func Descriptors(data []byte) error {
	v, err := load(data, "Descriptors")
	if err != nil {
		return err
	}
	for d := range v.count {
		if err := v.checkDescriptor(d); err != nil {
			return err
		}
	}
	for d := v.count; d < v.l.Count; d++ {
		if an := v.anchor(d); an != 0 {
			return v.descErr(d, "written above the frontier: %s", an)
		}
	}
	return nil
}

func (v *view) checkDescriptor(d int) error {
	an := v.anchor(d)
	if an.State() == format.StateUninit {
		// Carve interrupted by a crash; recovery frees it.
		return nil
	}
	sc := v.field(d, format.DescSizeClassOffset)
	bs := v.field(d, format.DescBlockSizeOffset)
	maxCount := v.field(d, format.DescMaxCountOffset)
	spans := v.field(d, format.DescSpansOffset)
	head := v.field(d, format.DescHeadOffset)

	if sc == 0 {
		if bs != format.SuperBlockSize || maxCount != 1 {
			return v.descErr(d, "large geometry %d/%d", bs, maxCount)
		}
		if !an.Consistent(1) {
			return v.descErr(d, "inconsistent anchor %s", an)
		}
		if spans == 0 {
			return v.checkContinuation(d, head)
		}
		if head != 0 {
			return v.descErr(d, "head field %d on a run head", head)
		}
		if spans > 1 && an.State() != format.StateFull {
			return v.descErr(d, "freed run of %d still spans", spans)
		}
		if d+int(spans) > v.count {
			return v.descErr(d, "run of %d crosses the frontier", spans)
		}
		return nil
	}

	if int(sc) >= len(v.h.BlockSizes) {
		return v.descErr(d, "size class %d out of range", sc)
	}
	if bs != v.h.BlockSizes[sc] || maxCount != format.SuperBlockSize/bs {
		return v.descErr(d, "geometry %d/%d does not match class %d", bs, maxCount, sc)
	}
	if spans != 1 || head != 0 {
		return v.descErr(d, "span fields %d/%d on a small superblock", spans, head)
	}
	if !an.Consistent(maxCount) {
		return v.descErr(d, "inconsistent anchor %s", an)
	}
	return v.checkChain(d, bs, maxCount, an)
}

func (v *view) checkContinuation(d int, head uint32) error {
	if head == 0 || int(head) > d {
		return v.descErr(d, "continuation with head %d", head)
	}
	h := int(head) - 1
	an := v.anchor(h)
	spans := v.field(h, format.DescSpansOffset)
	if v.field(h, format.DescSizeClassOffset) != 0 || an.State() != format.StateFull || h+int(spans) <= d {
		return v.descErr(d, "continuation not covered by a live run at %d", h)
	}
	if v.anchor(d).State() != format.StateFull {
		return v.descErr(d, "continuation not full")
	}
	return nil
}

func (v *view) checkChain(d int, bs, maxCount uint32, an format.Anchor) error {
	base := v.l.SuperBlock(d)
	seen := make([]bool, maxCount)
	idx := uint64(an.Avail())
	for i := uint32(0); i < an.Count(); i++ {
		if idx >= uint64(maxCount) {
			return v.descErr(d, "chain link %d out of range at step %d", idx, i)
		}
		if seen[idx] {
			return v.descErr(d, "chain revisits block %d", idx)
		}
		seen[idx] = true
		idx = format.ReadU64(v.data, base+int(idx)*int(bs))
	}
	if idx != format.NoBlock {
		return v.descErr(d, "chain continues past count %d", an.Count())
	}
	return nil
}
