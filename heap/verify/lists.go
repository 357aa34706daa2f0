package verify

import (
	"fmt"

	"github.com/joshuapare/ralloc/internal/format"
)

// Lists validates the superblock free list and every partial list: no cycles,
// no descriptor on two lists, free entries Empty, partial entries of the
// list's class and not Full.
func Lists(data []byte) error {
	v, err := load(data, "Lists")
	if err != nil {
		return err
	}
	owner := make(map[int]string, v.count)

	err = v.walk("free list", format.HdrFreeListTopOffset, format.DescNextFreeOffset, owner, func(d int) error {
		an := v.anchor(d)
		if an.State() != format.StateEmpty {
			return v.listErr("free list", d, "holds a %s descriptor", an.State())
		}
		if v.field(d, format.DescSpansOffset) != 1 {
			return v.listErr("free list", d, "holds a multi-superblock run")
		}
		return nil
	})
	if err != nil {
		return err
	}

	for sc := 1; sc < len(v.h.BlockSizes); sc++ {
		name := fmt.Sprintf("partial list %d", sc)
		top := format.HdrPartialTopsOffset + sc*format.HdrPartialTopStride
		err := v.walk(name, top, format.DescNextPartialOffset, owner, func(d int) error {
			if got := v.field(d, format.DescSizeClassOffset); got != uint32(sc) {
				return v.listErr(name, d, "holds class %d", got)
			}
			if st := v.anchor(d).State(); st != format.StatePartial && st != format.StateEmpty {
				return v.listErr(name, d, "holds a %s descriptor", st)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (v *view) walk(name string, topOff, linkOff int, owner map[int]string, check func(d int) error) error {
	ref := format.Top(format.ReadU64(v.data, topOff)).Ref()
	for ref != 0 {
		d := int(ref) - 1
		if d >= v.count {
			return &ValidationError{
				Type:    "Lists",
				Message: fmt.Sprintf("%s: reference %d beyond the frontier (%d)", name, ref, v.count),
				Offset:  topOff,
			}
		}
		if prev, dup := owner[d]; dup {
			return v.listErr(name, d, "already on %s", prev)
		}
		owner[d] = name
		if err := check(d); err != nil {
			return err
		}
		ref = v.link(d, linkOff)
	}
	return nil
}

func (v *view) listErr(name string, d int, msg string, args ...any) error {
	return &ValidationError{
		Type:    "Lists",
		Message: fmt.Sprintf("%s: descriptor %d ", name, d) + fmt.Sprintf(msg, args...),
		Offset:  v.l.Descriptor(d),
		Details: map[string]any{"list": name, "index": d},
	}
}

// Roots validates that every set root points inside the carved part of the
// superblock table.
func Roots(data []byte) error {
	v, err := load(data, "Roots")
	if err != nil {
		return err
	}
	for i := range format.RootCount {
		off := v.l.Root(i)
		p := format.ReadU64(data, off)
		if p == 0 {
			continue
		}
		d, ok := v.l.IndexOf(int(min(p, uint64(v.l.FileSize))))
		if !ok || d >= v.count {
			return &ValidationError{
				Type:    "Roots",
				Message: fmt.Sprintf("root %d = 0x%X outside the carved superblock table", i, p),
				Offset:  off,
				Details: map[string]any{"root": i, "ptr": p},
			}
		}
	}
	return nil
}
