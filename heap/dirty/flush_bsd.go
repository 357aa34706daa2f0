//go:build freebsd || netbsd || openbsd

package dirty

import (
	"context"

	"golang.org/x/sys/unix"
)

// flushRanges flushes individual dirty ranges to disk.
func (t *Tracker) flushRanges(ctx context.Context, data []byte, ranges []Range) error {
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := int(r.Off)
		end := min(int(r.Off+r.Len), len(data))
		if start >= end {
			continue
		}
		if err := unix.Msync(data[start:end], unix.MS_SYNC); err != nil {
			return err
		}
	}
	return nil
}

// msync flushes a memory region to disk.
func msync(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}

// fdatasync falls back to fsync on the BSDs.
func fdatasync(fd int, _ bool) error {
	return unix.Fsync(fd)
}
