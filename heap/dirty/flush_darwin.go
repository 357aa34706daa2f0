//go:build darwin

package dirty

import (
	"context"

	"golang.org/x/sys/unix"
)

// flushRanges flushes dirty ranges to disk.
//
// On macOS, msync() requires the address to match the original mmap() address,
// so sub-slices cannot be passed. The whole mapping is flushed; the kernel only
// writes pages that are actually dirty.
func (t *Tracker) flushRanges(ctx context.Context, data []byte, _ []Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return unix.Msync(data, unix.MS_SYNC)
}

// msync flushes a memory region to disk.
func msync(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}

// fdatasync performs file descriptor sync.
//
// If fullfsync is true, F_FULLFSYNC pushes data past the drive cache.
// Otherwise, use regular fsync; macOS has no fdatasync.
func fdatasync(fd int, fullfsync bool) error {
	if fullfsync {
		_, err := unix.FcntlInt(uintptr(fd), unix.F_FULLFSYNC, 0)
		return err
	}
	return unix.Fsync(fd)
}
