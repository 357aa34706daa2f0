//go:build windows

package dirty

import (
	"context"
	"unsafe"

	"golang.org/x/sys/windows"
)

// flushRanges flushes each dirty range with FlushViewOfFile.
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
		if err := msync(data[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// msync performs memory sync for the given byte slice using FlushViewOfFile.
func msync(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&data[0]))
	return windows.FlushViewOfFile(addr, uintptr(len(data)))
}

// fdatasync performs file descriptor sync using FlushFileBuffers.
// The fullfsync parameter is ignored on Windows.
func fdatasync(fd int, _ bool) error {
	return windows.FlushFileBuffers(windows.Handle(fd))
}
