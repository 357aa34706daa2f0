package format

import "errors"

var (
	// ErrSignatureMismatch indicates the file does not start with the heap magic.
	ErrSignatureMismatch = errors.New("format: signature mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrUnsupported indicates a version or fixed size this build cannot handle.
	ErrUnsupported = errors.New("format: unsupported layout")
	// ErrChecksum indicates the layout checksum does not match the header.
	ErrChecksum = errors.New("format: layout checksum mismatch")
	// ErrLayoutMismatch indicates stored table offsets disagree with the size.
	ErrLayoutMismatch = errors.New("format: layout mismatch")
	// ErrBadSize indicates a region size that cannot be laid out.
	ErrBadSize = errors.New("format: bad region size")
	// ErrBadClassTable indicates an invalid size-class table.
	ErrBadClassTable = errors.New("format: bad size-class table")
)
