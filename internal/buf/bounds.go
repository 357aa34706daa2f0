package buf

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrOverflow indicates offset arithmetic that does not fit in an int.
	ErrOverflow = errors.New("buf: offset overflow")
	// ErrOutOfBounds indicates a table that extends past the buffer.
	ErrOutOfBounds = errors.New("buf: out of bounds")
)

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// MulOverflowSafe multiplies two non-negative ints, returning ok = false on
// overflow or a negative operand.
func MulOverflowSafe(a, b int) (int, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a != 0 && b > math.MaxInt/a {
		return 0, false
	}
	return a * b, true
}

// CheckTable validates that count entries of entrySize bytes starting at off
// fit in a buffer of bufLen bytes, and returns the end offset.
//
//	end, err := buf.CheckTable(len(data), l.DescTableOff, l.Count, format.DescriptorSize)
func CheckTable(bufLen, off, count, entrySize int) (int, error) {
	if off < 0 || count < 0 || entrySize < 0 {
		return 0, fmt.Errorf("off=%d count=%d size=%d: %w", off, count, entrySize, ErrOutOfBounds)
	}
	total, ok := MulOverflowSafe(count, entrySize)
	if !ok {
		return 0, fmt.Errorf("count=%d * size=%d: %w", count, entrySize, ErrOverflow)
	}
	end, ok := AddOverflowSafe(off, total)
	if !ok {
		return 0, fmt.Errorf("off=%d + %d: %w", off, total, ErrOverflow)
	}
	if end > bufLen {
		return 0, fmt.Errorf("end=%d > len=%d: %w", end, bufLen, ErrOutOfBounds)
	}
	return end, nil
}
