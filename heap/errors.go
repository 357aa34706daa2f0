package heap

import "errors"

var (
	// ErrCorrupt indicates the header or layout cannot be trusted.
	ErrCorrupt = errors.New("heap: corrupt metadata")
	// ErrRootRange indicates a root index outside the root table.
	ErrRootRange = errors.New("heap: root index out of range")
	// ErrClosed indicates use of a Region after Close.
	ErrClosed = errors.New("heap: region closed")
)
