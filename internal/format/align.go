package format

// Alignment utilities for the heap layout.

// AlignBlock returns n aligned up to the next 16-byte boundary.
//
// Example:
//
//	AlignBlock(1)  = 16
//	AlignBlock(16) = 16
//	AlignBlock(17) = 32
func AlignBlock(n int) int {
	return (n + BlockAlignmentMask) & ^BlockAlignmentMask
}

// AlignPage returns n aligned up to the next 4KB boundary.
func AlignPage(n int) int {
	return (n + PageSizeMask) & ^PageSizeMask
}

// AlignSuperBlock returns n aligned up to the next superblock boundary.
func AlignSuperBlock(n int) int {
	return (n + SuperBlockSize - 1) &^ (SuperBlockSize - 1)
}

// PageFloor rounds n down to a page boundary.
func PageFloor(n int) int {
	return n &^ PageSizeMask
}
