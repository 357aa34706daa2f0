package format

import "fmt"

// State is the lifecycle state of a superblock as recorded in its anchor.
type State uint8

const (
	// StateUninit marks a descriptor that has never been carved, or one that is
	// being carved right now. No block of it is reachable by a caller.
	StateUninit State = 0
	// StateEmpty: every block is free.
	StateEmpty State = 1
	// StatePartial: some blocks are free.
	StatePartial State = 2
	// StateFull: no block is free.
	StateFull State = 3
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateEmpty:
		return "empty"
	case StatePartial:
		return "partial"
	case StateFull:
		return "full"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// StateFor derives the state a superblock must be in for the given free count.
func StateFor(count, maxCount uint32) State {
	switch {
	case count == 0:
		return StateFull
	case count >= maxCount:
		return StateEmpty
	default:
		return StatePartial
	}
}

// Anchor is the packed word that records a superblock's free-chain head, free
// block count and state. All three fields move together through one CAS.
//
//	bits  0..15  free block index (NoBlock terminates the chain)
//	bits 16..31  free block count
//	bits 32..33  state
//	bits 34..63  tag, incremented on every successful update
type Anchor uint64

const (
	// NoBlock terminates a superblock's free chain.
	NoBlock = 0xFFFF

	// MaxBlocksPerSuperBlock is the largest block count an anchor can describe.
	MaxBlocksPerSuperBlock = SuperBlockSize / MinBlockSize

	anchorAvailMask  = 0xFFFF
	anchorCountShift = 16
	anchorCountMask  = 0xFFFF
	anchorStateShift = 32
	anchorStateMask  = 0x3
	anchorTagShift   = 34
	anchorTagMask    = 1<<30 - 1
)

// MakeAnchor packs the anchor fields.
func MakeAnchor(avail, count uint32, state State, tag uint32) Anchor {
	return Anchor(uint64(avail&anchorAvailMask) |
		uint64(count&anchorCountMask)<<anchorCountShift |
		uint64(state&anchorStateMask)<<anchorStateShift |
		uint64(tag&anchorTagMask)<<anchorTagShift)
}

// Avail returns the index of the first free block.
func (a Anchor) Avail() uint32 { return uint32(a) & anchorAvailMask }

// Count returns the number of free blocks.
func (a Anchor) Count() uint32 { return uint32(a>>anchorCountShift) & anchorCountMask }

// State returns the lifecycle state.
func (a Anchor) State() State { return State(uint32(a>>anchorStateShift) & anchorStateMask) }

// Tag returns the update counter.
func (a Anchor) Tag() uint32 { return uint32(a>>anchorTagShift) & anchorTagMask }

// Next returns the successor anchor with the given head and count, the state
// recomputed from the count and the tag advanced.
func (a Anchor) Next(avail, count, maxCount uint32) Anchor {
	return MakeAnchor(avail, count, StateFor(count, maxCount), a.Tag()+1)
}

// Consistent reports whether the count and state agree with each other for a
// superblock holding maxCount blocks.
func (a Anchor) Consistent(maxCount uint32) bool {
	if a.Count() > maxCount {
		return false
	}
	return a.State() == StateFor(a.Count(), maxCount)
}

func (a Anchor) String() string {
	return fmt.Sprintf("anchor{avail=%d count=%d state=%s tag=%d}", a.Avail(), a.Count(), a.State(), a.Tag())
}

// Top is a Treiber stack head: a descriptor reference paired with a generation
// counter. Both halves are replaced by a single CAS, so a descriptor that is
// popped and pushed back between a reader's load and its CAS changes the word.
//
//	bits  0..31  descriptor index + 1 (0 = empty)
//	bits 32..63  generation
type Top uint64

// MakeTop packs a descriptor reference and a generation.
func MakeTop(ref, gen uint32) Top {
	return Top(uint64(ref) | uint64(gen)<<32)
}

// Ref returns the descriptor reference (index + 1, 0 = empty).
func (t Top) Ref() uint32 { return uint32(t) }

// Gen returns the generation.
func (t Top) Gen() uint32 { return uint32(t >> 32) }
