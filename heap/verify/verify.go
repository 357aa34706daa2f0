package verify

import (
	"errors"
	"fmt"

	"github.com/joshuapare/ralloc/internal/format"
)

// ValidationError describes one failed check.
type ValidationError struct {
	Type    string
	Message string
	Offset  int
	Details map[string]any
}

func (e *ValidationError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset 0x%X: %s", e.Type, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// AllInvariants validates every structural invariant in order and returns
// the first error, or nil if all checks pass.
func AllInvariants(data []byte) error {
	checks := []func([]byte) error{
		Header,
		Checksum,
		FileSize,
		Frontier,
		Descriptors,
		Lists,
		Roots,
	}
	for _, check := range checks {
		if err := check(data); err != nil {
			return err
		}
	}
	return nil
}

// All runs every check and returns every failure joined. Checks that depend
// on a readable header are skipped when the header is invalid.
func All(data []byte) error {
	if err := Header(data); err != nil {
		return err
	}
	return errors.Join(
		Checksum(data),
		FileSize(data),
		Frontier(data),
		Descriptors(data),
		Lists(data),
		Roots(data),
	)
}

// Header validates the signature, version, fixed sizes and class table.
func Header(data []byte) error {
	h, err := format.ParseHeader(data)
	if err != nil {
		return &ValidationError{
			Type:    "Header",
			Message: err.Error(),
			Offset:  0,
			Details: map[string]any{"cause": err},
		}
	}
	if _, err := h.Layout(); err != nil {
		return &ValidationError{
			Type:    "Header",
			Message: err.Error(),
			Offset:  format.HdrSizeOffset,
			Details: map[string]any{"size": h.Size, "cause": err},
		}
	}
	return nil
}

// Checksum validates the layout checksum.
func Checksum(data []byte) error {
	if len(data) < format.HeaderSize {
		return tooSmall("Checksum", data)
	}
	calculated := format.Checksum(data)
	stored := format.ReadU32(data, format.HdrChecksumOffset)
	if calculated != stored {
		return &ValidationError{
			Type:    "Checksum",
			Message: fmt.Sprintf("checksum mismatch: calculated=0x%08X, stored=0x%08X", calculated, stored),
			Offset:  format.HdrChecksumOffset,
			Details: map[string]any{
				"calculated": calculated,
				"stored":     stored,
			},
		}
	}
	return nil
}

// FileSize validates that the file holds the whole layout.
func FileSize(data []byte) error {
	v, err := load(data, "FileSize")
	if err != nil {
		return err
	}
	if len(data) != v.l.FileSize {
		return &ValidationError{
			Type: "FileSize",
			Message: fmt.Sprintf(
				"file size mismatch: actual=0x%X, expected=0x%X",
				len(data),
				v.l.FileSize,
			),
			Offset: -1,
			Details: map[string]any{
				"actual":   len(data),
				"expected": v.l.FileSize,
				"region":   v.l.Size,
			},
		}
	}
	return nil
}

// Frontier validates the Used counter.
func Frontier(data []byte) error {
	v, err := load(data, "Frontier")
	if err != nil {
		return err
	}
	used := format.ReadU64(data, format.HdrUsedOffset)
	if used > uint64(v.l.Size) || used%format.SuperBlockSize != 0 {
		return &ValidationError{
			Type:    "Frontier",
			Message: fmt.Sprintf("used 0x%X is not a superblock multiple within 0x%X", used, v.l.Size),
			Offset:  format.HdrUsedOffset,
			Details: map[string]any{"used": used, "size": v.l.Size},
		}
	}
	return nil
}

// SequenceNumbers checks that the heap was closed cleanly.
func SequenceNumbers(data []byte) error {
	if len(data) < format.HeaderSize {
		return tooSmall("SequenceNumbers", data)
	}
	seq1 := format.ReadU32(data, format.HdrPrimarySeqOffset)
	seq2 := format.ReadU32(data, format.HdrSecondarySeqOffset)
	if seq1 != seq2 {
		return &ValidationError{
			Type:    "SequenceNumbers",
			Message: fmt.Sprintf("sequences mismatch (dirty heap): Seq1=0x%X, Seq2=0x%X", seq1, seq2),
			Offset:  format.HdrPrimarySeqOffset,
			Details: map[string]any{
				"primary":   seq1,
				"secondary": seq2,
			},
		}
	}
	return nil
}

func tooSmall(typ string, data []byte) error {
	return &ValidationError{
		Type:    typ,
		Message: fmt.Sprintf("file too small: %d bytes (need %d)", len(data), format.HeaderSize),
		Offset:  -1,
	}
}
