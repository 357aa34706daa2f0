package tx

import (
	"context"
	"fmt"
	"time"

	"github.com/joshuapare/ralloc/heap"
	"github.com/joshuapare/ralloc/heap/dirty"
	"github.com/joshuapare/ralloc/internal/format"
)

// Manager handles the header sequence numbers and orders flushes so the clean
// marker is always the last durable write.
type Manager struct {
	r    *heap.Region           // Region being modified
	dt   dirty.FlushableTracker // Dirty page tracker
	mode dirty.FlushMode        // Flush mode for commits
	seq  uint32                 // Current sequence number
	inTx bool                   // Whether a session is active
	now  func() time.Time
}

// NewManager creates a session manager for the given region.
func NewManager(r *heap.Region, dt dirty.FlushableTracker, mode dirty.FlushMode) *Manager {
	return &Manager{
		r:    r,
		dt:   dt,
		mode: mode,
		now:  time.Now,
	}
}

// Begin starts a session.
//
// This method:
//  1. Reads PrimarySeq and SecondarySeq from the header
//  2. Writes max(Primary, Secondary)+1 as the new PrimarySeq
//  3. Updates the timestamp
//  4. Flushes the header page and syncs the file
//
// From the moment Begin returns, a crash leaves the heap dirty. Calling Begin
// while a session is active is a no-op.
func (m *Manager) Begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.inTx {
		return nil
	}
	if len(m.r.Bytes()) < format.HeaderSize {
		return fmt.Errorf("tx: region too small: %d bytes", len(m.r.Bytes()))
	}

	m.seq = max(m.r.PrimarySequence(), m.r.SecondarySequence()) + 1
	m.r.SetPrimarySequence(m.seq)
	m.r.Touch(m.now())
	m.dt.Add(0, format.HeaderSize)

	// The dirty marker must be durable before the session mutates anything.
	mode := m.mode
	if mode == dirty.FlushDataOnly {
		mode = dirty.FlushAuto
	}
	if err := m.dt.FlushHeaderAndMeta(ctx, mode); err != nil {
		return fmt.Errorf("tx: flush dirty marker: %w", err)
	}
	m.inTx = true
	return nil
}

// Commit ends the session using the ordered flush protocol:
//
//  1. Flush dirty data pages (every page in FlushFull mode)
//  2. Set SecondarySeq = PrimarySeq
//  3. Update timestamp
//  4. Flush header page, then fdatasync per FlushMode
//
// Commit without an active session is a no-op.
func (m *Manager) Commit(ctx context.Context) error {
	if !m.inTx {
		return nil
	}

	flush := m.dt.FlushDataOnly
	if m.mode == dirty.FlushFull {
		flush = m.dt.FlushAll
	}
	if err := flush(ctx); err != nil {
		return fmt.Errorf("tx: flush data pages: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.r.SetSecondarySequence(m.seq)
	m.r.Touch(m.now())
	m.dt.Add(0, format.HeaderSize)

	if err := m.dt.FlushHeaderAndMeta(ctx, m.mode); err != nil {
		return fmt.Errorf("tx: flush header: %w", err)
	}
	m.inTx = false
	return nil
}

// Rollback abandons the session without flushing. The header keeps
// PrimarySeq != SecondarySeq, so the next open treats the heap as dirty.
func (m *Manager) Rollback() {
	m.inTx = false
}

// InTransaction reports whether a session is active.
func (m *Manager) InTransaction() bool {
	return m.inTx
}

// CurrentSequence returns the sequence number of the current session.
func (m *Manager) CurrentSequence() uint32 {
	return m.seq
}
