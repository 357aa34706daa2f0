package ralloc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/joshuapare/ralloc/heap"
	"github.com/joshuapare/ralloc/heap/alloc"
	"github.com/joshuapare/ralloc/heap/dirty"
	"github.com/joshuapare/ralloc/heap/tx"
	"github.com/joshuapare/ralloc/internal/format"
)

// Ptr is a non-owning handle to a block: its absolute offset in the heap
// file. Ptrs stay valid across reopen and recovery.
type Ptr uint64

// NilPtr is the null handle. Malloc never returns it.
const NilPtr Ptr = 0

// Heap is a persistent, crash-recoverable heap backed by one mapped file.
//
// Malloc, Free, SetRoot, GetRoot and Bytes are lock-free and safe from any
// number of goroutines. Init, Recover and Close require that no other call is
// in flight.
type Heap struct {
	opts Options
	log  *slog.Logger
	s    atomic.Pointer[session]
}

// session is the state of one open heap file.
type session struct {
	r  *heap.Region
	dt *dirty.Tracker
	tx *tx.Manager
	a  *alloc.Allocator

	dirtyOnOpen bool
	recovered   bool
	report      alloc.RecoveryReport
}

// New returns an unopened heap. Call Init before use.
func New(opts *Options) *Heap {
	h := &Heap{}
	if opts != nil {
		h.opts = *opts
	}
	h.log = h.opts.Logger
	if h.log == nil {
		h.log = slog.New(slog.DiscardHandler)
	}
	return h
}

// Init opens the heap file at path, creating and formatting it with size
// bytes of superblock space when it does not exist. It reports whether the
// file already existed.
//
// An existing file keeps its persisted size; size is only checked against it.
// If the previous session did not close cleanly, Init rebuilds the free lists
// before returning and Recover reports true. From the moment Init returns,
// the file is marked dirty until Close.
func (h *Heap) Init(path string, size int64) (bool, error) {
	if h.s.Load() != nil {
		return false, ErrInitialized
	}

	existed := true
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		existed = false
	} else if err != nil {
		return false, classify("stat "+path, err)
	}

	var r *heap.Region
	var err error
	if existed {
		r, err = heap.Open(path)
	} else {
		r, err = h.create(path, size)
	}
	if err != nil {
		return false, classify("init "+path, err)
	}

	s, err := h.start(r, size, existed)
	if err != nil {
		_ = r.Close()
		return false, err
	}
	h.s.Store(s)
	return existed, nil
}

func (h *Heap) create(path string, size int64) (*heap.Region, error) {
	cfg := alloc.ConfigDefault
	if h.opts.SizeClasses != nil {
		cfg = *h.opts.SizeClasses
	}
	sizes, err := cfg.BlockSizes()
	if err != nil {
		return nil, err
	}
	r, err := heap.Create(path, size, sizes)
	if err != nil {
		return nil, err
	}
	h.log.Info("ralloc: created heap",
		"path", path,
		"size", humanize.IBytes(uint64(r.Layout().Size)),
		"superblocks", r.Layout().Count,
		"classes", cfg.Name,
	)
	return r, nil
}

func (h *Heap) start(r *heap.Region, size int64, existed bool) (*session, error) {
	l := r.Layout()
	if existed {
		h.log.Info("ralloc: opened heap",
			"path", r.Path(),
			"size", humanize.IBytes(uint64(l.Size)),
			"clean", r.IsClean(),
		)
		if size != 0 && !sameLayout(size, l) {
			h.log.Warn("ralloc: requested size differs from persisted size",
				"requested", size, "persisted", l.Size)
		}
	}

	dt := dirty.NewTracker(r)
	a, err := alloc.New(r, dt, h.log)
	if err != nil {
		return nil, classify("open allocator", err)
	}
	s := &session{
		r:           r,
		dt:          dt,
		tx:          tx.NewManager(r, dt, h.opts.FlushMode),
		a:           a,
		dirtyOnOpen: !r.IsClean(),
	}

	if s.dirtyOnOpen {
		h.log.Warn("ralloc: heap was not closed cleanly, recovering",
			"primary", r.PrimarySequence(), "secondary", r.SecondarySequence())
		if err := h.recover(s); err != nil {
			return nil, err
		}
	}

	if err := s.tx.Begin(context.Background()); err != nil {
		return nil, classify("begin session", err)
	}
	return s, nil
}

// Recover rebuilds the allocator lists from the persisted anchors when this
// session opened a heap that was not closed cleanly, and reports whether it
// did. Init has already recovered such a heap; calling Recover again is
// harmless. The caller must quiesce all other heap traffic.
func (h *Heap) Recover() (bool, error) {
	s := h.s.Load()
	if s == nil {
		return false, ErrClosed
	}
	if !s.dirtyOnOpen {
		return false, nil
	}
	if err := h.recover(s); err != nil {
		return false, err
	}
	return true, nil
}

func (h *Heap) recover(s *session) error {
	rep, err := s.a.Recover()
	if err != nil {
		h.log.Error("ralloc: recovery failed", "error", err)
		return classify("recover", err)
	}
	s.recovered = true
	s.report = rep
	attrs := []any{
		"scanned", rep.Scanned,
		"free", rep.Free,
		"partial", rep.Partial,
		"full", rep.Full,
		"large", rep.Large,
		"uncarved", rep.Uncarved,
		"leaked", len(rep.Leaked),
	}
	if rep.Repaired() {
		h.log.Warn("ralloc: recovery quarantined descriptors", attrs...)
		for _, l := range rep.Leaked {
			h.log.Debug("ralloc: quarantined descriptor", "index", l.Index, "reason", l.Reason)
		}
	} else {
		h.log.Info("ralloc: recovery complete", attrs...)
	}
	return nil
}

// RecoveryReport returns the result of the last recovery pass, and false if
// no recovery ran in this session.
func (h *Heap) RecoveryReport() (alloc.RecoveryReport, bool) {
	s := h.s.Load()
	if s == nil || !s.recovered {
		return alloc.RecoveryReport{}, false
	}
	return s.report, true
}

// Close returns every held descriptor to the lists, flushes all modified
// pages, marks the heap clean and unmaps it. The clean marker is the last
// durable write. Closing a closed heap is a no-op.
func (h *Heap) Close() error {
	s := h.s.Swap(nil)
	if s == nil {
		return nil
	}
	s.a.ReleaseAll()
	path := s.r.Path()

	var errs []error
	if err := s.tx.Commit(context.Background()); err != nil {
		errs = append(errs, classify("commit", err))
	}
	if err := s.r.Close(); err != nil {
		errs = append(errs, classify("close", err))
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		h.log.Error("ralloc: close failed", "path", path, "error", err)
		return err
	}
	h.log.Info("ralloc: closed heap", "path", path)
	return nil
}

// Path returns the backing file path, or "" when closed.
func (h *Heap) Path() string {
	s := h.s.Load()
	if s == nil {
		return ""
	}
	return s.r.Path()
}

// sameLayout reports whether a heap created with size bytes would have
// layout l.
func sameLayout(size int64, l format.Layout) bool {
	want, err := format.NewLayout(size)
	return err == nil && want.Size == l.Size
}

func (h *Heap) session() (*session, error) {
	s := h.s.Load()
	if s == nil {
		return nil, ErrClosed
	}
	return s, nil
}

func (p Ptr) String() string {
	return fmt.Sprintf("0x%X", uint64(p))
}
