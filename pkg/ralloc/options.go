package ralloc

import (
	"log/slog"

	"github.com/joshuapare/ralloc/heap/alloc"
	"github.com/joshuapare/ralloc/heap/dirty"
)

// Options configures a Heap. The zero value is usable.
type Options struct {
	// SizeClasses is the size-class ladder for newly created heaps. An
	// existing heap always uses the ladder persisted in its header.
	// If nil, alloc.ConfigDefault is used.
	SizeClasses *alloc.SizeClassConfig

	// FlushMode controls how Close makes the heap durable.
	// Default: dirty.FlushAuto
	FlushMode dirty.FlushMode

	// Logger receives open, recovery and close events. If nil, logs are
	// discarded.
	Logger *slog.Logger
}

// FlushMode values, re-exported for convenience.
const (
	FlushAuto     = dirty.FlushAuto
	FlushDataOnly = dirty.FlushDataOnly
	FlushFull     = dirty.FlushFull
)
