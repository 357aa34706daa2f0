package heap

import (
	"errors"
	"fmt"
	"time"

	"github.com/joshuapare/ralloc/internal/buf"
	"github.com/joshuapare/ralloc/internal/format"
	"github.com/joshuapare/ralloc/internal/mmfile"
)

// Region is an opened heap file, mapped read-write.
type Region struct {
	mf         *mmfile.File
	data       []byte
	layout     format.Layout
	blockSizes []uint32
}

// Create creates and formats a new heap file of at least size bytes of
// superblock space. blockSizes is the size-class table to persist (entry 0
// unused). The new file is clean.
func Create(path string, size int64, blockSizes []uint32) (*Region, error) {
	l, err := format.NewLayout(size)
	if err != nil {
		return nil, err
	}
	if err := format.ValidateBlockSizes(blockSizes); err != nil {
		return nil, err
	}
	mf, err := mmfile.Create(path, l.FileSize)
	if err != nil {
		return nil, err
	}
	data := mf.Bytes()
	if err := format.WriteHeader(data, l, blockSizes, time.Now()); err != nil {
		_ = mf.Close()
		return nil, err
	}
	return &Region{
		mf:         mf,
		data:       data,
		layout:     l,
		blockSizes: append([]uint32(nil), blockSizes...),
	}, nil
}

// Open maps an existing heap file and validates its header. Any mismatch in
// signature, version, checksum or geometry is reported as ErrCorrupt.
func Open(path string) (*Region, error) {
	mf, err := mmfile.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := validate(mf)
	if err != nil {
		_ = mf.Close()
		return nil, err
	}
	return r, nil
}

func validate(mf *mmfile.File) (*Region, error) {
	data := mf.Bytes()
	hdr, err := format.ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := format.VerifyChecksum(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	l, err := hdr.Layout()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if len(data) < l.FileSize {
		return nil, fmt.Errorf("%w: file is %d bytes, layout needs %d", ErrCorrupt, len(data), l.FileSize)
	}
	if _, err := buf.CheckTable(len(data), l.DescTableOff, l.Count, format.DescriptorSize); err != nil {
		return nil, fmt.Errorf("%w: descriptor table: %w", ErrCorrupt, err)
	}
	used := format.LoadU64(data, format.HdrUsedOffset)
	if used > uint64(l.Size) || used%format.SuperBlockSize != 0 {
		return nil, fmt.Errorf("%w: used %d of %d", ErrCorrupt, used, l.Size)
	}
	return &Region{
		mf:         mf,
		data:       data[:l.FileSize],
		layout:     l,
		blockSizes: hdr.BlockSizes,
	}, nil
}

// Bytes returns the whole mapping.
func (r *Region) Bytes() []byte { return r.data }

// Layout returns the file geometry.
func (r *Region) Layout() format.Layout { return r.layout }

// BlockSizes returns the persisted size-class table. Entry 0 is unused.
func (r *Region) BlockSizes() []uint32 { return r.blockSizes }

// Path returns the backing file path.
func (r *Region) Path() string { return r.mf.Path() }

// FD returns the backing file descriptor, or -1 after Close.
func (r *Region) FD() int {
	if r == nil || r.mf == nil {
		return -1
	}
	return r.mf.FD()
}

// Header parses a snapshot of the header page.
func (r *Region) Header() (format.Header, error) {
	if r.data == nil {
		return format.Header{}, ErrClosed
	}
	return format.ParseHeader(r.data)
}

// Close unmaps and closes the backing file without any flush. Use the tx
// package to mark the heap clean first.
func (r *Region) Close() error {
	if r == nil || r.mf == nil {
		return nil
	}
	err := r.mf.Close()
	r.mf = nil
	r.data = nil
	if err != nil {
		return errors.Join(ErrClosed, err)
	}
	return nil
}
