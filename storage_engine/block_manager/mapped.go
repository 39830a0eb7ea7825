package blockmanager

import (
	"os"
	"sync"

	"QuadDB/storage_engine/block"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/types"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DefaultSegmentSize is the target size of one mapping.
const DefaultSegmentSize = 8 << 20

/*
Mapped is the memory-mapped backend.

The file is mapped in fixed-size segments that stay mapped until Close, so
growing the file never moves memory that is already in use. A segment may
reach past the end of the file; only blocks below the file size are ever
touched. Blocks are copied out of and into the mapping, which keeps read-only
blocks from aliasing live pages. Freed blocks carry freeMark, as in File.
*/

type Mapped struct {
	base
	mu          sync.RWMutex
	file        *os.File
	path        string
	segments    [][]byte
	segmentSize int
	next        types.BlockID
}

func OpenMapped(path string, blockSize int, opts ...Option) (*Mapped, error) {
	if err := checkBlockSize(path, blockSize); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open mapped file %s", path)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}
	if stat.Size()%int64(blockSize) != 0 {
		file.Close()
		return nil, errors.Errorf("mapped file %s: size %d is not a multiple of block size %d", path, stat.Size(), blockSize)
	}

	m := &Mapped{
		file:        file,
		path:        path,
		segmentSize: segmentSize(blockSize, unix.Getpagesize()),
		next:        types.BlockID(stat.Size() / int64(blockSize)),
	}
	m.base.init(path, blockSize, opts)
	if err := m.recoverFree(m.next, m.slice); err != nil {
		err = multierr.Append(err, m.unmapLocked())
		file.Close()
		return nil, err
	}
	m.logger.Debug("opened mapped file",
		zap.Int64("blocks", int64(m.next)), zap.Int("segment", m.segmentSize))
	return m, nil
}

// segmentSize is a multiple of both the block size and the OS page size, so
// blocks never straddle segments and mmap offsets stay page aligned.
func segmentSize(blockSize, pageSize int) int {
	unit := blockSize / gcd(blockSize, pageSize) * pageSize
	n := DefaultSegmentSize / unit
	if n < 1 {
		n = 1
	}
	return unit * n
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// slice returns the live mapped bytes of block id, mapping segments as
// needed. Caller holds m.mu for writing if a segment may be added.
func (m *Mapped) slice(id types.BlockID) ([]byte, error) {
	off := int64(id) * int64(m.blockSize)
	seg := int(off / int64(m.segmentSize))
	for len(m.segments) <= seg {
		n := len(m.segments)
		chunk, err := unix.Mmap(int(m.file.Fd()), int64(n)*int64(m.segmentSize), m.segmentSize,
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return nil, errors.Wrapf(err, "mmap segment %d of %s", n, m.path)
		}
		m.segments = append(m.segments, chunk)
	}
	inner := int(off % int64(m.segmentSize))
	return m.segments[seg][inner : inner+m.blockSize], nil
}

func (m *Mapped) Allocate(t types.BlockType) (*block.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, dberrors.ErrClosed
	}
	id, reused, err := m.nextIDLocked(m.next)
	if err != nil {
		return nil, err
	}
	if reused {
		live, err := m.slice(id)
		if err != nil {
			m.free.Add(id)
			return nil, err
		}
		clear(live)
	} else {
		// growing the file zero-fills the new block
		if err := m.file.Truncate(int64(id+1) * int64(m.blockSize)); err != nil {
			return nil, errors.Wrapf(err, "failed to grow %s", m.path)
		}
		m.next++
	}
	m.CheckedOut()
	return block.New(id, t, make([]byte, m.blockSize)), nil
}

func (m *Mapped) get(id types.BlockID, readOnly bool) (*block.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, dberrors.ErrClosed
	}
	if !m.validLocked(id, m.next) {
		return nil, dberrors.NotFound(m.label, id)
	}
	live, err := m.slice(id)
	if err != nil {
		return nil, err
	}
	data := make([]byte, m.blockSize)
	copy(data, live)
	m.CheckedOut()
	if readOnly {
		return block.NewReadOnly(id, types.BlockTypeUnknown, data), nil
	}
	return block.New(id, types.BlockTypeUnknown, data), nil
}

func (m *Mapped) GetRead(id types.BlockID) (*block.Block, error) {
	return m.get(id, true)
}

func (m *Mapped) GetWrite(id types.BlockID) (*block.Block, error) {
	return m.get(id, false)
}

func (m *Mapped) Write(b *block.Block) error {
	if err := m.checkWrite(b); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return dberrors.ErrClosed
	}
	if !m.validLocked(b.ID, m.next) {
		return dberrors.NotFound(m.label, b.ID)
	}
	live, err := m.slice(b.ID)
	if err != nil {
		return err
	}
	copy(live, b.Data)
	return nil
}

func (m *Mapped) Release(b *block.Block) {
	if b != nil {
		m.Returned()
	}
}

func (m *Mapped) Free(id types.BlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return dberrors.ErrClosed
	}
	if !m.validLocked(id, m.next) {
		return dberrors.NotFound(m.label, id)
	}
	live, err := m.slice(id)
	if err != nil {
		return err
	}
	copy(live, freeMark)
	m.free.Add(id)
	return nil
}

func (m *Mapped) Valid(id types.BlockID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed && m.validLocked(id, m.next)
}

func (m *Mapped) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return dberrors.ErrClosed
	}
	return m.syncLocked()
}

func (m *Mapped) syncLocked() error {
	var err error
	for i, seg := range m.segments {
		if serr := unix.Msync(seg, unix.MS_SYNC); serr != nil {
			err = multierr.Append(err, errors.Wrapf(serr, "msync segment %d of %s", i, m.path))
		}
	}
	return err
}

func (m *Mapped) unmapLocked() error {
	var err error
	for i, seg := range m.segments {
		if uerr := unix.Munmap(seg); uerr != nil {
			err = multierr.Append(err, errors.Wrapf(uerr, "munmap segment %d of %s", i, m.path))
		}
	}
	m.segments = nil
	return err
}

func (m *Mapped) Close() error {
	m.CheckQuiescent("close")

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.ReportLeaks()
	m.closed = true

	err := multierr.Append(m.syncLocked(), m.unmapLocked())
	if cerr := m.file.Close(); cerr != nil {
		err = multierr.Append(err, errors.Wrapf(cerr, "failed to close %s", m.path))
	}
	return err
}

func (m *Mapped) TotalBlocks() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(m.next)
}

func (m *Mapped) Path() string {
	return m.path
}
