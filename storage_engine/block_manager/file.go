package blockmanager

import (
	"io"
	"os"
	"sync"

	"QuadDB/storage_engine/block"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/types"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

/*
File is the direct file-channel backend.

Block id N lives at byte offset N*blockSize. The file length is always a whole
number of blocks, so the next fresh id is derived from it when the file is
reopened. Free stamps freeMark over the head of the block; reopening scans
for it to rebuild the free list.
*/

type File struct {
	base
	mu   sync.RWMutex
	file *os.File
	path string
	next types.BlockID
}

// OpenFile opens or creates the block file at path.
func OpenFile(path string, blockSize int, opts ...Option) (*File, error) {
	if err := checkBlockSize(path, blockSize); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open block file %s", path)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "failed to stat block file %s", path)
	}
	if stat.Size()%int64(blockSize) != 0 {
		file.Close()
		return nil, errors.Errorf("block file %s: size %d is not a multiple of block size %d", path, stat.Size(), blockSize)
	}

	f := &File{
		file: file,
		path: path,
		next: types.BlockID(stat.Size() / int64(blockSize)),
	}
	f.base.init(path, blockSize, opts)
	head := make([]byte, len(freeMark))
	err = f.recoverFree(f.next, func(id types.BlockID) ([]byte, error) {
		_, err := f.file.ReadAt(head, f.offset(id))
		return head, errors.Wrapf(err, "failed to read block %d of %s", id, path)
	})
	if err != nil {
		file.Close()
		return nil, err
	}
	f.logger.Debug("opened block file", zap.Int64("blocks", int64(f.next)))
	return f, nil
}

func (f *File) offset(id types.BlockID) int64 {
	return int64(id) * int64(f.blockSize)
}

// Allocate zero-fills the block on disk right away so the file never has a
// partial tail.
func (f *File) Allocate(t types.BlockType) (*block.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, dberrors.ErrClosed
	}
	id, reused, err := f.nextIDLocked(f.next)
	if err != nil {
		return nil, err
	}

	empty := make([]byte, f.blockSize)
	if _, err := f.file.WriteAt(empty, f.offset(id)); err != nil {
		if reused {
			f.free.Add(id)
		}
		return nil, errors.Wrapf(err, "failed to allocate block %d", id)
	}
	if !reused {
		f.next++
	}
	f.CheckedOut()
	return block.New(id, t, make([]byte, f.blockSize)), nil
}

func (f *File) get(id types.BlockID, readOnly bool) (*block.Block, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, dberrors.ErrClosed
	}
	if !f.validLocked(id, f.next) {
		return nil, dberrors.NotFound(f.label, id)
	}

	data := make([]byte, f.blockSize)
	n, err := f.file.ReadAt(data, f.offset(id))
	if err != nil && !(errors.Is(err, io.EOF) && n == f.blockSize) {
		return nil, errors.Wrapf(err, "failed to read block %d from %s", id, f.path)
	}
	f.CheckedOut()
	if readOnly {
		return block.NewReadOnly(id, types.BlockTypeUnknown, data), nil
	}
	return block.New(id, types.BlockTypeUnknown, data), nil
}

func (f *File) GetRead(id types.BlockID) (*block.Block, error) {
	return f.get(id, true)
}

func (f *File) GetWrite(id types.BlockID) (*block.Block, error) {
	return f.get(id, false)
}

func (f *File) Write(b *block.Block) error {
	if err := f.checkWrite(b); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return dberrors.ErrClosed
	}
	if !f.validLocked(b.ID, f.next) {
		return dberrors.NotFound(f.label, b.ID)
	}
	if _, err := f.file.WriteAt(b.Data, f.offset(b.ID)); err != nil {
		return errors.Wrapf(err, "failed to write block %d to %s", b.ID, f.path)
	}
	return nil
}

func (f *File) Release(b *block.Block) {
	if b != nil {
		f.Returned()
	}
}

func (f *File) Free(id types.BlockID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return dberrors.ErrClosed
	}
	if !f.validLocked(id, f.next) {
		return dberrors.NotFound(f.label, id)
	}
	if _, err := f.file.WriteAt(freeMark, f.offset(id)); err != nil {
		return errors.Wrapf(err, "failed to free block %d in %s", id, f.path)
	}
	f.free.Add(id)
	return nil
}

func (f *File) Valid(id types.BlockID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return !f.closed && f.validLocked(id, f.next)
}

func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return dberrors.ErrClosed
	}
	return errors.Wrapf(f.file.Sync(), "failed to sync %s", f.path)
}

func (f *File) Close() error {
	f.CheckQuiescent("close")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.ReportLeaks()
	f.closed = true

	var err error
	if serr := f.file.Sync(); serr != nil {
		err = multierr.Append(err, errors.Wrap(serr, "failed to sync before close"))
	}
	if cerr := f.file.Close(); cerr != nil {
		err = multierr.Append(err, errors.Wrapf(cerr, "failed to close %s", f.path))
	}
	f.logger.Debug("closed block file", zap.Int64("blocks", int64(f.next)))
	return err
}

// TotalBlocks is the high-water mark of allocated ids.
func (f *File) TotalBlocks() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(f.next)
}

func (f *File) Path() string {
	return f.path
}
