package blockmanager

import (
	"bytes"
	"io"

	"QuadDB/storage_engine/block"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/types"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// blocks smaller than this cannot hold a page header plus one record.
const minBlockSize = 16

/*
A BlockManager owns one id space of fixed-size blocks and the medium behind it.

Backends:
	Mem     in-memory map, copies in and out (tests, scratch indexes)
	File    os.File ReadAt/WriteAt, next id derived from the file size
	Mapped  mmap'd segments of the file, grown with Truncate

The bufferpool package wraps any of them with a block cache.

Checkout discipline: every block returned by Allocate/GetRead/GetWrite must be
handed back with Release before the owning operation returns. Iterators that
keep a block checked out across calls bracket their lifetime with
BeginIterator/EndIterator so destructive operations can refuse to run under them.
*/

// ############################################# BLOCK MANAGER #############################################

type BlockManager interface {
	// Allocate returns a zeroed writable block with a fresh id.
	Allocate(t types.BlockType) (*block.Block, error)
	// GetRead returns a read-only block. It must not be mutated.
	GetRead(id types.BlockID) (*block.Block, error)
	// GetWrite returns a writable copy; changes are kept only after Write.
	GetWrite(id types.BlockID) (*block.Block, error)
	Write(b *block.Block) error
	Release(b *block.Block)
	Free(id types.BlockID) error
	Valid(id types.BlockID) bool

	BeginIterator(it io.Closer)
	EndIterator(it io.Closer)
	OpenIterators() int
	Checkouts() int
	// CheckQuiescent aborts with a consistency violation if iterators are open.
	CheckQuiescent(op string)

	BlockSize() int
	Label() string
	Sync() error
	Close() error
}

// Option configures a backend at construction.
type Option func(*base)

func WithLogger(l *zap.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// ############################################# BASE #############################################

// base carries what every backend shares. Fields other than the Tracker are
// guarded by the embedding backend's mutex.
type base struct {
	Tracker
	label     string
	blockSize int
	free      *freeList
	logger    *zap.Logger
	closed    bool
}

func (b *base) init(label string, blockSize int, opts []Option) {
	b.label = label
	b.blockSize = blockSize
	b.free = newFreeList()
	b.logger = zap.NewNop()
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("blockmgr").With(zap.String("label", label))
	b.Tracker.Init(label, b.logger)
}

func checkBlockSize(label string, blockSize int) error {
	if blockSize < minBlockSize {
		return dberrors.Capacity("%s: block size %d below minimum %d", label, blockSize, minBlockSize)
	}
	return nil
}

// freeMark is written over the head of a block freed on disk, so the free
// list can be rebuilt when the file is reopened. No page header begins with it.
var freeMark = []byte("QDBFREE\x00")

// recoverFree puts every block below next whose head carries freeMark back on
// the free list.
func (b *base) recoverFree(next types.BlockID, head func(types.BlockID) ([]byte, error)) error {
	for id := types.BlockID(0); id < next; id++ {
		h, err := head(id)
		if err != nil {
			return err
		}
		if bytes.HasPrefix(h, freeMark) {
			b.free.Add(id)
		}
	}
	if n := b.free.Len(); n > 0 {
		b.logger.Debug("recovered free blocks", zap.Int("free", n))
	}
	return nil
}

// validLocked: id lies below next and is not on the free list.
func (b *base) validLocked(id, next types.BlockID) bool {
	return id >= 0 && id < next && !b.free.Has(id)
}

// nextIDLocked picks the id for a new block: lowest freed id, else next.
// reused reports which one it was.
func (b *base) nextIDLocked(next types.BlockID) (id types.BlockID, reused bool, err error) {
	if id, ok := b.free.Take(); ok {
		return id, true, nil
	}
	if next > types.MaxBlockID {
		return 0, false, errors.Errorf("%s: block id space exhausted", b.label)
	}
	return next, false, nil
}

func (b *base) checkWrite(blk *block.Block) error {
	if blk.ReadOnly() {
		dberrors.Fatalf(blk.Ref(), nil, "%s: write of read-only block", b.label)
	}
	if len(blk.Data) != b.blockSize {
		return errors.Errorf("%s: block %d has %d bytes, block size is %d", b.label, blk.ID, len(blk.Data), b.blockSize)
	}
	return nil
}

func (b *base) BlockSize() int {
	return b.blockSize
}

func (b *base) Label() string {
	return b.label
}
