package bufferpool

import (
	"QuadDB/storage_engine/block"
	blockmanager "QuadDB/storage_engine/block_manager"
	"QuadDB/types"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

/*
This file is the main file of the bufferpool.

Reads go to the cache first; on a miss the block is read from the base
manager, released there straight away, and a copy is offered to the cache.
Writes and frees go to the base manager and then invalidate the cached image.
Invalidation waits for ristretto's set buffer to drain so an older image still
in flight can never be applied after the write.

Blocks are identified by their id in the base manager.
*/

// New wraps base with a cache of at most capacity blocks.
func New(base blockmanager.BlockManager, capacity int, logger *zap.Logger) (*BufferPool, error) {
	if capacity < 1 {
		return nil, errors.Errorf("bufferpool: capacity must be positive, got %d", capacity)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("bufferpool").With(zap.String("label", base.Label()))

	cache, err := ristretto.NewCache(&ristretto.Config[int64, []byte]{
		NumCounters:        int64(capacity) * 10,
		MaxCost:            int64(capacity),
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "bufferpool: create cache")
	}

	bp := &BufferPool{
		base:     base,
		cache:    cache,
		capacity: capacity,
		logger:   logger,
	}
	bp.Tracker.Init(base.Label()+"#pool", logger)
	return bp, nil
}

func (bp *BufferPool) Allocate(t types.BlockType) (*block.Block, error) {
	b, err := bp.base.Allocate(t)
	if err != nil {
		return nil, err
	}
	id := b.ID
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	bp.base.Release(b)

	// the id may be a reused one with a stale image
	bp.invalidate(id)
	bp.CheckedOut()
	return block.New(id, t, data), nil
}

// fetch returns a private copy of the block's bytes, loading from the base on a miss.
func (bp *BufferPool) fetch(id types.BlockID) ([]byte, error) {
	if data, ok := bp.cache.Get(int64(id)); ok {
		bp.hits.Add(1)
		return clone(data), nil
	}
	bp.misses.Add(1)

	b, err := bp.base.GetRead(id)
	if err != nil {
		return nil, err
	}
	out := clone(b.Data)
	bp.base.Release(b)

	bp.cache.Set(int64(id), clone(out), 1)
	return out, nil
}

func (bp *BufferPool) GetRead(id types.BlockID) (*block.Block, error) {
	data, err := bp.fetch(id)
	if err != nil {
		return nil, err
	}
	bp.CheckedOut()
	return block.NewReadOnly(id, types.BlockTypeUnknown, data), nil
}

func (bp *BufferPool) GetWrite(id types.BlockID) (*block.Block, error) {
	data, err := bp.fetch(id)
	if err != nil {
		return nil, err
	}
	bp.CheckedOut()
	return block.New(id, types.BlockTypeUnknown, data), nil
}

func (bp *BufferPool) Write(b *block.Block) error {
	if err := bp.base.Write(b); err != nil {
		return err
	}
	bp.invalidate(b.ID)
	return nil
}

func (bp *BufferPool) Release(b *block.Block) {
	if b == nil {
		return
	}
	bp.Returned()
}

func (bp *BufferPool) Free(id types.BlockID) error {
	if err := bp.base.Free(id); err != nil {
		return err
	}
	bp.invalidate(id)
	return nil
}

func (bp *BufferPool) Valid(id types.BlockID) bool {
	return bp.base.Valid(id)
}

func (bp *BufferPool) invalidate(id types.BlockID) {
	bp.cache.Del(int64(id))
	bp.cache.Wait()
}

func (bp *BufferPool) BlockSize() int {
	return bp.base.BlockSize()
}

func (bp *BufferPool) Label() string {
	return bp.base.Label()
}

func (bp *BufferPool) Sync() error {
	return bp.base.Sync()
}

// Close checks for open iterators, drops the cache and closes the base manager.
func (bp *BufferPool) Close() error {
	bp.CheckQuiescent("close")
	bp.ReportLeaks()
	stats := bp.GetStats()
	bp.logger.Debug("closing",
		zap.Uint64("hits", stats.Hits),
		zap.Uint64("misses", stats.Misses),
		zap.Float64("hit_rate", stats.HitRate))
	bp.cache.Close()
	return bp.base.Close()
}

// Base exposes the wrapped manager.
func (bp *BufferPool) Base() blockmanager.BlockManager {
	return bp.base
}

var _ blockmanager.BlockManager = (*BufferPool)(nil)
