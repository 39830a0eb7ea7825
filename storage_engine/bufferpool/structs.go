package bufferpool

import (
	"sync/atomic"

	blockmanager "QuadDB/storage_engine/block_manager"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

// ############################################# BUFFER POOL #############################################

// BufferPool is a BlockManager that keeps clean block images of another
// BlockManager in a ristretto cache. It is write-through: the base manager
// always holds the current state, so eviction never writes anything.
//
// Every block the pool hands out is a private copy checked out against the
// pool's own Tracker; the base only sees short checkouts while a miss is filled.
type BufferPool struct {
	blockmanager.Tracker

	base     blockmanager.BlockManager
	cache    *ristretto.Cache[int64, []byte]
	capacity int
	hits     atomic.Uint64
	misses   atomic.Uint64
	logger   *zap.Logger
}

type BufferPoolStats struct {
	Capacity int
	Hits     uint64
	Misses   uint64
	HitRate  float64
	// as counted by ristretto; admission may reject sets, so this can lag
	Cached uint64
}
