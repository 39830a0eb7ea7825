package indexfile

import (
	"sync"

	bplus "QuadDB/storage_engine/access/indexfile_manager/bplustree"
	"QuadDB/types"

	"go.uber.org/zap"
)

// Backing selects the BlockManager behind an index.
type Backing int

const (
	BackingFile Backing = iota
	BackingMapped
	BackingMemory
)

const DefaultCacheBlocks = 1024

const (
	NodeFileExt   = ".idn"
	RecordFileExt = ".dat"
)

type Options struct {
	Backing   Backing
	BlockSize int // 0 = types.DefaultBlockSize
	// blocks cached per manager; 0 disables the buffer pool
	CacheBlocks int
	Logger      *zap.Logger
}

type IndexFileManager struct {
	baseDir string // e.g., /data/quads
	opts    Options
	indexes map[string]*bplus.BPlusTree // name → open tree
	logger  *zap.Logger
	mu      sync.RWMutex
}

func (o Options) withDefaults() Options {
	if o.BlockSize == 0 {
		o.BlockSize = types.DefaultBlockSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (b Backing) String() string {
	switch b {
	case BackingFile:
		return "file"
	case BackingMapped:
		return "mapped"
	case BackingMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// ParseBacking is the inverse of Backing.String.
func ParseBacking(s string) (Backing, bool) {
	for _, b := range []Backing{BackingFile, BackingMapped, BackingMemory} {
		if b.String() == s {
			return b, true
		}
	}
	return 0, false
}
