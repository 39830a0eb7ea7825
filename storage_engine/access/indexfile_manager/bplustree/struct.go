// Structure of B+ Tree
/*
Tree
 ├── Branch page (separator keys + child block ids)      node manager
 │      └── Branch pages ...
 │             └── Record pages (sorted records + link)  record manager

- separators: sorted ascending, len(children) == len(keys)+1
- child i holds keys k with keys[i-1] <= k < keys[i]; descent ties go right
- record pages form one chain in key order through their link field
- all record pages at the same depth
- block 0 of the node manager holds the tree meta (root id, height, params)

Occupancy, with min = ceil(order/2):
	record page (non-root)  min..order records
	branch page (non-root)  min..order children
	root branch             2..order children
	root record page        0..order records
*/
package bplus

import (
	"sync"

	blockmanager "QuadDB/storage_engine/block_manager"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"
	"QuadDB/types"

	"go.uber.org/zap"
)

// Params are the fixed shape of one tree.
type Params struct {
	Order       int
	KeyLength   int
	ValueLength int
}

// Node is a decoded branch page.
type Node struct {
	id types.BlockID
	// children are record pages
	leafChildren bool
	keys         []record.Record // key-only separators
	children     []types.BlockID
}

// leaf is a decoded record page.
type leaf struct {
	id   types.BlockID
	recs []record.Record
	link types.BlockRef
}

type meta struct {
	root   types.BlockID
	height int // branch levels above the record pages
	params Params
}

type BPlusTree struct {
	nodes   blockmanager.BlockManager // branch pages + meta
	records blockmanager.BlockManager // record pages
	params  Params
	factory record.Factory
	keys    record.Factory // key-only factory for separators
	logger  *zap.Logger
	mu      sync.RWMutex // protects tree structure during splits/merges
}

type Option func(*BPlusTree)

func WithLogger(l *zap.Logger) Option {
	return func(t *BPlusTree) {
		if l != nil {
			t.logger = l
		}
	}
}

// MinEntries is ceil(order/2), the least a non-root page may hold.
func (p Params) MinEntries() int {
	return (p.Order + 1) / 2
}

func (p Params) Factory() record.Factory {
	return record.MustFactory(p.KeyLength, p.ValueLength)
}

// RecordLength is the width of a stored record.
func (p Params) RecordLength() int {
	return p.KeyLength + p.ValueLength
}

func (p Params) validate() error {
	if p.Order < 3 {
		return dberrors.Capacity("order %d below minimum 3", p.Order)
	}
	if p.KeyLength <= 0 || p.ValueLength < 0 {
		return dberrors.Capacity("bad record shape key=%d value=%d", p.KeyLength, p.ValueLength)
	}
	return nil
}
