package indexfile

import (
	"os"
	"path/filepath"
	"sort"

	bplus "QuadDB/storage_engine/access/indexfile_manager/bplustree"
	blockmanager "QuadDB/storage_engine/block_manager"
	"QuadDB/storage_engine/bufferpool"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

/*
This file is the main file for Index File Manager that deals with where
indexes live.

Each named index is a pair of files in baseDir:

	<name>.idn   branch pages, block 0 holds the tree meta
	<name>.dat   record pages

Every file gets its own BlockManager, optionally wrapped in a buffer pool.
Bulk loads write into the live pair and publish through the meta block, so
no file is ever renamed over another.
*/

func New(baseDir string, opts Options) (*IndexFileManager, error) {
	opts = opts.withDefaults()
	if opts.Backing != BackingMemory {
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create indexes directory")
		}
	}
	return &IndexFileManager{
		baseDir: baseDir,
		opts:    opts,
		indexes: make(map[string]*bplus.BPlusTree),
		logger:  opts.Logger.Named("indexfile"),
	}, nil
}

// Files returns the paths of the node and record files of an index.
func (ifm *IndexFileManager) Files(name string) (nodes, records string) {
	base := filepath.Join(ifm.baseDir, name)
	return base + NodeFileExt, base + RecordFileExt
}

func (ifm *IndexFileManager) openManager(path, label string) (blockmanager.BlockManager, error) {
	var (
		mgr blockmanager.BlockManager
		err error
	)
	opt := blockmanager.WithLogger(ifm.opts.Logger)
	switch ifm.opts.Backing {
	case BackingFile:
		mgr, err = blockmanager.OpenFile(path, ifm.opts.BlockSize, opt)
	case BackingMapped:
		mgr, err = blockmanager.OpenMapped(path, ifm.opts.BlockSize, opt)
	case BackingMemory:
		mgr, err = blockmanager.NewMem(label, ifm.opts.BlockSize, opt)
	default:
		return nil, errors.Errorf("unknown backing %d", ifm.opts.Backing)
	}
	if err != nil {
		return nil, err
	}
	if ifm.opts.CacheBlocks <= 0 {
		return mgr, nil
	}
	pool, err := bufferpool.New(mgr, ifm.opts.CacheBlocks, ifm.opts.Logger)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	return pool, nil
}

func (ifm *IndexFileManager) openPair(nodePath, recordPath string) (nodes, records blockmanager.BlockManager, err error) {
	if nodes, err = ifm.openManager(nodePath, filepath.Base(nodePath)); err != nil {
		return nil, nil, err
	}
	if records, err = ifm.openManager(recordPath, filepath.Base(recordPath)); err != nil {
		nodes.Close()
		return nil, nil, err
	}
	return nodes, records, nil
}

func (ifm *IndexFileManager) exists(name string) bool {
	if ifm.opts.Backing == BackingMemory {
		return false
	}
	nodePath, _ := ifm.Files(name)
	_, err := os.Stat(nodePath)
	return err == nil
}

// CreateIndex makes a new empty index. It fails if one of that name is open
// or on disk.
func (ifm *IndexFileManager) CreateIndex(name string, p bplus.Params) (*bplus.BPlusTree, error) {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	if _, ok := ifm.indexes[name]; ok || ifm.exists(name) {
		return nil, errors.Errorf("index '%s' already exists", name)
	}
	return ifm.createLocked(name, p)
}

func (ifm *IndexFileManager) createLocked(name string, p bplus.Params) (*bplus.BPlusTree, error) {
	nodePath, recordPath := ifm.Files(name)
	nodes, records, err := ifm.openPair(nodePath, recordPath)
	if err != nil {
		return nil, err
	}
	tree, err := bplus.Create(nodes, records, p, bplus.WithLogger(ifm.opts.Logger))
	if err != nil {
		nodes.Close()
		records.Close()
		if ifm.opts.Backing != BackingMemory {
			os.Remove(nodePath)
			os.Remove(recordPath)
		}
		return nil, errors.Wrapf(err, "failed to create index '%s'", name)
	}
	ifm.indexes[name] = tree
	ifm.logger.Info("created index", zap.String("name", name), zap.Int("order", p.Order))
	return tree, nil
}

// GetIndex returns the open tree for name, opening its files on first use.
func (ifm *IndexFileManager) GetIndex(name string) (*bplus.BPlusTree, error) {
	ifm.mu.RLock()
	tree, ok := ifm.indexes[name]
	ifm.mu.RUnlock()
	if ok {
		return tree, nil
	}

	// Slow path: open the index files.
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	// Double-check after acquiring write lock.
	if tree, ok := ifm.indexes[name]; ok {
		return tree, nil
	}
	return ifm.openLocked(name)
}

func (ifm *IndexFileManager) openLocked(name string) (*bplus.BPlusTree, error) {
	if !ifm.exists(name) {
		return nil, errors.Errorf("index '%s' not found in %s", name, ifm.baseDir)
	}
	nodePath, recordPath := ifm.Files(name)
	nodes, records, err := ifm.openPair(nodePath, recordPath)
	if err != nil {
		return nil, err
	}
	tree, err := bplus.Open(nodes, records, bplus.WithLogger(ifm.opts.Logger))
	if err != nil {
		nodes.Close()
		records.Close()
		return nil, errors.Wrapf(err, "failed to open index '%s'", name)
	}
	ifm.indexes[name] = tree
	return tree, nil
}

// GetOrCreateIndex opens name, creating it with p if it does not exist.
func (ifm *IndexFileManager) GetOrCreateIndex(name string, p bplus.Params) (*bplus.BPlusTree, error) {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	if tree, ok := ifm.indexes[name]; ok {
		return tree, nil
	}
	if ifm.exists(name) {
		return ifm.openLocked(name)
	}
	return ifm.createLocked(name, p)
}

// BulkLoad replaces the content of name with the sorted records of src,
// creating the index if needed. The new pages are written next to the live
// ones and published by switching the root in the meta block, so a failed
// load leaves the previous index intact. Open iterators on the index are a
// consistency violation.
func (ifm *IndexFileManager) BulkLoad(name string, p bplus.Params, src bplus.Source) (*bplus.BPlusTree, error) {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	var (
		fresh bool
		err   error
	)
	tree, ok := ifm.indexes[name]
	switch {
	case ok:
	case ifm.exists(name):
		tree, err = ifm.openLocked(name)
	default:
		fresh = true
		tree, err = ifm.createLocked(name, p)
	}
	if err != nil {
		return nil, err
	}

	if err := tree.Rebuild(p, src); err != nil {
		if fresh {
			if derr := ifm.discardLocked(name); derr != nil {
				ifm.logger.Warn("discarding failed index", zap.String("name", name), zap.Error(derr))
			}
		}
		return nil, errors.Wrapf(err, "bulk load of '%s'", name)
	}
	ifm.logger.Info("bulk loaded index", zap.String("name", name), zap.Int("order", p.Order))
	return tree, nil
}

// discardLocked closes name and removes its files.
func (ifm *IndexFileManager) discardLocked(name string) error {
	var err error
	if tree, ok := ifm.indexes[name]; ok {
		delete(ifm.indexes, name)
		err = tree.Close()
	}
	if ifm.opts.Backing == BackingMemory {
		return err
	}
	nodePath, recordPath := ifm.Files(name)
	for _, p := range []string{nodePath, recordPath} {
		if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierr.Append(err, rmErr)
		}
	}
	return err
}

// CloseIndex closes the tree for name and drops it from the cache.
func (ifm *IndexFileManager) CloseIndex(name string) error {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	tree, ok := ifm.indexes[name]
	if !ok {
		return nil // not open, nothing to do
	}
	delete(ifm.indexes, name)
	if err := tree.Close(); err != nil {
		return errors.Wrapf(err, "failed to close index '%s'", name)
	}
	return nil
}

// DropIndex closes name and removes its files.
func (ifm *IndexFileManager) DropIndex(name string) error {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	return errors.Wrapf(ifm.discardLocked(name), "failed to drop index '%s'", name)
}

// CloseAll closes all open indexes.
func (ifm *IndexFileManager) CloseAll() error {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	var err error
	for name, tree := range ifm.indexes {
		if cerr := tree.Close(); cerr != nil {
			err = multierr.Append(err, errors.Wrapf(cerr, "failed to close index '%s'", name))
		}
		delete(ifm.indexes, name)
	}
	return err
}

// Names lists the open indexes.
func (ifm *IndexFileManager) Names() []string {
	ifm.mu.RLock()
	defer ifm.mu.RUnlock()

	names := make([]string, 0, len(ifm.indexes))
	for name := range ifm.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ifm *IndexFileManager) Options() Options {
	return ifm.opts
}
