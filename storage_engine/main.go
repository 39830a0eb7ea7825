package storageengine

import (
	"os"

	indexfile "QuadDB/storage_engine/access/indexfile_manager"
	"QuadDB/storage_engine/access/tupleindex"
	"QuadDB/storage_engine/catalog"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

/*
The main file of storage engine, that initializes the index file manager and
the catalog manager. Tables are opened lazily on first use and stay open
until Close.
*/

func NewStorageEngine(root string, opts indexfile.Options) (*StorageEngine, error) {
	persist := opts.Backing != indexfile.BackingMemory
	if persist {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create db root")
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ifm, err := indexfile.New(root, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init index file manager")
	}
	catalogManager, err := catalog.NewCatalogManager(root, persist)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init catalog manager")
	}

	return &StorageEngine{
		IndexManager:   ifm,
		CatalogManager: catalogManager,
		Root:           root,
		logger:         logger.Named("engine"),
		tables:         make(map[string]*tupleindex.TupleTable),
	}, nil
}

// CreateTable registers a table with the given column orders and opens it.
// order is the B+Tree order, 0 for the largest that fits.
func (se *StorageEngine) CreateTable(name string, orders []string, order int) (*tupleindex.TupleTable, error) {
	if err := se.CatalogManager.RegisterTable(catalog.TableEntry{Name: name, Orders: orders, Order: order}); err != nil {
		return nil, err
	}
	tt, err := se.GetTable(name)
	if err != nil {
		// leave no half-created table behind
		_ = se.CatalogManager.UnregisterTable(name)
		return nil, err
	}
	se.logger.Info("created table", zap.String("table", name), zap.Strings("orders", orders))
	return tt, nil
}

// GetTable opens a table recorded in the catalog.
func (se *StorageEngine) GetTable(name string) (*tupleindex.TupleTable, error) {
	se.tablesMu.Lock()
	defer se.tablesMu.Unlock()

	if tt, ok := se.tables[name]; ok {
		return tt, nil
	}
	entry, err := se.CatalogManager.GetTable(name)
	if err != nil {
		return nil, err
	}
	tt, err := tupleindex.Open(se.IndexManager, name, entry.Orders, entry.Order, se.logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open table '%s'", name)
	}
	se.tables[name] = tt
	return tt, nil
}

// GetOrCreateTable opens name, creating it with orders if the catalog does
// not know it yet.
func (se *StorageEngine) GetOrCreateTable(name string, orders []string) (*tupleindex.TupleTable, error) {
	if se.CatalogManager.TableExists(name) {
		return se.GetTable(name)
	}
	return se.CreateTable(name, orders, 0)
}

// DropTable closes a table, removes its index files and forgets it.
func (se *StorageEngine) DropTable(name string) error {
	entry, err := se.CatalogManager.GetTable(name)
	if err != nil {
		return err
	}

	se.tablesMu.Lock()
	if tt, ok := se.tables[name]; ok {
		delete(se.tables, name)
		if err := tt.Close(); err != nil {
			se.tablesMu.Unlock()
			return err
		}
	}
	se.tablesMu.Unlock()

	var dropErr error
	for _, o := range entry.Orders {
		dropErr = multierr.Append(dropErr, se.IndexManager.DropIndex(tupleindex.IndexName(name, o)))
	}
	if dropErr != nil {
		return dropErr
	}
	return se.CatalogManager.UnregisterTable(name)
}

func (se *StorageEngine) Tables() []catalog.TableEntry {
	return se.CatalogManager.Tables()
}

// Close closes every open table and the index files behind them.
func (se *StorageEngine) Close() error {
	se.tablesMu.Lock()
	se.tables = make(map[string]*tupleindex.TupleTable)
	se.tablesMu.Unlock()
	return se.IndexManager.CloseAll()
}
