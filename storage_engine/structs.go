package storageengine

import (
	"sync"

	indexfile "QuadDB/storage_engine/access/indexfile_manager"
	"QuadDB/storage_engine/access/tupleindex"
	"QuadDB/storage_engine/catalog"

	"go.uber.org/zap"
)

type StorageEngine struct {
	IndexManager   *indexfile.IndexFileManager
	CatalogManager *catalog.CatalogManager

	Root   string
	logger *zap.Logger

	// Open tuple tables by name. Cleared and closed on Close.
	tablesMu sync.Mutex
	tables   map[string]*tupleindex.TupleTable
}
