// Seed program: fills a quad table with random quads through the bulk loader,
// then adds and deletes a few more through the incremental path.
// Run: go run ./cmd/seed
// Then inspect: go run ./cmd/inspect_idx data/quads quads-GSPO
package main

import (
	"flag"
	"math/rand"
	"os"
	"time"

	storageengine "QuadDB/storage_engine"
	indexfile "QuadDB/storage_engine/access/indexfile_manager"
	"QuadDB/storage_engine/access/tupleindex"
	"QuadDB/types"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

func main() {
	dir := flag.String("dir", "data/quads", "index directory")
	count := flag.Int("n", 10000, "number of random quads")
	nodes := flag.Int("nodes", 500, "distinct node ids per column")
	order := flag.Int("order", 0, "B+Tree order, 0 for the largest that fits")
	seed := flag.Int64("seed", 1, "random seed")
	backing := flag.String("backing", "file", "block manager: file or mapped")
	fresh := flag.Bool("fresh", true, "remove the directory first")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	b, ok := indexfile.ParseBacking(*backing)
	if !ok {
		logger.Fatal("unknown backing", zap.String("backing", *backing))
	}
	if *fresh {
		if err := os.RemoveAll(*dir); err != nil {
			logger.Fatal("clean directory", zap.Error(err))
		}
	}

	se, err := storageengine.NewStorageEngine(*dir, indexfile.Options{
		Backing:     b,
		CacheBlocks: indexfile.DefaultCacheBlocks,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("storage engine", zap.Error(err))
	}
	defer se.Close()

	var table *tupleindex.TupleTable
	if se.CatalogManager.TableExists("quads") {
		table, err = se.GetTable("quads")
	} else {
		table, err = se.CreateTable("quads", tupleindex.QuadOrders, *order)
	}
	if err != nil {
		logger.Fatal("open table", zap.Error(err))
	}

	rng := rand.New(rand.NewSource(*seed))
	node := func() types.NodeID { return types.NodeID(rng.Intn(*nodes) + 1) }
	quads := make([]types.Tuple, *count)
	for i := range quads {
		quads[i] = types.Tuple{node(), node(), node(), node()}
	}

	start := time.Now()
	if err := table.BulkLoad(quads); err != nil {
		logger.Fatal("bulk load", zap.Error(err))
	}
	size, err := table.Size()
	if err != nil {
		logger.Fatal("size", zap.Error(err))
	}
	logger.Info("bulk loaded",
		zap.String("quads", humanize.Comma(size)),
		zap.Duration("took", time.Since(start)))

	// a few through the incremental path as well
	for i := 0; i < 100; i++ {
		q := types.Tuple{node(), node(), node(), node()}
		if _, err := table.Add(q); err != nil {
			logger.Fatal("add", zap.Stringer("quad", q), zap.Error(err))
		}
	}
	for _, q := range quads[:50] {
		if _, err := table.Delete(q); err != nil {
			logger.Fatal("delete", zap.Stringer("quad", q), zap.Error(err))
		}
	}

	if err := table.Check(); err != nil {
		logger.Fatal("check", zap.Error(err))
	}
	for _, x := range table.Indexes() {
		stats, err := x.Tree().Stats()
		if err != nil {
			logger.Fatal("stats", zap.Error(err))
		}
		logger.Info("index", zap.String("name", x.Name()), zap.Stringer("stats", stats))
	}
}
