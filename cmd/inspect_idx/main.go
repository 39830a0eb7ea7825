// Inspect the indexes of a tuple table directory.
// Usage: go run ./cmd/inspect_idx [-dump] [-backing file|mapped] <dir> <index>...
// Example: go run ./cmd/inspect_idx -dump data/quads quads-GSPO
package main

import (
	"flag"
	"fmt"
	"os"

	indexfile "QuadDB/storage_engine/access/indexfile_manager"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/types"

	"github.com/pkg/errors"
)

func main() {
	dump := flag.Bool("dump", false, "list every page and record")
	backing := flag.String("backing", "file", "block manager: file or mapped")
	blockSize := flag.Int("block", types.DefaultBlockSize, "block size in bytes")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <dir> <index>...\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s -dump data/quads quads-GSPO\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(1)
	}

	b, ok := indexfile.ParseBacking(*backing)
	if !ok || b == indexfile.BackingMemory {
		fmt.Fprintf(os.Stderr, "Error: unknown backing %q\n", *backing)
		os.Exit(1)
	}
	ifm, err := indexfile.New(flag.Arg(0), indexfile.Options{Backing: b, BlockSize: *blockSize})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer ifm.CloseAll()

	for _, name := range flag.Args()[1:] {
		if err := ifm.InspectTo(os.Stdout, name, *dump); err != nil {
			var ce *dberrors.StorageConsistencyError
			if errors.As(err, &ce) {
				fmt.Fprintf(os.Stderr, "Corrupt index %s at block %s key %x: %s\n", name, ce.Block, ce.Key, ce.Msg)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			ifm.CloseAll()
			os.Exit(1)
		}
	}
}
