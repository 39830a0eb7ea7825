package indexfile

import (
	"fmt"
	"io"

	"QuadDB/storage_engine/dberrors"

	"github.com/dustin/go-humanize"
)

// InspectTo writes a human-readable report of index name to w: its files,
// tree statistics, content fingerprint and audit result, then with dump set
// the full page listing. A corrupt tree is reported with the block and key
// where the damage was found.
func (ifm *IndexFileManager) InspectTo(w io.Writer, name string, dump bool) (err error) {
	defer dberrors.Recover(&err)

	tree, err := ifm.GetIndex(name)
	if err != nil {
		return err
	}
	p := func(format string, args ...interface{}) { fmt.Fprintf(w, format, args...) }

	p("Index: %s (%s backing)\n", name, ifm.opts.Backing)
	if ifm.opts.Backing != BackingMemory {
		nodePath, recordPath := ifm.Files(name)
		p("  files: %s, %s\n", nodePath, recordPath)
	}
	params := tree.Params()
	p("  block size %s, order %d, key %d bytes, value %d bytes\n",
		humanize.IBytes(uint64(ifm.opts.BlockSize)), params.Order, params.KeyLength, params.ValueLength)

	stats, err := tree.Stats()
	if err != nil {
		return err
	}
	p("  %s\n", stats)

	fp, err := tree.Fingerprint()
	if err != nil {
		return err
	}
	p("  fingerprint %016x\n", fp)

	if err := tree.Check(); err != nil {
		p("  check FAILED: %v\n", err)
		return err
	}
	p("  check ok\n")

	if dump {
		return tree.Dump(w)
	}
	return nil
}
