// Package bplus: tree inspection for debugging.
// Use Dump(w) for a level-by-level listing, Stats for occupancy figures and
// Fingerprint to compare the content of two trees.

package bplus

import (
	"encoding/hex"
	"fmt"
	"io"

	"QuadDB/types"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
)

type Stats struct {
	Order     int
	Height    int
	Branches  int
	Leaves    int
	Records   int64
	NodeBytes uint64 // bytes of branch blocks in use, meta included
	LeafBytes uint64
}

// Fill is the mean record page occupancy relative to Order.
func (s Stats) Fill() float64 {
	if s.Leaves == 0 {
		return 0
	}
	return float64(s.Records) / float64(s.Leaves*s.Order)
}

func (s Stats) String() string {
	return fmt.Sprintf("order=%d height=%d branches=%d leaves=%d records=%s fill=%.1f%% size=%s+%s",
		s.Order, s.Height, s.Branches, s.Leaves,
		humanize.Comma(s.Records), 100*s.Fill(),
		humanize.IBytes(s.NodeBytes), humanize.IBytes(s.LeafBytes))
}

func (t *BPlusTree) Stats() (Stats, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, err := t.readMeta()
	if err != nil {
		return Stats{}, err
	}
	branches, leaves, err := t.collectBlocks(m)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Order: m.params.Order, Height: m.height, Branches: len(branches), Leaves: len(leaves)}
	for _, id := range leaves {
		l, err := t.fetchLeaf(id)
		if err != nil {
			return Stats{}, err
		}
		s.Records += int64(len(l.recs))
	}
	s.NodeBytes = uint64(len(branches)+1) * uint64(t.nodes.BlockSize())
	s.LeafBytes = uint64(len(leaves)) * uint64(t.records.BlockSize())
	return s, nil
}

// Fingerprint hashes every record in key order. Trees with the same content
// have the same fingerprint whatever their page layout.
func (t *BPlusTree) Fingerprint() (uint64, error) {
	it, err := t.Iterator()
	if err != nil {
		return 0, err
	}
	defer it.Close()

	h := xxhash.New()
	for it.Next() {
		_, _ = h.Write(it.Record().Bytes())
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// Dump writes the tree level by level, root first, then the records of every
// page in chain order.
func (t *BPlusTree) Dump(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, err := t.readMeta()
	if err != nil {
		return err
	}
	p := func(format string, args ...interface{}) { fmt.Fprintf(w, format, args...) }

	p("Tree %s: order=%d key=%d value=%d root=%d height=%d\n",
		t.records.Label(), m.params.Order, m.params.KeyLength, m.params.ValueLength, m.root, m.height)

	level := []types.BlockID{m.root}
	for depth := 0; depth < m.height; depth++ {
		p("  Level %d:\n", depth)
		var next []types.BlockID
		for _, id := range level {
			n, err := t.fetchNode(id)
			if err != nil {
				return err
			}
			keys := make([]string, len(n.keys))
			for i, k := range n.keys {
				keys[i] = hex.EncodeToString(k.Key())
			}
			p("    [branch %d] keys=%v children=%v\n", id, keys, n.children)
			next = append(next, n.children...)
		}
		level = next
	}

	p("  Records:\n")
	for _, id := range level {
		l, err := t.fetchLeaf(id)
		if err != nil {
			return err
		}
		p("    [page %d] n=%d next=%s\n", id, len(l.recs), l.link)
		for _, r := range l.recs {
			p("      %s\n", r)
		}
	}
	return nil
}
