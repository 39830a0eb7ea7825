package bplus

import (
	blockmanager "QuadDB/storage_engine/block_manager"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"
	"QuadDB/types"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

/*
The rewriter builds a packed tree straight from sorted records, one level at
a time:

 1. Records fill record pages of Order records each, chained as they are
    written. The first key of each page after the first is kept as the
    separator for the level above.
 2. The (separator, page) entries are packed into branch pages of Order
    children, giving the entries of the next level, until one page is left.
    That page is the root.
 3. Whenever the last page of a level would end up below MinEntries, the
    last two pages share their entries, the left one taking the floor half.

Only the entries of one level are held in memory. Pages are written as soon as
their successor is known.
*/

// Source is a stream of records in strictly increasing key order.
// *recordpage.RangeIterator satisfies it.
type Source interface {
	Next() bool
	Record() record.Record
	Err() error
}

// SliceSource streams a slice.
type SliceSource struct {
	recs []record.Record
	pos  int
}

func NewSliceSource(recs []record.Record) *SliceSource {
	return &SliceSource{recs: recs}
}

func (s *SliceSource) Next() bool {
	if s.pos >= len(s.recs) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceSource) Record() record.Record {
	return s.recs[s.pos-1]
}

func (s *SliceSource) Err() error {
	return nil
}

// entry is a page of the level being built with the first key below it.
type entry struct {
	key record.Record
	id  types.BlockID
}

// Build formats nodes and records as a new tree holding the records of src.
// Input out of order fails with dberrors.ErrUnsortedInput, a repeated key with
// a *dberrors.DuplicateKeyError; the managers are then left partly written.
func Build(nodes, records blockmanager.BlockManager, p Params, src Source, opts ...Option) (*BPlusTree, error) {
	if err := p.checkFits(nodes.BlockSize(), records.BlockSize()); err != nil {
		return nil, err
	}
	t := newTree(nodes, records, p, opts)
	if err := t.reserveMeta(); err != nil {
		return nil, err
	}
	m, err := t.build(src)
	if err != nil {
		return nil, err
	}
	if err := t.writeMeta(m); err != nil {
		return nil, err
	}
	return t, nil
}

// build writes a tree for src into the tree's managers and returns its meta.
// The current meta is not touched.
func (t *BPlusTree) build(src Source) (meta, error) {
	entries, count, err := t.buildLeaves(src)
	if err != nil {
		return meta{}, err
	}
	leaves := len(entries)

	height := 0
	for len(entries) > 1 {
		if entries, err = t.buildLevel(entries, height == 0); err != nil {
			return meta{}, err
		}
		height++
	}
	t.logger.Debug("rewrite done",
		zap.Int64("records", count),
		zap.Int("leaves", leaves),
		zap.Int("height", height))
	return meta{root: entries[0].id, height: height, params: t.params}, nil
}

func (t *BPlusTree) buildLeaves(src Source) ([]entry, int64, error) {
	var (
		prev, cur *leaf
		entries   []entry
		last      record.Record
		count     int64
	)
	for src.Next() {
		rec := src.Record()
		if !t.factory.Accepts(rec) {
			return nil, 0, errors.Errorf("rewrite: record %d has %d bytes, index records have %d", count, rec.Len(), t.factory.RecordLength())
		}
		if !last.IsZero() {
			switch c := record.Compare(last, rec); {
			case c == 0:
				return nil, 0, dberrors.Duplicate(rec.Key())
			case c > 0:
				return nil, 0, errors.Wrapf(dberrors.ErrUnsortedInput, "rewrite: record %d (%s) after %s", count, rec, last)
			}
		}
		last = rec

		if cur == nil || len(cur.recs) == t.params.Order {
			next, err := t.newLeaf()
			if err != nil {
				return nil, 0, err
			}
			if cur != nil {
				cur.link = types.Ref(next.id)
				if prev != nil {
					if err := t.writeLeaf(prev); err != nil {
						return nil, 0, err
					}
				}
				prev = cur
			}
			cur = next
			entries = append(entries, entry{key: record.ToKey(rec), id: next.id})
		}
		cur.recs = append(cur.recs, rec)
		count++
	}
	if err := src.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "rewrite: read input")
	}

	if cur == nil {
		// empty input: a single empty record page
		root, err := t.newLeaf()
		if err != nil {
			return nil, 0, err
		}
		return []entry{{id: root.id}}, 0, t.writeLeaf(root)
	}

	if prev != nil && len(cur.recs) < t.params.MinEntries() {
		all := make([]record.Record, 0, len(prev.recs)+len(cur.recs))
		all = append(append(all, prev.recs...), cur.recs...)
		mid := len(all) / 2
		prev.recs, cur.recs = all[:mid], all[mid:]
		entries[len(entries)-1].key = record.ToKey(cur.recs[0])
	}
	if prev != nil {
		if err := t.writeLeaf(prev); err != nil {
			return nil, 0, err
		}
	}
	return entries, count, t.writeLeaf(cur)
}

// buildLevel packs entries into branch pages and returns the entries of the
// level above.
func (t *BPlusTree) buildLevel(entries []entry, leafChildren bool) ([]entry, error) {
	var next []entry
	for _, g := range t.groups(len(entries)) {
		group := entries[g[0]:g[1]]
		n, err := t.newNode(leafChildren)
		if err != nil {
			return nil, err
		}
		n.children = make([]types.BlockID, len(group))
		n.keys = make([]record.Record, len(group)-1)
		for i, e := range group {
			n.children[i] = e.id
			if i > 0 {
				n.keys[i-1] = e.key
			}
		}
		if err := t.writeNode(n); err != nil {
			return nil, err
		}
		next = append(next, entry{key: group[0].key, id: n.id})
	}
	return next, nil
}

// groups splits n entries into [start, end) runs of Order, sharing the last
// two runs when the last one would be under MinEntries.
func (t *BPlusTree) groups(n int) [][2]int {
	order, minEntries := t.params.Order, t.params.MinEntries()
	var out [][2]int
	for start := 0; start < n; start += order {
		out = append(out, [2]int{start, min(start+order, n)})
	}
	if k := len(out); k > 1 {
		lastLen := out[k-1][1] - out[k-1][0]
		if lastLen < minEntries {
			start := out[k-2][0]
			mid := start + (n-start)/2
			out[k-2] = [2]int{start, mid}
			out[k-1] = [2]int{mid, n}
		}
	}
	return out
}
