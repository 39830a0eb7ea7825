package bplus

import (
	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"

	"github.com/pkg/errors"
)

// Add inserts rec. A record with the same key already present is a
// *dberrors.DuplicateKeyError; use Update to replace.
func (t *BPlusTree) Add(rec record.Record) error {
	_, err := t.put(rec, false)
	return err
}

// Update replaces the record with rec's key, or adds rec if there is none.
// It reports whether a record was replaced.
func (t *BPlusTree) Update(rec record.Record) (bool, error) {
	return t.put(rec, true)
}

func (t *BPlusTree) put(rec record.Record, replace bool) (bool, error) {
	if !t.factory.Accepts(rec) {
		return false, errors.Errorf("record of %d bytes does not match index records of %d bytes", rec.Len(), t.factory.RecordLength())
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	m, err := t.readMeta()
	if err != nil {
		return false, err
	}
	id, path, err := t.findLeaf(m, rec.Key())
	if err != nil {
		return false, errors.Wrap(err, "insertion: find leaf")
	}
	l, err := t.fetchLeaf(id)
	if err != nil {
		return false, err
	}

	i, found := searchRecords(l.recs, rec.Key())
	if found {
		if !replace {
			return false, dberrors.Duplicate(rec.Key())
		}
		l.recs[i] = rec
		return true, t.writeLeaf(l)
	}

	l.recs = insert(l.recs, i, rec)
	if len(l.recs) <= t.params.Order {
		return false, t.writeLeaf(l)
	}
	return false, t.splitLeaf(m, l, path)
}
