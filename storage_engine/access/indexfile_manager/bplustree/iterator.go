package bplus

import (
	"QuadDB/storage_engine/access/recordpage"
	"QuadDB/storage_engine/record"
	"QuadDB/types"
)

// IteratorRange scans records with from <= key < to; nil leaves a bound open.
// The iterator keeps one record page checked out; call Close() when done.
// The tree must not be modified while it is open.
func (t *BPlusTree) IteratorRange(from, to *record.Record) (*recordpage.RangeIterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, err := t.readMeta()
	if err != nil {
		return nil, err
	}
	var key []byte
	if from != nil {
		key = from.Key()
	}
	id, _, err := t.findLeaf(m, key)
	if err != nil {
		return nil, err
	}
	return recordpage.NewRangeIterator(t.records, t.factory, types.Ref(id), from, to)
}
