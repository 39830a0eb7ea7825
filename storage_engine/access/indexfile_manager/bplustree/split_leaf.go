package bplus

import (
	"QuadDB/storage_engine/record"
	"QuadDB/types"

	"go.uber.org/zap"
)

// splitLeaf splits an overfull record page. The left page keeps the first
// n/2 records; the first key of the new right page goes up as separator.
func (t *BPlusTree) splitLeaf(m meta, l *leaf, path []frame) error {
	mid := len(l.recs) / 2

	right, err := t.newLeaf()
	if err != nil {
		return err
	}
	right.recs = append([]record.Record(nil), l.recs[mid:]...)
	l.recs = l.recs[:mid]

	right.link = l.link
	l.link = types.Ref(right.id)

	if err := t.writeLeaf(right); err != nil {
		return err
	}
	if err := t.writeLeaf(l); err != nil {
		return err
	}
	t.logger.Debug("split leaf", zap.Int64("left", int64(l.id)), zap.Int64("right", int64(right.id)))
	return t.insertIntoParent(m, path, record.ToKey(right.recs[0]), l.id, right.id)
}
