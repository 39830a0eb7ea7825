package bplus

import (
	"QuadDB/storage_engine/record"
)

// Find looks up the record whose key equals target's key.
func (t *BPlusTree) Find(target record.Record) (record.Record, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, err := t.readMeta()
	if err != nil {
		return record.Record{}, false, err
	}
	id, _, err := t.findLeaf(m, target.Key())
	if err != nil {
		return record.Record{}, false, err
	}
	l, err := t.fetchLeaf(id)
	if err != nil {
		return record.Record{}, false, err
	}
	i, ok := searchRecords(l.recs, target.Key())
	if !ok {
		return record.Record{}, false, nil
	}
	return l.recs[i], true, nil
}

// Contains reports whether a record with target's key exists.
func (t *BPlusTree) Contains(target record.Record) (bool, error) {
	_, ok, err := t.Find(target)
	return ok, err
}

// Size counts records by walking the record page chain.
func (t *BPlusTree) Size() (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, err := t.readMeta()
	if err != nil {
		return 0, err
	}
	id, _, err := t.findLeaf(m, nil)
	if err != nil {
		return 0, err
	}
	var n int64
	for {
		l, err := t.fetchLeaf(id)
		if err != nil {
			return 0, err
		}
		n += int64(len(l.recs))
		next, ok := l.link.Get()
		if !ok {
			return n, nil
		}
		id = next
	}
}

// Height is the number of branch levels; 0 when the root is a record page.
func (t *BPlusTree) Height() (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, err := t.readMeta()
	if err != nil {
		return 0, err
	}
	return m.height, nil
}

// IsEmpty reports whether the tree holds no records.
func (t *BPlusTree) IsEmpty() (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, err := t.readMeta()
	if err != nil {
		return false, err
	}
	if m.height > 0 {
		return false, nil
	}
	l, err := t.fetchLeaf(m.root)
	if err != nil {
		return false, err
	}
	return len(l.recs) == 0, nil
}

func (t *BPlusTree) Params() Params {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.params
}

func (t *BPlusTree) Factory() record.Factory {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.factory
}
