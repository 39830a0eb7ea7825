package recordpage

import (
	blockmanager "QuadDB/storage_engine/block_manager"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"
	"QuadDB/types"
)

// RangeIterator walks a chain of record pages from an inclusive lower bound
// to an exclusive upper bound. It keeps exactly one page checked out and
// releases it before moving to the next one.
//
// Usage:
//
//	it, err := recordpage.NewRangeIterator(mgr, f, start, &from, &to)
//	defer it.Close()
//	for it.Next() {
//		rec := it.Record()
//	}
//	err = it.Err()
type RangeIterator struct {
	mgr     blockmanager.BlockManager
	factory record.Factory
	page    *RecordBufferPage
	idx     int
	to      []byte

	// last key of the page before the current one, for the chain order check
	prevLast record.Record

	cur        record.Record
	err        error
	closed     bool
	registered bool
}

// NewRangeIterator starts at page start. from and to may be nil for an open
// bound. from > to gives an empty iterator.
func NewRangeIterator(mgr blockmanager.BlockManager, f record.Factory, start types.BlockRef, from, to *record.Record) (*RangeIterator, error) {
	it := &RangeIterator{mgr: mgr, factory: f}
	if to != nil {
		it.to = to.Key()
	}
	if from != nil && to != nil && record.Compare(*from, *to) > 0 {
		it.closed = true
		return it, nil
	}
	id, ok := start.Get()
	if !ok {
		it.closed = true
		return it, nil
	}

	page, err := it.load(id)
	if err != nil {
		return nil, err
	}
	it.page = page
	if from != nil {
		it.idx = InsertionPoint(page.RecordBuffer().Find(from.Key()))
	}
	mgr.BeginIterator(it)
	it.registered = true
	return it, nil
}

func (it *RangeIterator) load(id types.BlockID) (*RecordBufferPage, error) {
	blk, err := it.mgr.GetRead(id)
	if err != nil {
		return nil, err
	}
	page, err := Load(blk, it.factory)
	if err != nil {
		it.mgr.Release(blk)
		if ce, ok := err.(*dberrors.StorageConsistencyError); ok {
			it.Close()
			dberrors.Fatal(ce)
		}
		return nil, err
	}
	return page, nil
}

// Next advances to the next record in range.
func (it *RangeIterator) Next() bool {
	if it.closed {
		return false
	}
	for {
		buf := it.page.RecordBuffer()
		if it.idx < buf.Size() {
			rec := buf.Get(it.idx)
			if it.to != nil && record.CompareKey(rec, it.to) >= 0 {
				it.Close()
				return false
			}
			it.cur = rec
			it.idx++
			return true
		}
		if !it.advance() {
			return false
		}
	}
}

// advance moves to the next page in the chain, checking that it continues
// the key order of the pages seen so far.
func (it *RangeIterator) advance() bool {
	if last, ok := it.page.RecordBuffer().LastKey(); ok {
		it.prevLast = last
	}
	next, ok := it.page.Link().Get()
	from := it.page.Block().Ref()
	it.page.Release(it.mgr)
	it.page = nil
	if !ok {
		it.Close()
		return false
	}

	page, err := it.load(next)
	if err != nil {
		it.err = err
		it.Close()
		return false
	}
	if first, ok := page.RecordBuffer().FirstKey(); ok && !it.prevLast.IsZero() {
		if record.Compare(it.prevLast, first) >= 0 {
			page.Release(it.mgr)
			it.Close()
			dberrors.Fatalf(page.Block().Ref(), first.Key(),
				"chain out of order: page %s ends with %s, next page starts with %s", from, it.prevLast, first)
		}
	}
	it.page = page
	it.idx = 0
	return true
}

// Record is the record at the current position.
func (it *RangeIterator) Record() record.Record {
	return it.cur
}

// Err reports a failure that ended the iteration early.
func (it *RangeIterator) Err() error {
	return it.err
}

// Close releases the current page. It is safe to call more than once.
func (it *RangeIterator) Close() error {
	if it.closed && it.page == nil && !it.registered {
		return nil
	}
	it.closed = true
	if it.page != nil {
		it.page.Release(it.mgr)
		it.page = nil
	}
	if it.registered {
		it.mgr.EndIterator(it)
		it.registered = false
	}
	return nil
}

// Collect drains it into a slice and closes it.
func Collect(it *RangeIterator) ([]record.Record, error) {
	defer it.Close()
	var out []record.Record
	for it.Next() {
		out = append(out, it.Record())
	}
	return out, it.Err()
}
