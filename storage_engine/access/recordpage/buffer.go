package recordpage

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"
	"QuadDB/types"

	"github.com/pkg/errors"
)

// RecordBuffer is the packed, sorted record array of a page. It works on the
// block's bytes in place; the count lives in the page header.
type RecordBuffer struct {
	factory  record.Factory
	header   []byte
	body     []byte
	recLen   int
	max      int
	readOnly bool
	ref      types.BlockRef
}

func (b *RecordBuffer) Size() int {
	return int(int32(binary.BigEndian.Uint32(b.header)))
}

func (b *RecordBuffer) MaxSize() int {
	return b.max
}

func (b *RecordBuffer) IsFull() bool {
	return b.Size() >= b.max
}

func (b *RecordBuffer) setSize(n int) {
	binary.BigEndian.PutUint32(b.header, uint32(int32(n)))
}

func (b *RecordBuffer) slot(i int) []byte {
	return b.body[i*b.recLen : (i+1)*b.recLen]
}

func (b *RecordBuffer) keyAt(i int) []byte {
	return b.body[i*b.recLen : i*b.recLen+b.factory.KeyLength()]
}

func (b *RecordBuffer) mutable() {
	if b.readOnly {
		dberrors.Fatalf(b.ref, nil, "mutation of read-only record page")
	}
}

func (b *RecordBuffer) check(rec record.Record) error {
	if !b.factory.Accepts(rec) {
		return errors.Errorf("record of %d bytes does not fit page records of %d bytes", rec.Len(), b.recLen)
	}
	return nil
}

// Get copies out record i.
func (b *RecordBuffer) Get(i int) record.Record {
	if i < 0 || i >= b.Size() {
		panic("recordpage: index " + strconv.Itoa(i) + " out of range " + strconv.Itoa(b.Size()))
	}
	return b.factory.Load(b.slot(i))
}

func (b *RecordBuffer) Set(i int, rec record.Record) error {
	b.mutable()
	if err := b.check(rec); err != nil {
		return err
	}
	if i < 0 || i >= b.Size() {
		return errors.Errorf("recordpage: set at %d out of range %d", i, b.Size())
	}
	b.factory.Encode(b.slot(i), rec)
	return nil
}

// Insert shifts records i.. up one slot and puts rec at i.
func (b *RecordBuffer) Insert(i int, rec record.Record) error {
	b.mutable()
	if err := b.check(rec); err != nil {
		return err
	}
	n := b.Size()
	if n >= b.max {
		return errors.Errorf("recordpage: page full (%d records)", b.max)
	}
	if i < 0 || i > n {
		return errors.Errorf("recordpage: insert at %d out of range %d", i, n)
	}
	copy(b.body[(i+1)*b.recLen:(n+1)*b.recLen], b.body[i*b.recLen:n*b.recLen])
	b.factory.Encode(b.slot(i), rec)
	b.setSize(n + 1)
	return nil
}

func (b *RecordBuffer) Append(rec record.Record) error {
	return b.Insert(b.Size(), rec)
}

// Remove drops record i and clears the freed slot.
func (b *RecordBuffer) Remove(i int) record.Record {
	b.mutable()
	rec := b.Get(i)
	n := b.Size()
	copy(b.body[i*b.recLen:(n-1)*b.recLen], b.body[(i+1)*b.recLen:n*b.recLen])
	clear(b.slot(n - 1))
	b.setSize(n - 1)
	return rec
}

// Find binary searches for key. It returns the index of an exact match, or
// -(insertionPoint+1) when the key is absent.
func (b *RecordBuffer) Find(key []byte) int {
	lo, hi := 0, b.Size()-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		c := bytes.Compare(b.keyAt(mid), key)
		if c == 0 {
			return mid
		} else if c < 0 {
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return -(lo + 1)
}

// InsertionPoint decodes a Find result into the index of the first record >= key.
func InsertionPoint(found int) int {
	if found >= 0 {
		return found
	}
	return -(found + 1)
}

// Slice copies all records out.
func (b *RecordBuffer) Slice() []record.Record {
	n := b.Size()
	out := make([]record.Record, n)
	for i := 0; i < n; i++ {
		out[i] = b.factory.Load(b.slot(i))
	}
	return out
}

// Reset replaces the content with recs, which must already be sorted.
func (b *RecordBuffer) Reset(recs []record.Record) error {
	b.mutable()
	if len(recs) > b.max {
		return errors.Errorf("recordpage: %d records exceed page capacity %d", len(recs), b.max)
	}
	for _, r := range recs {
		if err := b.check(r); err != nil {
			return err
		}
	}
	clear(b.body)
	for i, r := range recs {
		b.factory.Encode(b.slot(i), r)
	}
	b.setSize(len(recs))
	return nil
}

func (b *RecordBuffer) Clear() {
	b.mutable()
	clear(b.body)
	b.setSize(0)
}

// FirstKey is the key of the first record; false on an empty buffer.
func (b *RecordBuffer) FirstKey() (record.Record, bool) {
	if b.Size() == 0 {
		return record.Record{}, false
	}
	return b.factory.KeyFactory().LoadKey(b.keyAt(0)), true
}

func (b *RecordBuffer) LastKey() (record.Record, bool) {
	n := b.Size()
	if n == 0 {
		return record.Record{}, false
	}
	return b.factory.KeyFactory().LoadKey(b.keyAt(n - 1)), true
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
