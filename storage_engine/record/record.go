package record

import (
	"bytes"
	"encoding/hex"
)

// Record is an immutable fixed-length tuple: key bytes followed by value
// bytes. Ordering looks at the key only, as unsigned bytes.
type Record struct {
	data   []byte
	keyLen int
}

func (r Record) Key() []byte {
	return r.data[:r.keyLen]
}

func (r Record) Value() []byte {
	return r.data[r.keyLen:]
}

// Bytes returns key followed by value. Callers must not modify the result.
func (r Record) Bytes() []byte {
	return r.data
}

func (r Record) Len() int {
	return len(r.data)
}

func (r Record) IsZero() bool {
	return r.data == nil
}

func (r Record) HasValue() bool {
	return len(r.data) > r.keyLen
}

// Compare orders two records by key.
func Compare(a, b Record) int {
	return bytes.Compare(a.Key(), b.Key())
}

// CompareKey orders a record against a bare key.
func CompareKey(r Record, key []byte) int {
	return bytes.Compare(r.Key(), key)
}

// Equal compares keys and values.
func Equal(a, b Record) bool {
	return a.keyLen == b.keyLen && bytes.Equal(a.data, b.data)
}

func (r Record) String() string {
	if r.data == nil {
		return "<nil>"
	}
	if !r.HasValue() {
		return "[" + hex.EncodeToString(r.Key()) + "]"
	}
	return "[" + hex.EncodeToString(r.Key()) + " -> " + hex.EncodeToString(r.Value()) + "]"
}
