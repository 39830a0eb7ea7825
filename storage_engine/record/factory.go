package record

import (
	"QuadDB/storage_engine/dberrors"

	"github.com/pkg/errors"
)

// Factory creates and decodes records of one fixed shape. Every index has
// exactly one factory; all its records share the same total length.
type Factory struct {
	keyLen   int
	valueLen int
}

func NewFactory(keyLength, valueLength int) (Factory, error) {
	if keyLength <= 0 {
		return Factory{}, dberrors.Capacity("key length must be positive, got %d", keyLength)
	}
	if valueLength < 0 {
		return Factory{}, dberrors.Capacity("value length must not be negative, got %d", valueLength)
	}
	return Factory{keyLen: keyLength, valueLen: valueLength}, nil
}

// MustFactory is NewFactory for lengths known to be valid.
func MustFactory(keyLength, valueLength int) Factory {
	f, err := NewFactory(keyLength, valueLength)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Factory) KeyLength() int {
	return f.keyLen
}

func (f Factory) ValueLength() int {
	return f.valueLen
}

func (f Factory) RecordLength() int {
	return f.keyLen + f.valueLen
}

func (f Factory) HasValue() bool {
	return f.valueLen > 0
}

// KeyFactory produces key-only records of the same key width. Branch pages
// store their separators with it.
func (f Factory) KeyFactory() Factory {
	return Factory{keyLen: f.keyLen}
}

// Create copies key and value into a new record. A nil value is allowed for
// key-only lookups and gets a zero-filled value part.
func (f Factory) Create(key, value []byte) (Record, error) {
	if len(key) != f.keyLen {
		return Record{}, errors.Errorf("record key length %d, want %d", len(key), f.keyLen)
	}
	if value != nil && len(value) != f.valueLen {
		return Record{}, errors.Errorf("record value length %d, want %d", len(value), f.valueLen)
	}
	data := make([]byte, f.RecordLength())
	copy(data, key)
	copy(data[f.keyLen:], value)
	return Record{data: data, keyLen: f.keyLen}, nil
}

// MustCreate is Create for inputs known to have the right widths.
func (f Factory) MustCreate(key, value []byte) Record {
	r, err := f.Create(key, value)
	if err != nil {
		panic(err)
	}
	return r
}

// CreateKey builds a lookup record from a key alone.
func (f Factory) CreateKey(key []byte) (Record, error) {
	return f.Create(key, nil)
}

// Load copies one record out of buf, which must hold at least RecordLength bytes.
func (f Factory) Load(buf []byte) Record {
	data := make([]byte, f.RecordLength())
	copy(data, buf[:f.RecordLength()])
	return Record{data: data, keyLen: f.keyLen}
}

// LoadKey copies a key-only record out of buf.
func (f Factory) LoadKey(buf []byte) Record {
	data := make([]byte, f.keyLen)
	copy(data, buf[:f.keyLen])
	return Record{data: data, keyLen: f.keyLen}
}

// Encode writes rec into dst. For a key-only factory only the key is written,
// so full records can be turned into separators.
func (f Factory) Encode(dst []byte, rec Record) {
	copy(dst[:f.keyLen], rec.Key())
	if f.valueLen > 0 {
		copy(dst[f.keyLen:f.RecordLength()], rec.Value())
	}
}

// Accepts reports whether rec has this factory's shape.
func (f Factory) Accepts(rec Record) bool {
	return rec.keyLen == f.keyLen && len(rec.data) == f.RecordLength()
}

// ToKey drops the value part.
func ToKey(rec Record) Record {
	return Record{data: rec.data[:rec.keyLen:rec.keyLen], keyLen: rec.keyLen}
}
