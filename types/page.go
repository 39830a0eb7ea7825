package types

import "fmt"

const (
	DefaultBlockSize = 8192 // 8KB block
	BlockIDSize      = 4    // block ids are int32 on disk
)

type BlockType uint8

const (
	BlockTypeUnknown BlockType = iota
	BlockTypeRecordPage
	BlockTypeBranch
	BlockTypeMeta
)

func (t BlockType) String() string {
	switch t {
	case BlockTypeRecordPage:
		return "record-page"
	case BlockTypeBranch:
		return "branch"
	case BlockTypeMeta:
		return "meta"
	}
	return "unknown"
}

// BlockID addresses a block inside one BlockManager.
type BlockID int64

// noLink is how an absent BlockRef is written to disk.
const noLink int32 = -1

// BlockRef is an optional reference to a block, used for page chains and
// child pointers. The zero value is NoBlock.
type BlockRef struct {
	id    BlockID
	valid bool
}

var NoBlock = BlockRef{}

func Ref(id BlockID) BlockRef {
	return BlockRef{id: id, valid: true}
}

func (r BlockRef) Get() (BlockID, bool) {
	return r.id, r.valid
}

func (r BlockRef) IsNone() bool {
	return !r.valid
}

// MustID returns the referenced id and panics on NoBlock.
func (r BlockRef) MustID() BlockID {
	if !r.valid {
		panic("types: MustID on NoBlock")
	}
	return r.id
}

// Encode returns the on-disk int32 form; NoBlock is -1.
func (r BlockRef) Encode() int32 {
	if !r.valid {
		return noLink
	}
	return int32(r.id)
}

// DecodeRef reverses Encode. Any negative value decodes to NoBlock.
func DecodeRef(v int32) BlockRef {
	if v < 0 {
		return NoBlock
	}
	return Ref(BlockID(v))
}

func (r BlockRef) String() string {
	if !r.valid {
		return "none"
	}
	return fmt.Sprintf("%d", r.id)
}

// MaxBlockID is the largest id that fits the on-disk int32 encoding.
const MaxBlockID BlockID = 1<<31 - 1
