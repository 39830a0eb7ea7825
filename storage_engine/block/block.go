package block

import (
	"QuadDB/types"
)

/*
A Block is the unit of I/O between the access layer and a BlockManager.

Ownership: a Block is owned by whichever page object wraps it (a record page,
a branch node, the tree meta page) from the moment it is checked out with
Allocate/GetRead/GetWrite until it is handed back with Release.

Blocks obtained with GetRead are in read-iterator mode. They may be shared
with caches or a memory mapping and must not be mutated; handing one to
Write is a programming error and aborts.
*/

type Block struct {
	ID       types.BlockID
	Type     types.BlockType
	Data     []byte
	readOnly bool
}

func New(id types.BlockID, t types.BlockType, data []byte) *Block {
	return &Block{ID: id, Type: t, Data: data}
}

func NewReadOnly(id types.BlockID, t types.BlockType, data []byte) *Block {
	return &Block{ID: id, Type: t, Data: data, readOnly: true}
}

func (b *Block) ReadOnly() bool {
	return b.readOnly
}

func (b *Block) Ref() types.BlockRef {
	return types.Ref(b.ID)
}

func (b *Block) Size() int {
	return len(b.Data)
}

// Clone returns a writable deep copy.
func (b *Block) Clone() *Block {
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return &Block{ID: b.ID, Type: b.Type, Data: data}
}
