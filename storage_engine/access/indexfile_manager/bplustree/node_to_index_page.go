package bplus

import (
	"encoding/binary"

	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"
	"QuadDB/types"
)

/*
Branch page layout (big-endian):

	Header (8 bytes):
	  count   int32  number of separator keys, children = count+1
	  kind    int32  1 = children are record pages, 0 = children are branches

	Body:
	  (order-1) × key      keyLength bytes each, first count in use
	  order     × child    int32 block id, first count+1 in use

The child array starts at a fixed offset so a page can be read without
knowing its count first.

Meta page (node block 0):

	magic   uint32 "BPT1"
	root    int32
	height  int32  0 = root is a record page
	order   int32
	keyLen  int32
	valLen  int32
*/

const (
	branchCountOffset  = 0
	branchKindOffset   = 4
	branchHeaderLength = 8
	childIDSize        = 4

	kindBranchChildren = 0
	kindLeafChildren   = 1

	metaMagic  uint32 = 0x42505431 // "BPT1"
	metaLength        = 24
	metaBlock         = types.BlockID(0)
)

func branchLength(p Params) int {
	return branchHeaderLength + (p.Order-1)*p.KeyLength + p.Order*childIDSize
}

func childrenOffset(p Params) int {
	return branchHeaderLength + (p.Order-1)*p.KeyLength
}

// SerializeNode writes n into data, which must be at least branchLength(p) bytes.
func SerializeNode(n *Node, p Params, data []byte) {
	if len(n.keys) > p.Order-1 || len(n.children) != len(n.keys)+1 {
		dberrors.Fatalf(types.Ref(n.id), nil, "branch with %d keys and %d children cannot be stored at order %d",
			len(n.keys), len(n.children), p.Order)
	}
	clear(data)
	binary.BigEndian.PutUint32(data[branchCountOffset:], uint32(int32(len(n.keys))))
	kind := int32(kindBranchChildren)
	if n.leafChildren {
		kind = kindLeafChildren
	}
	binary.BigEndian.PutUint32(data[branchKindOffset:], uint32(kind))

	for i, k := range n.keys {
		off := branchHeaderLength + i*p.KeyLength
		copy(data[off:off+p.KeyLength], k.Key())
	}
	base := childrenOffset(p)
	for i, c := range n.children {
		binary.BigEndian.PutUint32(data[base+i*childIDSize:], uint32(types.Ref(c).Encode()))
	}
}

// DeserializeNode decodes the branch page stored in block id.
func DeserializeNode(id types.BlockID, p Params, keys record.Factory, data []byte) (*Node, error) {
	ref := types.Ref(id)
	if len(data) < branchLength(p) {
		return nil, dberrors.Inconsistent(ref, nil, "branch block of %d bytes, need %d", len(data), branchLength(p))
	}
	count := int(int32(binary.BigEndian.Uint32(data[branchCountOffset:])))
	if count < 0 || count > p.Order-1 {
		return nil, dberrors.Inconsistent(ref, nil, "branch key count %d outside 0..%d", count, p.Order-1)
	}
	n := &Node{id: id}
	switch kind := int32(binary.BigEndian.Uint32(data[branchKindOffset:])); kind {
	case kindLeafChildren:
		n.leafChildren = true
	case kindBranchChildren:
	default:
		return nil, dberrors.Inconsistent(ref, nil, "unknown branch kind %d", kind)
	}

	n.keys = make([]record.Record, count)
	for i := range n.keys {
		n.keys[i] = keys.LoadKey(data[branchHeaderLength+i*p.KeyLength:])
	}
	base := childrenOffset(p)
	n.children = make([]types.BlockID, count+1)
	for i := range n.children {
		child := types.DecodeRef(int32(binary.BigEndian.Uint32(data[base+i*childIDSize:])))
		c, ok := child.Get()
		if !ok {
			return nil, dberrors.Inconsistent(ref, nil, "branch child %d missing", i)
		}
		n.children[i] = c
	}
	return n, nil
}

func encodeMeta(m meta, data []byte) {
	clear(data[:metaLength])
	binary.BigEndian.PutUint32(data[0:], metaMagic)
	binary.BigEndian.PutUint32(data[4:], uint32(types.Ref(m.root).Encode()))
	binary.BigEndian.PutUint32(data[8:], uint32(int32(m.height)))
	binary.BigEndian.PutUint32(data[12:], uint32(int32(m.params.Order)))
	binary.BigEndian.PutUint32(data[16:], uint32(int32(m.params.KeyLength)))
	binary.BigEndian.PutUint32(data[20:], uint32(int32(m.params.ValueLength)))
}

func decodeMeta(data []byte) (meta, error) {
	ref := types.Ref(metaBlock)
	if len(data) < metaLength {
		return meta{}, dberrors.Inconsistent(ref, nil, "meta block of %d bytes", len(data))
	}
	if magic := binary.BigEndian.Uint32(data[0:]); magic != metaMagic {
		return meta{}, dberrors.Inconsistent(ref, nil, "bad tree magic %#x", magic)
	}
	root, ok := types.DecodeRef(int32(binary.BigEndian.Uint32(data[4:]))).Get()
	if !ok {
		return meta{}, dberrors.Inconsistent(ref, nil, "tree has no root")
	}
	m := meta{
		root:   root,
		height: int(int32(binary.BigEndian.Uint32(data[8:]))),
		params: Params{
			Order:       int(int32(binary.BigEndian.Uint32(data[12:]))),
			KeyLength:   int(int32(binary.BigEndian.Uint32(data[16:]))),
			ValueLength: int(int32(binary.BigEndian.Uint32(data[20:]))),
		},
	}
	if m.height < 0 {
		return meta{}, dberrors.Inconsistent(ref, nil, "negative tree height %d", m.height)
	}
	return m, nil
}
