package bplus

import (
	"QuadDB/storage_engine/dberrors"
	"QuadDB/types"
)

// frame is one branch on the way down, with the child taken.
type frame struct {
	node *Node
	idx  int
}

// findLeaf descends from the root to the record page whose range holds key.
// A nil key takes the leftmost path. The returned path runs root first.
func (t *BPlusTree) findLeaf(m meta, key []byte) (types.BlockID, []frame, error) {
	id := m.root
	path := make([]frame, 0, m.height)
	for level := 0; level < m.height; level++ {
		n, err := t.fetchNode(id)
		if err != nil {
			return 0, nil, err
		}
		if n.leafChildren != (level == m.height-1) {
			dberrors.Fatalf(types.Ref(id), key, "branch at level %d of %d has wrong kind", level, m.height)
		}
		i := 0
		if key != nil {
			i = childIndex(n.keys, key)
		}
		path = append(path, frame{node: n, idx: i})
		id = n.children[i]
	}
	return id, path, nil
}
