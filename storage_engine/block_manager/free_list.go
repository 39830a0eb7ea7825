package blockmanager

import (
	"QuadDB/types"

	"github.com/google/btree"
)

// freeList is the ordered set of freed block ids. Allocation reuses the
// lowest one first so files stay compact.
type freeList struct {
	ids *btree.BTreeG[types.BlockID]
}

func newFreeList() *freeList {
	return &freeList{
		ids: btree.NewG[types.BlockID](16, func(a, b types.BlockID) bool { return a < b }),
	}
}

// Add returns false if id was already free.
func (f *freeList) Add(id types.BlockID) bool {
	_, existed := f.ids.ReplaceOrInsert(id)
	return !existed
}

func (f *freeList) Take() (types.BlockID, bool) {
	return f.ids.DeleteMin()
}

func (f *freeList) Has(id types.BlockID) bool {
	return f.ids.Has(id)
}

func (f *freeList) Len() int {
	return f.ids.Len()
}

func (f *freeList) IDs() []types.BlockID {
	out := make([]types.BlockID, 0, f.ids.Len())
	f.ids.Ascend(func(id types.BlockID) bool {
		out = append(out, id)
		return true
	})
	return out
}
