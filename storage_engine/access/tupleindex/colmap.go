package tupleindex

import (
	"strings"

	"QuadDB/types"

	"github.com/pkg/errors"
)

// ColumnMap reorders tuples between the primary column order, e.g. "SPO",
// and the column order of one index, e.g. "POS".
type ColumnMap struct {
	primary string
	index   string
	// toIndex[i] is the primary position of index column i
	toIndex   []int
	fromIndex []int
}

func NewColumnMap(primary, index string) (ColumnMap, error) {
	if len(primary) == 0 || len(primary) != len(index) {
		return ColumnMap{}, errors.Errorf("column map %s->%s: lengths differ", primary, index)
	}
	cm := ColumnMap{
		primary:   primary,
		index:     index,
		toIndex:   make([]int, len(index)),
		fromIndex: make([]int, len(index)),
	}
	for i := 0; i < len(index); i++ {
		col := index[i]
		if strings.IndexByte(index[i+1:], col) >= 0 {
			return ColumnMap{}, errors.Errorf("column map %s->%s: column %c repeated", primary, index, col)
		}
		p := strings.IndexByte(primary, col)
		if p < 0 {
			return ColumnMap{}, errors.Errorf("column map %s->%s: column %c not in primary order", primary, index, col)
		}
		cm.toIndex[i] = p
		cm.fromIndex[p] = i
	}
	return cm, nil
}

// MustColumnMap is NewColumnMap for fixed, known-good orders.
func MustColumnMap(primary, index string) ColumnMap {
	cm, err := NewColumnMap(primary, index)
	if err != nil {
		panic(err)
	}
	return cm
}

// Map puts a primary-order tuple into index order.
func (c ColumnMap) Map(t types.Tuple) types.Tuple {
	out := make(types.Tuple, len(c.toIndex))
	for i, p := range c.toIndex {
		out[i] = t[p]
	}
	return out
}

// Unmap puts an index-order tuple back into primary order.
func (c ColumnMap) Unmap(t types.Tuple) types.Tuple {
	out := make(types.Tuple, len(c.fromIndex))
	for p, i := range c.fromIndex {
		out[p] = t[i]
	}
	return out
}

func (c ColumnMap) Len() int {
	return len(c.toIndex)
}

func (c ColumnMap) Primary() string {
	return c.primary
}

func (c ColumnMap) Index() string {
	return c.index
}

func (c ColumnMap) String() string {
	return c.primary + "->" + c.index
}
