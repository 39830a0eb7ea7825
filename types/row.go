package types

import (
	"fmt"
	"strings"
)

// NodeID is the fixed-width identifier the node table assigns to an RDF term.
// Zero is reserved: in a pattern it means "any".
type NodeID uint64

const (
	NodeIDSize        = 8
	AnyNode    NodeID = 0
)

// Tuple is a triple or quad of node ids in primary (e.g. S,P,O) order.
type Tuple []NodeID

func (t Tuple) Len() int {
	return len(t)
}

func (t Tuple) Clone() Tuple {
	out := make(Tuple, len(t))
	copy(out, t)
	return out
}

// IsPattern reports whether any slot is AnyNode.
func (t Tuple) IsPattern() bool {
	for _, n := range t {
		if n == AnyNode {
			return true
		}
	}
	return false
}

func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, n := range t {
		if n == AnyNode {
			parts[i] = "*"
		} else {
			parts[i] = fmt.Sprintf("%d", n)
		}
	}
	return "(" + strings.Join(parts, " ") + ")"
}
