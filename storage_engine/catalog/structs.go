package catalog

import "sync"

type CatalogManager struct {
	dir     string
	persist bool
	tables  map[string]TableEntry
	mu      sync.RWMutex
}

// TableEntry is what the catalog records about one tuple table.
type TableEntry struct {
	Name   string   `json:"name"`
	Orders []string `json:"orders"` // Orders[0] is the primary column order
	Order  int      `json:"order"`  // B+Tree order, 0 = largest that fits
}

func (e TableEntry) Arity() int {
	if len(e.Orders) == 0 {
		return 0
	}
	return len(e.Orders[0])
}
