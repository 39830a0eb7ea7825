package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

/*
This file is the main access of Catalog Manager.
Catalog manager keeps the list of tuple tables of an index directory and
their column orders, and persists it as catalog.json next to the index files.
It is loaded when the manager is created.
*/

const FileName = "catalog.json"

// NewCatalogManager loads the catalog in dir. With persist false the catalog
// lives in memory only.
func NewCatalogManager(dir string, persist bool) (*CatalogManager, error) {
	cm := &CatalogManager{
		dir:     dir,
		persist: persist,
		tables:  make(map[string]TableEntry),
	}
	if !persist {
		return cm, nil
	}

	data, err := os.ReadFile(cm.path())
	if err != nil {
		if os.IsNotExist(err) {
			return cm, nil
		}
		return nil, errors.Wrap(err, "failed to read catalog")
	}
	var entries []TableEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog")
	}
	for _, e := range entries {
		cm.tables[e.Name] = e
	}
	return cm, nil
}

func (cm *CatalogManager) path() string {
	return filepath.Join(cm.dir, FileName)
}

func (cm *CatalogManager) TableExists(name string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.tables[name]
	return ok
}

func (cm *CatalogManager) GetTable(name string) (TableEntry, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	e, ok := cm.tables[name]
	if !ok {
		return TableEntry{}, errors.Errorf("table '%s' does not exist", name)
	}
	return e, nil
}

func (cm *CatalogManager) RegisterTable(e TableEntry) error {
	if len(e.Orders) == 0 {
		return errors.Errorf("table '%s' has no index orders", e.Name)
	}
	for _, o := range e.Orders {
		if len(o) != e.Arity() {
			return errors.Errorf("table '%s': order %s does not have %d columns", e.Name, o, e.Arity())
		}
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.tables[e.Name]; ok {
		return errors.Errorf("table '%s' already exists", e.Name)
	}
	cm.tables[e.Name] = e
	if err := cm.persistLocked(); err != nil {
		delete(cm.tables, e.Name)
		return err
	}
	return nil
}

func (cm *CatalogManager) UnregisterTable(name string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	e, ok := cm.tables[name]
	if !ok {
		return errors.Errorf("table '%s' not found in catalog", name)
	}
	delete(cm.tables, name)
	if err := cm.persistLocked(); err != nil {
		cm.tables[name] = e
		return err
	}
	return nil
}

// Tables returns the catalog entries sorted by name.
func (cm *CatalogManager) Tables() []TableEntry {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]TableEntry, 0, len(cm.tables))
	for _, e := range cm.tables {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// persistLocked writes the catalog to a temp file and renames it into place.
func (cm *CatalogManager) persistLocked() error {
	if !cm.persist {
		return nil
	}
	entries := make([]TableEntry, 0, len(cm.tables))
	for _, e := range cm.tables {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cm.dir, 0755); err != nil {
		return err
	}
	tmp := cm.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write catalog")
	}
	return errors.Wrap(os.Rename(tmp, cm.path()), "failed to publish catalog")
}
