package internal

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lychee-technology/hydra"
	"go.uber.org/zap"
)

// ColumnCache memoizes virtual column descriptors by attribute id and the
// attribute index of each entity type. Entries are never invalidated: a
// definition changed in the catalog is only picked up by a new cache.
type ColumnCache struct {
	catalog hydra.AttributeCatalog

	mu            sync.RWMutex
	columns       map[int64]*VirtualColumn
	entityIndexes map[string]*AttributeIndex
}

func NewColumnCache(catalog hydra.AttributeCatalog) *ColumnCache {
	return &ColumnCache{
		catalog:       catalog,
		columns:       make(map[int64]*VirtualColumn),
		entityIndexes: make(map[string]*AttributeIndex),
	}
}

// Resolve returns the descriptor for attributeID, contacting the catalog only
// on the first call for that id.
func (c *ColumnCache) Resolve(ctx context.Context, attributeID int64) (*VirtualColumn, error) {
	c.mu.RLock()
	column, ok := c.columns[attributeID]
	c.mu.RUnlock()
	if ok {
		return column, nil
	}

	if c.catalog == nil {
		return nil, fmt.Errorf("attribute catalog is not configured")
	}

	def, err := c.catalog.FindByID(ctx, attributeID)
	if err != nil {
		if hydra.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load attribute %d: %w", attributeID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A concurrent fill may have won; every caller sees the first stored entry.
	if existing, ok := c.columns[attributeID]; ok {
		return existing, nil
	}
	column = newVirtualColumn(def)
	c.columns[attributeID] = column
	EmitCacheFill(ctx, "column", 1)
	zap.S().Debugw("cached virtual column", "attribute_id", attributeID, "name", def.Name, "backend_type", def.BackendType)
	return column, nil
}

// EntityAttributes returns the name index of every attribute declared for
// entityType. The first call primes the id memo with each definition.
func (c *ColumnCache) EntityAttributes(ctx context.Context, entityType string) (*AttributeIndex, error) {
	c.mu.RLock()
	index, ok := c.entityIndexes[entityType]
	c.mu.RUnlock()
	if ok {
		return index, nil
	}

	if c.catalog == nil {
		return nil, fmt.Errorf("attribute catalog is not configured")
	}

	defs, err := c.catalog.FindAllByEntityType(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to load attributes of %s: %w", entityType, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entityIndexes[entityType]; ok {
		return existing, nil
	}

	index = &AttributeIndex{byName: make(map[string]*AttributeEntry, len(defs))}
	for _, def := range defs {
		column, ok := c.columns[def.ID]
		if !ok {
			column = newVirtualColumn(def)
			c.columns[def.ID] = column
		}
		entry := &AttributeEntry{ID: def.ID, Column: column}
		index.byName[def.Name] = entry
		index.entries = append(index.entries, entry)
	}
	sort.Slice(index.entries, func(i, j int) bool { return index.entries[i].ID < index.entries[j].ID })
	c.entityIndexes[entityType] = index
	EmitCacheFill(ctx, "entity_index", int64(len(defs)))
	zap.S().Debugw("cached entity attributes", "entity_type", entityType, "count", len(defs))
	return index, nil
}

// AttributeEntry pairs a declared attribute id with its descriptor.
type AttributeEntry struct {
	ID     int64
	Column *VirtualColumn
}

// AttributeIndex is the immutable set of attributes owned by one entity type.
type AttributeIndex struct {
	byName  map[string]*AttributeEntry
	entries []*AttributeEntry
}

// Lookup finds a declared attribute by name.
func (i *AttributeIndex) Lookup(name string) (*AttributeEntry, bool) {
	entry, ok := i.byName[name]
	return entry, ok
}

// Names returns the declared attribute names ordered by attribute id.
func (i *AttributeIndex) Names() []string {
	names := make([]string, 0, len(i.entries))
	for _, entry := range i.entries {
		names = append(names, entry.Column.Name)
	}
	return names
}

// Entries returns the declared attributes ordered by attribute id.
func (i *AttributeIndex) Entries() []*AttributeEntry {
	out := make([]*AttributeEntry, len(i.entries))
	copy(out, i.entries)
	return out
}

func (i *AttributeIndex) Len() int {
	return len(i.entries)
}
