package hydra

import (
	"context"
	"fmt"
	"sync"
)

// EntityType describes the host table that owns dynamic attributes.
type EntityType struct {
	// Name is the key used to look up attribute definitions in the catalog.
	Name string `json:"name"`
	// BaseTypeName is stored in the entity_type column of every backend table.
	// Subtypes sharing one table store their base type name here.
	BaseTypeName string `json:"baseTypeName"`
	TableName    string `json:"tableName"`
	PrimaryKey   string `json:"primaryKey"`
}

// Discriminator returns the value written to and compared against entity_type.
func (t EntityType) Discriminator() string {
	if t.BaseTypeName != "" {
		return t.BaseTypeName
	}
	return t.Name
}

// PrimaryKeyName defaults to "id".
func (t EntityType) PrimaryKeyName() string {
	if t.PrimaryKey == "" {
		return "id"
	}
	return t.PrimaryKey
}

// Entity is the host row a value record belongs to. The record borrows it and
// never persists it.
type Entity interface {
	ID() int64
	IsPersisted() bool
	Type() EntityType
}

// ReferenceResolver loads the target of a polymorphic reference.
type ReferenceResolver interface {
	Resolve(ctx context.Context, typeName string, id int64) (Entity, error)
}

// ReferenceLoader loads one entity type by id.
type ReferenceLoader func(ctx context.Context, id int64) (Entity, error)

// ResolverRegistry is a ReferenceResolver backed by per-type loaders.
type ResolverRegistry struct {
	mu      sync.RWMutex
	loaders map[string]ReferenceLoader
}

func NewResolverRegistry() *ResolverRegistry {
	return &ResolverRegistry{loaders: make(map[string]ReferenceLoader)}
}

// Register installs the loader for typeName, replacing any previous one.
func (r *ResolverRegistry) Register(typeName string, loader ReferenceLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[typeName] = loader
}

func (r *ResolverRegistry) Resolve(ctx context.Context, typeName string, id int64) (Entity, error) {
	r.mu.RLock()
	loader, ok := r.loaders[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, NewHydraError(ErrorTypeNotFound, ErrCodeReferenceTypeUnknown,
			fmt.Sprintf("no loader registered for reference type %q", typeName)).
			WithDetail("value_type", typeName)
	}
	return loader(ctx, id)
}
