package hydra

import (
	"context"
)

// AttributeDefinition is a catalog entry: entity type X owns attribute Name of
// backend type BackendType with an optional default.
type AttributeDefinition struct {
	ID           int64       `json:"id" yaml:"id"`
	Name         string      `json:"name" yaml:"name"`
	EntityType   string      `json:"entityType" yaml:"entity_type"`
	BackendType  BackendType `json:"backendType" yaml:"backend_type"`
	DefaultValue *string     `json:"defaultValue,omitempty" yaml:"default_value,omitempty"`
}

// AttributeCatalog provides read-only access to attribute definitions.
// FindByID returns an error with code ErrCodeAttributeNotFound for unknown ids.
type AttributeCatalog interface {
	FindByID(ctx context.Context, id int64) (AttributeDefinition, error)
	FindAllByEntityType(ctx context.Context, entityType string) ([]AttributeDefinition, error)
}
