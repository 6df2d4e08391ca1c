package internal

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/hydra"
	"gopkg.in/yaml.v3"
)

// MemoryCatalog is an in-process AttributeCatalog.
type MemoryCatalog struct {
	byID     map[int64]hydra.AttributeDefinition
	byEntity map[string][]hydra.AttributeDefinition
}

// NewMemoryCatalog indexes defs. Duplicate ids and unsupported backend types
// are rejected.
func NewMemoryCatalog(defs []hydra.AttributeDefinition) (*MemoryCatalog, error) {
	c := &MemoryCatalog{
		byID:     make(map[int64]hydra.AttributeDefinition, len(defs)),
		byEntity: make(map[string][]hydra.AttributeDefinition),
	}
	for _, def := range defs {
		if def.ID == 0 {
			return nil, fmt.Errorf("attribute %q has no id", def.Name)
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate attribute id %d", def.ID)
		}
		if !def.BackendType.Valid() {
			bt, err := hydra.ParseBackendType(string(def.BackendType))
			if err != nil {
				return nil, err
			}
			def.BackendType = bt
		}
		c.byID[def.ID] = def
		c.byEntity[def.EntityType] = append(c.byEntity[def.EntityType], def)
	}
	for _, list := range c.byEntity {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return c, nil
}

func (c *MemoryCatalog) FindByID(_ context.Context, id int64) (hydra.AttributeDefinition, error) {
	def, ok := c.byID[id]
	if !ok {
		return hydra.AttributeDefinition{}, hydra.NewAttributeNotFoundError(id)
	}
	return def, nil
}

func (c *MemoryCatalog) FindAllByEntityType(_ context.Context, entityType string) ([]hydra.AttributeDefinition, error) {
	defs := c.byEntity[entityType]
	out := make([]hydra.AttributeDefinition, len(defs))
	copy(out, defs)
	return out, nil
}

// EntityTypes returns every entity type with at least one attribute.
func (c *MemoryCatalog) EntityTypes() []string {
	names := make([]string, 0, len(c.byEntity))
	for name := range c.byEntity {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type catalogDocument struct {
	Attributes []hydra.AttributeDefinition `yaml:"attributes"`
}

// LoadFileCatalog reads a YAML document of the form:
//
//	attributes:
//	  - id: 9
//	    name: color
//	    entity_type: Product
//	    backend_type: text
func LoadFileCatalog(path string) (*MemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return ParseCatalog(data)
}

//go:embed catalog_schema.json
var catalogSchemaJSON []byte

var catalogSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(catalogSchemaJSON, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
	}
	return schema.Resolve(&jsonschema.ResolveOptions{})
})

// validateCatalogDocument checks the document shape before it is decoded.
// YAML is round-tripped through JSON so numbers validate as JSON numbers.
func validateCatalogDocument(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	encoded, err := json.Marshal(normalizeContainer(raw))
	if err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	var instance any
	if err := json.Unmarshal(encoded, &instance); err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}

	resolved, err := catalogSchema()
	if err != nil {
		return fmt.Errorf("failed to resolve catalog schema: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("invalid catalog document: %w", err)
	}
	return nil
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*MemoryCatalog, error) {
	if err := validateCatalogDocument(data); err != nil {
		return nil, err
	}
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return NewMemoryCatalog(doc.Attributes)
}
