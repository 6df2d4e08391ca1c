package internal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lychee-technology/hydra"
	"github.com/stretchr/testify/require"
)

var (
	productType  = hydra.EntityType{Name: "Product", TableName: "products"}
	gadgetType   = hydra.EntityType{Name: "Gadget", BaseTypeName: "Product", TableName: "products"}
	categoryType = hydra.EntityType{Name: "Category", TableName: "categories"}
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

type testEntity struct {
	id         int64
	persisted  bool
	entityType hydra.EntityType
}

func (e *testEntity) ID() int64              { return e.id }
func (e *testEntity) IsPersisted() bool      { return e.persisted }
func (e *testEntity) Type() hydra.EntityType { return e.entityType }

func persistedProduct(id int64) *testEntity {
	return &testEntity{id: id, persisted: true, entityType: productType}
}

func persistedCategory(id int64) *testEntity {
	return &testEntity{id: id, persisted: true, entityType: categoryType}
}

func strPtr(s string) *string { return &s }

func testDefinitions() []hydra.AttributeDefinition {
	return []hydra.AttributeDefinition{
		{ID: 9, Name: "color", EntityType: "Product", BackendType: hydra.BackendTypeText},
		{ID: 10, Name: "price", EntityType: "Product", BackendType: hydra.BackendTypeNumeric},
		{ID: 11, Name: "released_at", EntityType: "Product", BackendType: hydra.BackendTypeDate},
		{ID: 12, Name: "tags", EntityType: "Product", BackendType: hydra.BackendTypeEnumerated},
		{ID: 13, Name: "code", EntityType: "Product", BackendType: hydra.BackendTypeText, DefaultValue: strPtr("none")},
		{ID: 14, Name: "featured_item", EntityType: "Product", BackendType: hydra.BackendTypePolymorphicReference},
		{ID: 20, Name: "slug", EntityType: "Category", BackendType: hydra.BackendTypeText},
	}
}

// countingCatalog counts catalog round trips.
type countingCatalog struct {
	inner    hydra.AttributeCatalog
	byID     atomic.Int64
	byEntity atomic.Int64
}

func (c *countingCatalog) FindByID(ctx context.Context, id int64) (hydra.AttributeDefinition, error) {
	c.byID.Add(1)
	return c.inner.FindByID(ctx, id)
}

func (c *countingCatalog) FindAllByEntityType(ctx context.Context, entityType string) ([]hydra.AttributeDefinition, error) {
	c.byEntity.Add(1)
	return c.inner.FindAllByEntityType(ctx, entityType)
}

func newTestCatalog(t *testing.T) *countingCatalog {
	t.Helper()
	catalog, err := NewMemoryCatalog(testDefinitions())
	require.NoError(t, err)
	return &countingCatalog{inner: catalog}
}

func newTestRewriter(t *testing.T) *QueryRewriter {
	t.Helper()
	return NewQueryRewriter(NewColumnCache(newTestCatalog(t)), NewTableRegistry(""))
}

func newTestRepository(t *testing.T, pool valuePool, resolver hydra.ReferenceResolver) *ValueRepository {
	t.Helper()
	repo := NewValueRepository(pool, NewColumnCache(newTestCatalog(t)), NewTableRegistry(""), resolver)
	repo.withClock(func() time.Time { return fixedNow })
	return repo
}
