package internal

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/hydra"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalogColumns = []string{"id", "name", "entity_type", "backend_type", "default_value"}

func TestPostgresCatalogFindByID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	def := "none"
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, entity_type, backend_type, default_value FROM "hydra_attributes" WHERE id = $1`)).
		WithArgs(int64(13)).
		WillReturnRows(pgxmock.NewRows(catalogColumns).AddRow(int64(13), "code", "Product", "string", &def))

	catalog := NewPostgresCatalog(mock, "")
	got, err := catalog.FindByID(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, "code", got.Name)
	assert.Equal(t, "Product", got.EntityType)
	assert.Equal(t, hydra.BackendTypeText, got.BackendType)
	require.NotNil(t, got.DefaultValue)
	assert.Equal(t, "none", *got.DefaultValue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogFindByIDNotFound(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM "attrs" WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresCatalog(mock, "attrs").FindByID(ctx, 99)
	require.Error(t, err)
	assert.True(t, hydra.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogFindByIDRejectsUnknownBackendType(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM "hydra_attributes"`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(catalogColumns).AddRow(int64(1), "blob", "Product", "binary", (*string)(nil)))

	_, err = NewPostgresCatalog(mock, "").FindByID(ctx, 1)
	assert.True(t, hydra.IsCode(err, hydra.ErrCodeUnsupportedBackendType))
}

func TestPostgresCatalogFindAllByEntityType(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(catalogColumns).
		AddRow(int64(9), "color", "Product", "text", (*string)(nil)).
		AddRow(int64(10), "weird", "Product", "binary", (*string)(nil)).
		AddRow(int64(14), "featured_item", "Product", "polymorphic_association", (*string)(nil))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, entity_type, backend_type, default_value FROM "hydra_attributes" WHERE entity_type = $1 ORDER BY id`)).
		WithArgs("Product").
		WillReturnRows(rows)

	defs, err := NewPostgresCatalog(mock, "hydra_attributes").FindAllByEntityType(ctx, "Product")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, hydra.BackendTypeText, defs[0].BackendType)
	assert.Equal(t, hydra.BackendTypePolymorphicReference, defs[1].BackendType)
	assert.Nil(t, defs[0].DefaultValue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogQueryFailure(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("timeout")
	mock.ExpectQuery(`FROM "hydra_attributes"`).WithArgs("Product").WillReturnError(boom)

	_, err = NewPostgresCatalog(mock, "").FindAllByEntityType(ctx, "Product")
	assert.ErrorIs(t, err, boom)
}
