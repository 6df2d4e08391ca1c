package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/hydra"
	"go.uber.org/zap"
)

type catalogPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCatalog reads attribute definitions from the attribute table
// (id, name, entity_type, backend_type, default_value).
type PostgresCatalog struct {
	pool  catalogPool
	table string
}

func NewPostgresCatalog(pool catalogPool, table string) *PostgresCatalog {
	if table == "" {
		table = "hydra_attributes"
	}
	return &PostgresCatalog{pool: pool, table: table}
}

func (c *PostgresCatalog) selectColumns() string {
	return "id, name, entity_type, backend_type, default_value"
}

func (c *PostgresCatalog) FindByID(ctx context.Context, id int64) (hydra.AttributeDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", c.selectColumns(), sanitizeIdentifier(c.table))

	var (
		def         hydra.AttributeDefinition
		backendType string
	)
	err := c.pool.QueryRow(ctx, query, id).Scan(&def.ID, &def.Name, &def.EntityType, &backendType, &def.DefaultValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return hydra.AttributeDefinition{}, hydra.NewAttributeNotFoundError(id)
		}
		return hydra.AttributeDefinition{}, fmt.Errorf("failed to query attribute %d: %w", id, err)
	}
	bt, err := hydra.ParseBackendType(backendType)
	if err != nil {
		return hydra.AttributeDefinition{}, err
	}
	def.BackendType = bt
	return def, nil
}

func (c *PostgresCatalog) FindAllByEntityType(ctx context.Context, entityType string) ([]hydra.AttributeDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE entity_type = $1 ORDER BY id", c.selectColumns(), sanitizeIdentifier(c.table))

	rows, err := c.pool.Query(ctx, query, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to query attributes of %s: %w", entityType, err)
	}
	defer rows.Close()

	defs := make([]hydra.AttributeDefinition, 0)
	for rows.Next() {
		var (
			def         hydra.AttributeDefinition
			backendType string
		)
		if err := rows.Scan(&def.ID, &def.Name, &def.EntityType, &backendType, &def.DefaultValue); err != nil {
			return nil, fmt.Errorf("failed to scan attribute row: %w", err)
		}
		bt, err := hydra.ParseBackendType(backendType)
		if err != nil {
			zap.S().Warnw("skipping attribute with unsupported backend type", "attribute_id", def.ID, "backend_type", backendType)
			continue
		}
		def.BackendType = bt
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attribute rows: %w", err)
	}

	zap.S().Infow("loaded attribute definitions", "entity_type", entityType, "count", len(defs))
	return defs, nil
}
