package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lychee-technology/hydra"
	"github.com/lychee-technology/hydra/internal"
)

// SeedSchema creates the attribute table, an entity table and one backend
// table per backend type for it, using the same DDL as init-db.
func SeedSchema(ctx context.Context, db *sql.DB, attributeTable, entityTable string) error {
	stmts := []string{
		internal.AttributeTableDDL(attributeTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id BIGINT PRIMARY KEY,
  name TEXT NOT NULL
);`, entityTable),
	}
	stmts = append(stmts, internal.BackendTablesDDL("", entityTable)...)

	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// SeedAttributes inserts definitions into the attribute table.
func SeedAttributes(ctx context.Context, db *sql.DB, attributeTable string, defs []hydra.AttributeDefinition) error {
	for _, def := range defs {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (id, name, entity_type, backend_type, default_value)
VALUES ($1,$2,$3,$4,$5)
`, attributeTable), def.ID, def.Name, def.EntityType, string(def.BackendType), def.DefaultValue); err != nil {
			return fmt.Errorf("insert attribute %s: %w", def.Name, err)
		}
	}
	return nil
}

// SeedEntities inserts host rows with ids 1..n.
func SeedEntities(ctx context.Context, db *sql.DB, entityTable string, n int) error {
	for i := 1; i <= n; i++ {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, name) VALUES ($1,$2)`, entityTable), i, fmt.Sprintf("item %d", i)); err != nil {
			return fmt.Errorf("insert %s: %w", entityTable, err)
		}
	}
	return nil
}
