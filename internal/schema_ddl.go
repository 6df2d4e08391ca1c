package internal

import (
	"fmt"
	"strings"

	"github.com/lychee-technology/hydra"
)

// valueColumnDDL is the value column definition per backend type.
var valueColumnDDL = map[hydra.BackendType]string{
	hydra.BackendTypeText:                 "value TEXT",
	hydra.BackendTypeNumeric:              "value NUMERIC",
	hydra.BackendTypeDate:                 "value TIMESTAMPTZ",
	hydra.BackendTypeEnumerated:           "value TEXT",
	hydra.BackendTypePolymorphicReference: "value_id BIGINT,\n\t\tvalue_type TEXT",
}

// AttributeTableDDL returns the CREATE TABLE statement for the attribute
// catalog table read by PostgresCatalog.
func AttributeTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id            BIGINT PRIMARY KEY,
		name          TEXT NOT NULL,
		entity_type   TEXT NOT NULL,
		backend_type  TEXT NOT NULL,
		default_value TEXT,
		UNIQUE (entity_type, name)
	)`, sanitizeIdentifier(table))
}

// BackendTablesDDL returns, for every backend type, the CREATE TABLE
// statement of the backend table of entityTable followed by its unique
// (entity_id, entity_type, attribute_id) index.
func BackendTablesDDL(prefix, entityTable string) []string {
	stmts := make([]string, 0, 2*len(hydra.AllBackendTypes))
	for _, bt := range hydra.AllBackendTypes {
		table := BackendTableName(prefix, entityTable, bt)
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id            BIGSERIAL PRIMARY KEY,
		entity_id     BIGINT NOT NULL,
		entity_type   TEXT NOT NULL,
		attribute_id  BIGINT NOT NULL,
		%s,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`, sanitizeIdentifier(table), valueColumnDDL[bt]))
		stmts = append(stmts, fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (entity_id, entity_type, attribute_id)`,
			quoteIdent(indexName(table, "entity_attribute")), sanitizeIdentifier(table)))
	}
	return stmts
}

func indexName(table, suffix string) string {
	base := strings.ReplaceAll(table, ".", "_")
	base = strings.ReplaceAll(base, `"`, "")
	return fmt.Sprintf("%s_%s_idx", base, suffix)
}
