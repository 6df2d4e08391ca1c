package internal

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lychee-technology/hydra"
)

// Backend table column names.
const (
	colID          = "id"
	colEntityID    = "entity_id"
	colEntityType  = "entity_type"
	colAttributeID = "attribute_id"
	colValue       = "value"
	colValueID     = "value_id"
	colValueType   = "value_type"
	colCreatedAt   = "created_at"
	colUpdatedAt   = "updated_at"
)

// BackendTable describes the physical table holding every value of one
// backend type for one entity table.
type BackendTable struct {
	Name        string
	EntityTable string
	BackendType hydra.BackendType
	Columns     []string
}

// ValueColumns returns the columns that carry the attribute value.
func (t *BackendTable) ValueColumns() []string {
	if t.BackendType.IsPolymorphic() {
		return []string{colValueID, colValueType}
	}
	return []string{colValue}
}

type tableKey struct {
	entityTable string
	backendType hydra.BackendType
}

// TableRegistry memoizes backend table descriptors by (entity table,
// backend type). Descriptors are immutable and never evicted.
type TableRegistry struct {
	prefix string
	tables sync.Map
}

// NewTableRegistry creates a registry; prefix is prepended to every table name.
func NewTableRegistry(prefix string) *TableRegistry {
	return &TableRegistry{prefix: prefix}
}

// Resolve returns the descriptor for the pair, creating it on first use.
func (r *TableRegistry) Resolve(entityTable string, backendType hydra.BackendType) (*BackendTable, error) {
	key := tableKey{entityTable: entityTable, backendType: backendType}
	if cached, ok := r.tables.Load(key); ok {
		return cached.(*BackendTable), nil
	}
	if strings.TrimSpace(entityTable) == "" {
		return nil, fmt.Errorf("entity table name cannot be empty")
	}

	var valueColumns []string
	switch backendType {
	case hydra.BackendTypeText, hydra.BackendTypeNumeric, hydra.BackendTypeDate, hydra.BackendTypeEnumerated:
		valueColumns = []string{colValue}
	case hydra.BackendTypePolymorphicReference:
		valueColumns = []string{colValueID, colValueType}
	default:
		return nil, hydra.NewUnsupportedBackendTypeError(string(backendType))
	}

	columns := []string{colID, colEntityID, colEntityType, colAttributeID}
	columns = append(columns, valueColumns...)
	columns = append(columns, colCreatedAt, colUpdatedAt)

	table := &BackendTable{
		Name:        BackendTableName(r.prefix, entityTable, backendType),
		EntityTable: entityTable,
		BackendType: backendType,
		Columns:     columns,
	}
	actual, _ := r.tables.LoadOrStore(key, table)
	return actual.(*BackendTable), nil
}

// BackendTableName is <prefix><backend-type>_<entity-table>.
func BackendTableName(prefix, entityTable string, backendType hydra.BackendType) string {
	return prefix + string(backendType) + "_" + entityTable
}

// insertStatement writes a new value row and returns its id.
func (t *BackendTable) insertStatement(entityID int64, entityType string, attributeID int64, values []any, now any) (string, []any) {
	valueColumns := t.ValueColumns()
	columns := []string{colEntityID, colEntityType, colAttributeID}
	columns = append(columns, valueColumns...)
	columns = append(columns, colCreatedAt, colUpdatedAt)

	args := []any{entityID, entityType, attributeID}
	args = append(args, values...)
	args = append(args, now, now)

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = sanitizeIdentifier(column)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		sanitizeIdentifier(t.Name),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		sanitizeIdentifier(colID),
	)
	return query, args
}

// updateStatement rewrites the changed value columns plus updated_at.
func (t *BackendTable) updateStatement(id int64, changed map[string]any, now any) (string, []any) {
	columns := make([]string, 0, len(changed))
	for column := range changed {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	sets := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+2)
	for _, column := range columns {
		args = append(args, changed[column])
		sets = append(sets, fmt.Sprintf("%s = $%d", sanitizeIdentifier(column), len(args)))
	}
	args = append(args, now)
	sets = append(sets, fmt.Sprintf("%s = $%d", sanitizeIdentifier(colUpdatedAt), len(args)))
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d",
		sanitizeIdentifier(t.Name),
		strings.Join(sets, ", "),
		sanitizeIdentifier(colID),
		len(args),
	)
	return query, args
}

// deleteStatement removes the rows of one entity for a group of attributes.
func (t *BackendTable) deleteStatement(entityID int64, attributeIDs []int64) (string, []any) {
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE %s = $1 AND %s = ANY($2)",
		sanitizeIdentifier(t.Name),
		sanitizeIdentifier(colEntityID),
		sanitizeIdentifier(colAttributeID),
	)
	return query, []any{entityID, attributeIDs}
}

func (t *BackendTable) selectColumns(withAttribute bool) string {
	columns := []string{sanitizeIdentifier(colID)}
	if withAttribute {
		columns = append(columns, sanitizeIdentifier(colAttributeID))
	}
	for _, column := range t.ValueColumns() {
		columns = append(columns, sanitizeIdentifier(column))
	}
	return strings.Join(columns, ", ")
}

// selectOneStatement reads the value row of one (entity, attribute) pair.
func (t *BackendTable) selectOneStatement(entityID int64, entityType string, attributeID int64) (string, []any) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 AND %s = $2 AND %s = $3 LIMIT 1",
		t.selectColumns(false),
		sanitizeIdentifier(t.Name),
		sanitizeIdentifier(colEntityID),
		sanitizeIdentifier(colEntityType),
		sanitizeIdentifier(colAttributeID),
	)
	return query, []any{entityID, entityType, attributeID}
}

// selectManyStatement reads the value rows of one entity for a group of attributes.
func (t *BackendTable) selectManyStatement(entityID int64, entityType string, attributeIDs []int64) (string, []any) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 AND %s = $2 AND %s = ANY($3)",
		t.selectColumns(true),
		sanitizeIdentifier(t.Name),
		sanitizeIdentifier(colEntityID),
		sanitizeIdentifier(colEntityType),
		sanitizeIdentifier(colAttributeID),
	)
	return query, []any{entityID, entityType, attributeIDs}
}
