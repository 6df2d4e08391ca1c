package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/hydra"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// valuePool is the subset of pgx used for value rows. *pgxpool.Pool, pgx.Tx
// and pgxmock pools all satisfy it.
type valuePool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ValueRepository builds, loads and deletes value records.
type ValueRepository struct {
	pool       valuePool
	columns    *ColumnCache
	tables     *TableRegistry
	references hydra.ReferenceResolver
	nowFunc    func() time.Time
}

func NewValueRepository(pool valuePool, columns *ColumnCache, tables *TableRegistry, references hydra.ReferenceResolver) *ValueRepository {
	return &ValueRepository{
		pool:       pool,
		columns:    columns,
		tables:     tables,
		references: references,
		nowFunc:    time.Now,
	}
}

// WithPool returns a repository sharing the caches but issuing statements on
// pool, typically a pgx.Tx wrapping several saves.
func (r *ValueRepository) WithPool(pool valuePool) *ValueRepository {
	clone := *r
	clone.pool = pool
	return &clone
}

func (r *ValueRepository) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	r.nowFunc = now
}

func (r *ValueRepository) now() time.Time {
	if r.nowFunc == nil {
		return time.Now().UTC()
	}
	return r.nowFunc().UTC()
}

// NewValue builds a transient record from attrs. AttributeID is mandatory.
func (r *ValueRepository) NewValue(ctx context.Context, entity hydra.Entity, attrs hydra.ValueAttributes) (*ValueRecord, error) {
	if attrs.AttributeID == 0 {
		return nil, hydra.NewMissingAttributeDefinitionError()
	}
	if entity == nil {
		return nil, fmt.Errorf("entity cannot be nil")
	}
	column, err := r.columns.Resolve(ctx, attrs.AttributeID)
	if err != nil {
		return nil, err
	}
	return newValueRecord(r, entity, column, attrs)
}

// Load reads the stored value of one attribute. When no row exists the
// record carries the column default and is not persisted.
func (r *ValueRepository) Load(ctx context.Context, entity hydra.Entity, attributeID int64) (*ValueRecord, error) {
	if attributeID == 0 {
		return nil, hydra.NewMissingAttributeDefinitionError()
	}
	if entity == nil {
		return nil, fmt.Errorf("entity cannot be nil")
	}
	column, err := r.columns.Resolve(ctx, attributeID)
	if err != nil {
		return nil, err
	}
	if !entity.IsPersisted() {
		return newValueRecord(r, entity, column, hydra.ValueAttributes{AttributeID: attributeID})
	}
	table, err := r.tables.Resolve(entity.Type().TableName, column.BackendType)
	if err != nil {
		return nil, err
	}

	query, args := table.selectOneStatement(entity.ID(), entity.Type().Discriminator(), attributeID)
	row := newValueRow(column.BackendType)
	if err := r.pool.QueryRow(ctx, query, args...).Scan(row.targets(false)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return newValueRecord(r, entity, column, hydra.ValueAttributes{AttributeID: attributeID})
		}
		return nil, fmt.Errorf("failed to load value of attribute %d from %s: %w", attributeID, table.Name, err)
	}
	return newValueRecord(r, entity, column, row.attributes(attributeID))
}

// LoadAll returns one record per attribute declared for the entity type,
// ordered by attribute id. One select is issued per backend table.
func (r *ValueRepository) LoadAll(ctx context.Context, entity hydra.Entity) (records []*ValueRecord, err error) {
	if entity == nil {
		return nil, fmt.Errorf("entity cannot be nil")
	}
	ctx, span := startSpan(ctx, "hydra.LoadAll",
		attribute.String("hydra.entity_type", entity.Type().Name),
		attribute.Int64("hydra.entity_id", entity.ID()))
	defer func() { endSpan(span, err) }()
	index, err := r.columns.EntityAttributes(ctx, entity.Type().Name)
	if err != nil {
		return nil, err
	}
	entries := index.Entries()
	loaded := make(map[int64]hydra.ValueAttributes, len(entries))

	if entity.IsPersisted() {
		backendTypes, groups := GroupBy(entries, func(e *AttributeEntry) hydra.BackendType { return e.Column.BackendType })
		for _, backendType := range backendTypes {
			table, err := r.tables.Resolve(entity.Type().TableName, backendType)
			if err != nil {
				return nil, err
			}
			ids := attributeIDs(groups[backendType])
			found, err := r.selectMany(ctx, table, entity, ids)
			if err != nil {
				return nil, err
			}
			for id, attrs := range found {
				loaded[id] = attrs
			}
		}
	}

	records = make([]*ValueRecord, 0, len(entries))
	for _, entry := range entries {
		attrs, ok := loaded[entry.ID]
		if !ok {
			attrs = hydra.ValueAttributes{AttributeID: entry.ID}
		}
		rec, err := newValueRecord(r, entity, entry.Column, attrs)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *ValueRepository) selectMany(ctx context.Context, table *BackendTable, entity hydra.Entity, ids []int64) (map[int64]hydra.ValueAttributes, error) {
	query, args := table.selectManyStatement(entity.ID(), entity.Type().Discriminator(), ids)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table.Name, err)
	}
	defer rows.Close()

	found := make(map[int64]hydra.ValueAttributes)
	for rows.Next() {
		row := newValueRow(table.BackendType)
		if err := rows.Scan(row.targets(true)...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table.Name, err)
		}
		found[row.attributeID] = row.attributes(row.attributeID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", table.Name, err)
	}
	return found, nil
}

// DeleteAllForEntity removes every stored value of the entity's declared
// attributes, issuing one delete per backend table in use.
func (r *ValueRepository) DeleteAllForEntity(ctx context.Context, entity hydra.Entity) error {
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	if entity.ID() == 0 {
		return nil
	}
	index, err := r.columns.EntityAttributes(ctx, entity.Type().Name)
	if err != nil {
		return err
	}
	backendTypes, groups := GroupBy(index.Entries(), func(e *AttributeEntry) hydra.BackendType { return e.Column.BackendType })
	for _, backendType := range backendTypes {
		table, err := r.tables.Resolve(entity.Type().TableName, backendType)
		if err != nil {
			return err
		}
		query, args := table.deleteStatement(entity.ID(), attributeIDs(groups[backendType]))
		tag, err := r.pool.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to delete values from %s: %w", table.Name, err)
		}
		zap.S().Debugw("deleted entity values", "table", table.Name, "entity_id", entity.ID(), "rows", tag.RowsAffected())
	}
	return nil
}

func attributeIDs(entries []*AttributeEntry) []int64 {
	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	return ids
}

// valueRow holds scan targets typed for one backend table.
type valueRow struct {
	backendType hydra.BackendType
	id          int64
	attributeID int64
	text        *string
	numeric     *float64
	date        *time.Time
	valueID     *int64
	valueType   *string
}

func newValueRow(backendType hydra.BackendType) *valueRow {
	return &valueRow{backendType: backendType}
}

func (r *valueRow) targets(withAttribute bool) []any {
	targets := []any{&r.id}
	if withAttribute {
		targets = append(targets, &r.attributeID)
	}
	switch r.backendType {
	case hydra.BackendTypeText, hydra.BackendTypeEnumerated:
		targets = append(targets, &r.text)
	case hydra.BackendTypeNumeric:
		targets = append(targets, &r.numeric)
	case hydra.BackendTypeDate:
		targets = append(targets, &r.date)
	case hydra.BackendTypePolymorphicReference:
		targets = append(targets, &r.valueID, &r.valueType)
	}
	return targets
}

func (r *valueRow) attributes(attributeID int64) hydra.ValueAttributes {
	attrs := hydra.ValueAttributes{AttributeID: attributeID, ID: int64Ptr(r.id)}
	switch r.backendType {
	case hydra.BackendTypeText, hydra.BackendTypeEnumerated:
		if r.text != nil {
			return attrs.WithValue(*r.text)
		}
		return attrs.WithValue(nil)
	case hydra.BackendTypeNumeric:
		if r.numeric != nil {
			return attrs.WithValue(*r.numeric)
		}
		return attrs.WithValue(nil)
	case hydra.BackendTypeDate:
		if r.date != nil {
			return attrs.WithValue(*r.date)
		}
		return attrs.WithValue(nil)
	case hydra.BackendTypePolymorphicReference:
		// Either half may be stored alone.
		if r.valueID != nil {
			attrs.ValueID = int64Ptr(*r.valueID)
		}
		if r.valueType != nil {
			attrs.ValueType = stringPtr(*r.valueType)
		}
	}
	return attrs
}
