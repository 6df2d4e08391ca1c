package internal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/hydra"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// queryPool runs compiled statements.
type queryPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// QueryRewriter compiles entity queries whose filters and orderings may name
// dynamic attributes into joins against the backend tables.
type QueryRewriter struct {
	columns    *ColumnCache
	tables     *TableRegistry
	logQueries bool
}

func NewQueryRewriter(columns *ColumnCache, tables *TableRegistry) *QueryRewriter {
	return &QueryRewriter{columns: columns, tables: tables}
}

// WithQueryLogging logs every compiled statement at info level instead of debug.
func (r *QueryRewriter) WithQueryLogging(enabled bool) *QueryRewriter {
	r.logQueries = enabled
	return r
}

// NewQuery starts an empty query session over entityType.
func (r *QueryRewriter) NewQuery(entityType hydra.EntityType) *Query {
	return &Query{rewriter: r, entity: entityType}
}

// FindIDs executes q projected onto the primary key.
func (r *QueryRewriter) FindIDs(ctx context.Context, pool queryPool, q *Query) (ids []int64, err error) {
	ctx, span := startSpan(ctx, "hydra.FindIDs",
		attribute.String("hydra.entity_type", q.entity.Name),
		attribute.String("hydra.entity_table", q.entity.TableName))
	defer func() { endSpan(span, err) }()

	stmt, err := q.BuildIDs(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("hydra.joins", q.JoinCount()))
	rows, err := pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute attribute query: %w", err)
	}
	defer rows.Close()

	ids = make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity ids: %w", err)
	}
	span.SetAttributes(attribute.Int("hydra.rows", len(ids)))
	return ids, nil
}

type queryState int

const (
	queryEmpty queryState = iota
	queryAccumulating
	queryFinalized
)

type filterClause struct {
	name  string
	value any
}

type orderClause struct {
	name      string
	direction hydra.SortOrder
}

// Query is one query build session: Empty, then Accumulating while filters
// and orders are added, then Finalized by the first Build.
type Query struct {
	rewriter *QueryRewriter
	entity   hydra.EntityType
	state    queryState

	filters []filterClause
	orders  []orderClause
	limit   int
	offset  int
	errs    []error

	stmt     *hydra.Statement
	idStmt   *hydra.Statement
	buildErr error
	joins    int
}

func (q *Query) accumulate() bool {
	if q.state == queryFinalized {
		q.errs = append(q.errs, hydra.NewQueryFinalizedError())
		return false
	}
	q.state = queryAccumulating
	return true
}

// Where adds an equality filter. nil matches missing values and slices match
// any element.
func (q *Query) Where(name string, value any) *Query {
	if !q.accumulate() {
		return q
	}
	q.filters = append(q.filters, filterClause{name: name, value: value})
	return q
}

// OrderBy adds a sort key. An empty direction sorts ascending.
func (q *Query) OrderBy(name string, direction hydra.SortOrder) *Query {
	if !q.accumulate() {
		return q
	}
	switch direction {
	case "", hydra.SortOrderAsc, hydra.SortOrderDesc:
	default:
		q.errs = append(q.errs, hydra.NewHydraError(hydra.ErrorTypeQuery, hydra.ErrCodeQueryBuildFailed,
			fmt.Sprintf("invalid sort direction %q", direction)).WithField(name))
		return q
	}
	q.orders = append(q.orders, orderClause{name: name, direction: direction})
	return q
}

func (q *Query) Limit(n int) *Query {
	if !q.accumulate() {
		return q
	}
	q.limit = n
	return q
}

func (q *Query) Offset(n int) *Query {
	if !q.accumulate() {
		return q
	}
	q.offset = n
	return q
}

// Err reports every error recorded on the session, including modifications
// attempted after finalization.
func (q *Query) Err() error {
	return errors.Join(q.errs...)
}

// Finalized reports whether Build has run.
func (q *Query) Finalized() bool {
	return q.state == queryFinalized
}

// JoinCount is the number of backend joins in the compiled statement.
func (q *Query) JoinCount() int {
	return q.joins
}

// Build finalizes the session and compiles the statement selecting full
// entity rows. Later calls return the same statement.
func (q *Query) Build(ctx context.Context) (*hydra.Statement, error) {
	if q.stmt != nil || q.buildErr != nil {
		return q.stmt, q.buildErr
	}
	projection := quoteIdent(q.entity.TableName) + ".*"
	q.stmt, q.buildErr = q.finalize(ctx, projection)
	return q.stmt, q.buildErr
}

// BuildIDs is Build projected onto the entity primary key.
func (q *Query) BuildIDs(ctx context.Context) (*hydra.Statement, error) {
	if q.idStmt != nil {
		return q.idStmt, nil
	}
	projection := qualifiedColumn(q.entity.TableName, q.entity.PrimaryKeyName())
	stmt, err := q.finalize(ctx, projection)
	if err != nil {
		return nil, err
	}
	q.idStmt = stmt
	return stmt, nil
}

func (q *Query) finalize(ctx context.Context, projection string) (*hydra.Statement, error) {
	q.state = queryFinalized
	if len(q.errs) > 0 {
		return nil, errors.Join(q.errs...)
	}
	if strings.TrimSpace(q.entity.TableName) == "" {
		return nil, hydra.NewHydraError(hydra.ErrorTypeQuery, hydra.ErrCodeQueryBuildFailed,
			"entity table name cannot be empty")
	}
	c := &queryCompiler{
		rewriter: q.rewriter,
		entity:   q.entity,
		aliases:  NewJoinAliasSet(),
		table:    q.entity.TableName,
	}
	stmt, err := c.compile(ctx, q, projection)
	if err != nil {
		return nil, err
	}
	q.joins = c.aliases.Len()
	return stmt, nil
}

// queryCompiler holds the per-build state: the join alias set and the
// collected parameters.
type queryCompiler struct {
	rewriter *QueryRewriter
	entity   hydra.EntityType
	table    string
	aliases  *JoinAliasSet
	index    *AttributeIndex
	args     []any
}

func (c *queryCompiler) param(v any) string {
	c.args = append(c.args, v)
	return "$" + strconv.Itoa(len(c.args))
}

func (c *queryCompiler) compile(ctx context.Context, q *Query, projection string) (*hydra.Statement, error) {
	index, err := c.rewriter.columns.EntityAttributes(ctx, c.entity.Name)
	if err != nil {
		return nil, err
	}
	c.index = index

	conditions := make([]string, 0, len(q.filters))
	for _, filter := range q.filters {
		condition, err := c.filterCondition(filter)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, condition)
	}

	orders := make([]string, 0, len(q.orders))
	for _, order := range q.orders {
		terms, err := c.orderTerms(order)
		if err != nil {
			return nil, err
		}
		orders = append(orders, terms...)
	}

	data := attributeQueryTemplateData{
		Projection: projection,
		Table:      quoteIdent(c.table),
		Conditions: conditions,
		Orders:     orders,
	}
	for _, alias := range c.aliases.Aliases() {
		data.Joins = append(data.Joins, joinClause(alias, c.table, c.entity.PrimaryKeyName(), c.entity.Discriminator()))
	}
	if q.limit > 0 {
		data.Limit = strconv.Itoa(q.limit)
	}
	if q.offset > 0 {
		data.Offset = strconv.Itoa(q.offset)
	}

	sql, err := renderTemplate(attributeQuerySQLTemplate, data)
	if err != nil {
		return nil, hydra.NewHydraError(hydra.ErrorTypeInternal, hydra.ErrCodeQueryBuildFailed,
			"failed to render attribute query").WithCause(err)
	}

	stmt := &hydra.Statement{SQL: sql, Args: c.args, TraceID: uuid.New()}
	fields := []any{"trace_id", stmt.TraceID, "entity_type", c.entity.Name, "joins", c.aliases.Len(), "sql", stmt.SQL, "args", stmt.Args}
	if c.rewriter.logQueries {
		zap.S().Infow("compiled attribute query", fields...)
	} else {
		zap.S().Debugw("compiled attribute query", fields...)
	}
	EmitJoinCount(ctx, c.table, c.aliases.Len())
	return stmt, nil
}

func (c *queryCompiler) filterCondition(filter filterClause) (string, error) {
	entry, ok := c.index.Lookup(filter.name)
	if !ok {
		return c.nativeCondition(qualifiedColumn(c.table, filter.name), filter.value), nil
	}
	table, err := c.rewriter.tables.Resolve(c.table, entry.Column.BackendType)
	if err != nil {
		return "", err
	}
	if entry.Column.BackendType.IsPolymorphic() {
		kind := JoinInner
		if filter.value == nil {
			kind = JoinLeft
		}
		alias, _ := c.aliases.Add(table, kind, filter.name, entry.ID)
		return c.referenceCondition(alias, entry.Column, filter.value)
	}

	// The comparison is resolved before the join kind: a filter that can
	// match NULL needs a left join so entities without a row survive it.
	var (
		operand  any
		isList   bool
		matchNil bool
	)
	switch {
	case filter.value == nil:
		matchNil = true
	// Enumerated values are containers themselves, so a list is compared whole.
	case isListFilter(filter.value) && entry.Column.BackendType != hydra.BackendTypeEnumerated:
		list, hasNil, err := castList(entry.Column, filter.value)
		if err != nil {
			return "", err
		}
		operand, isList, matchNil = list, true, hasNil
	default:
		decoded, err := entry.Column.TypeCast(filter.value)
		if err != nil {
			return "", err
		}
		encoded, err := entry.Column.Encode(decoded)
		if err != nil {
			return "", err
		}
		if encoded == nil {
			matchNil = true
		}
		operand = encoded
	}

	kind := JoinInner
	if matchNil {
		kind = JoinLeft
	}
	alias, _ := c.aliases.Add(table, kind, filter.name, entry.ID)
	column := qualifiedColumn(alias.Name, colValue)
	switch {
	case isList && matchNil:
		return "(" + column + " = ANY(" + c.param(operand) + ") OR " + column + " IS NULL)", nil
	case isList:
		return column + " = ANY(" + c.param(operand) + ")", nil
	case matchNil:
		return column + " IS NULL", nil
	default:
		return column + " = " + c.param(operand), nil
	}
}

func (c *queryCompiler) nativeCondition(column string, value any) string {
	switch {
	case value == nil:
		return column + " IS NULL"
	case isListFilter(value):
		return column + " = ANY(" + c.param(value) + ")"
	default:
		return column + " = " + c.param(value)
	}
}

func (c *queryCompiler) referenceCondition(alias *JoinAlias, column *VirtualColumn, value any) (string, error) {
	idColumn := qualifiedColumn(alias.Name, colValueID)
	typeColumn := qualifiedColumn(alias.Name, colValueType)
	if value == nil {
		return idColumn + " IS NULL", nil
	}
	if isListFilter(value) {
		list, _, err := castList(column, value)
		if err != nil {
			return "", err
		}
		return idColumn + " = ANY(" + c.param(list) + ")", nil
	}
	in, failure := ClassifyPolymorphicInput(value)
	if failure != nil {
		failure.Attribute = column.Name
		return "", failure.AsError()
	}
	switch ref := in.(type) {
	case EntityInput:
		return fmt.Sprintf("%s = %s AND %s = %s",
			idColumn, c.param(ref.Entity.ID()),
			typeColumn, c.param(ref.Entity.Type().Name)), nil
	case ReferenceIDInput:
		return idColumn + " = " + c.param(ref.ID), nil
	case ReferenceTypeInput:
		return typeColumn + " = " + c.param(ref.Type), nil
	default:
		return "", hydra.NewHydraError(hydra.ErrorTypeQuery, hydra.ErrCodeQueryBuildFailed,
			fmt.Sprintf("unsupported reference filter %T", in)).WithField(column.Name)
	}
}

// orderTerms resolves an order key. A dynamic attribute reuses the inner
// join of a filter on the same attribute, otherwise it is attached with a
// left join so entities without a value are kept.
func (c *queryCompiler) orderTerms(order orderClause) ([]string, error) {
	direction := "ASC"
	if order.direction == hydra.SortOrderDesc {
		direction = "DESC"
	}
	entry, ok := c.index.Lookup(order.name)
	if !ok {
		return []string{qualifiedColumn(c.table, order.name) + " " + direction}, nil
	}
	table, err := c.rewriter.tables.Resolve(c.table, entry.Column.BackendType)
	if err != nil {
		return nil, err
	}
	alias, found := c.aliases.Find(table.Name, JoinInner, order.name)
	if !found {
		alias, _ = c.aliases.Add(table, JoinLeft, order.name, entry.ID)
	}
	if entry.Column.BackendType.IsPolymorphic() {
		return []string{
			qualifiedColumn(alias.Name, colValueType) + " " + direction,
			qualifiedColumn(alias.Name, colValueID) + " " + direction,
		}, nil
	}
	return []string{qualifiedColumn(alias.Name, colValue) + " " + direction}, nil
}

func isListFilter(v any) bool {
	switch v.(type) {
	case nil, []byte, string:
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

// castList casts every element of a list filter and returns a slice typed
// for the backend value column. Elements that cast to nil are left out of
// the slice and reported through hasNil.
func castList(column *VirtualColumn, value any) (list any, hasNil bool, err error) {
	rv := reflect.ValueOf(value)
	n := rv.Len()
	switch column.BackendType {
	case hydra.BackendTypeText:
		out := make([]string, 0, n)
		for i := 0; i < n; i++ {
			encoded, err := castElement(column, rv.Index(i).Interface())
			if err != nil {
				return nil, false, err
			}
			switch v := encoded.(type) {
			case nil:
				hasNil = true
			case string:
				out = append(out, v)
			default:
				return nil, false, hydra.NewTypeCastError(column.Name, column.BackendType, rv.Index(i).Interface())
			}
		}
		return out, hasNil, nil
	case hydra.BackendTypeNumeric:
		out := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			encoded, err := castElement(column, rv.Index(i).Interface())
			if err != nil {
				return nil, false, err
			}
			switch v := encoded.(type) {
			case nil:
				hasNil = true
			case float64:
				out = append(out, v)
			default:
				return nil, false, hydra.NewTypeCastError(column.Name, column.BackendType, rv.Index(i).Interface())
			}
		}
		return out, hasNil, nil
	case hydra.BackendTypeDate:
		out := make([]time.Time, 0, n)
		for i := 0; i < n; i++ {
			encoded, err := castElement(column, rv.Index(i).Interface())
			if err != nil {
				return nil, false, err
			}
			switch v := encoded.(type) {
			case nil:
				hasNil = true
			case time.Time:
				out = append(out, v)
			default:
				return nil, false, hydra.NewTypeCastError(column.Name, column.BackendType, rv.Index(i).Interface())
			}
		}
		return out, hasNil, nil
	case hydra.BackendTypePolymorphicReference:
		out := make([]int64, 0, n)
		for i := 0; i < n; i++ {
			element := rv.Index(i).Interface()
			in, failure := ClassifyPolymorphicInput(element)
			if failure != nil {
				failure.Attribute = column.Name
				return nil, false, failure.AsError()
			}
			switch ref := in.(type) {
			case EntityInput:
				out = append(out, ref.Entity.ID())
			case ReferenceIDInput:
				out = append(out, ref.ID)
			default:
				return nil, false, hydra.NewTypeCastError(column.Name, column.BackendType, element)
			}
		}
		return out, hasNil, nil
	default:
		return nil, false, hydra.NewUnsupportedBackendTypeError(string(column.BackendType))
	}
}

func castElement(column *VirtualColumn, element any) (any, error) {
	decoded, err := column.TypeCast(element)
	if err != nil {
		return nil, err
	}
	return column.Encode(decoded)
}
