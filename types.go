package hydra

import (
	"github.com/google/uuid"
)

// SortOrder defines sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// ValueAttributes carries the columns a value record is built from, either
// read from a backend table row or supplied by the caller.
type ValueAttributes struct {
	// AttributeID is mandatory; zero means absent.
	AttributeID int64
	// ID is the backend row id, nil until the value is first saved.
	ID *int64
	// Value is only considered when HasValue is set, so an explicit nil
	// value is distinguishable from no value at all.
	Value    any
	HasValue bool
	// ValueID and ValueType are the polymorphic reference; either may be
	// set alone.
	ValueID   *int64
	ValueType *string
}

// WithValue returns a copy of a with Value set.
func (a ValueAttributes) WithValue(v any) ValueAttributes {
	a.Value = v
	a.HasValue = true
	return a
}

// WithReference returns a copy of a with the polymorphic pair set.
func (a ValueAttributes) WithReference(id int64, typeName string) ValueAttributes {
	a.ValueID = &id
	a.ValueType = &typeName
	return a
}

// Statement is a compiled, parameterized SQL statement.
type Statement struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
	// TraceID correlates a statement with the log lines of the build that produced it.
	TraceID uuid.UUID `json:"traceId"`
}
