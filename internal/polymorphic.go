package internal

import (
	"fmt"
	"regexp"

	"github.com/lychee-technology/hydra"
)

// PolymorphicInput is the closed set of inputs a polymorphic setter accepts.
type PolymorphicInput interface {
	polymorphicInput()
}

// EntityInput references a persisted entity: both id and type are taken from it.
type EntityInput struct {
	Entity hydra.Entity
}

// ReferenceIDInput sets only the reference id. Zero clears the association.
type ReferenceIDInput struct {
	ID int64
}

// ReferenceTypeInput sets only the reference type name.
type ReferenceTypeInput struct {
	Type string
}

func (EntityInput) polymorphicInput()        {}
func (ReferenceIDInput) polymorphicInput()   {}
func (ReferenceTypeInput) polymorphicInput() {}

var (
	digitsPattern   = regexp.MustCompile(`^[0-9]+$`)
	typeNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(::[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// ClassificationFailure describes an input no PolymorphicInput variant accepts.
type ClassificationFailure struct {
	Attribute string
	Value     any
	Reason    string
}

func (f *ClassificationFailure) Error() string {
	return f.AsError().Error()
}

// AsError converts the failure into the public error type.
func (f *ClassificationFailure) AsError() *hydra.HydraError {
	return hydra.NewHydraError(hydra.ErrorTypeValidation, hydra.ErrCodePolymorphicInputUnclassified,
		fmt.Sprintf("cannot classify %T as a polymorphic reference: %s", f.Value, f.Reason)).
		WithField(f.Attribute).
		WithDetail("value", fmt.Sprint(f.Value))
}

// ClassifyPolymorphicInput maps a loosely typed value onto PolymorphicInput:
//
//   - a hydra.Entity with a non-zero id becomes EntityInput
//   - a non-negative integer, or a string of ASCII digits, becomes ReferenceIDInput
//   - a string shaped like a type name (Category, Shop::Item) becomes ReferenceTypeInput
//
// Anything else, including signed or fractional number strings, is a failure.
func ClassifyPolymorphicInput(v any) (PolymorphicInput, *ClassificationFailure) {
	switch val := v.(type) {
	case nil:
		return nil, &ClassificationFailure{Value: v, Reason: "value is nil"}
	case PolymorphicInput:
		return val, nil
	case hydra.Entity:
		if val.ID() == 0 {
			return nil, &ClassificationFailure{Value: v, Reason: "referenced entity is not persisted"}
		}
		return EntityInput{Entity: val}, nil
	case string:
		switch {
		case digitsPattern.MatchString(val):
			id, ok := toInt64(val)
			if !ok {
				return nil, &ClassificationFailure{Value: v, Reason: "id is out of range"}
			}
			return ReferenceIDInput{ID: id}, nil
		case typeNamePattern.MatchString(val):
			return ReferenceTypeInput{Type: val}, nil
		default:
			return nil, &ClassificationFailure{Value: v, Reason: "string is neither an id nor a type name"}
		}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		id, ok := toInt64(val)
		if !ok || id < 0 {
			return nil, &ClassificationFailure{Value: v, Reason: "id must be a non-negative int64"}
		}
		return ReferenceIDInput{ID: id}, nil
	default:
		return nil, &ClassificationFailure{Value: v, Reason: "unsupported input type"}
	}
}

// AssignResult reports the outcome of a best-effort assignment. Applied is
// false when Failure is set; callers may escalate the failure with Err.
type AssignResult struct {
	Applied bool
	Failure *ClassificationFailure
}

// Err returns the failure as an error, or nil.
func (r AssignResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure.AsError()
}
