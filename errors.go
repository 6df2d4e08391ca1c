package hydra

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeExecution  ErrorType = "execution"
	ErrorTypeQuery      ErrorType = "query"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes
const (
	ErrCodeMissingAttributeDefinition   = "MISSING_ATTRIBUTE_DEFINITION"
	ErrCodeEntityNotPersisted           = "ENTITY_NOT_PERSISTED"
	ErrCodeAttributeNotFound            = "ATTRIBUTE_NOT_FOUND"
	ErrCodePolymorphicInputUnclassified = "POLYMORPHIC_INPUT_CLASSIFICATION"
	ErrCodeReferenceTypeUnknown         = "REFERENCE_TYPE_UNKNOWN"
	ErrCodeTypeCastFailed               = "TYPE_CAST_FAILED"
	ErrCodeUnsupportedBackendType       = "UNSUPPORTED_BACKEND_TYPE"
	ErrCodeQueryFinalized               = "QUERY_FINALIZED"
	ErrCodeQueryBuildFailed             = "QUERY_BUILD_FAILED"
	ErrCodeConfigInvalid                = "CONFIG_INVALID"
)

// HydraError is the typed error surfaced by every public operation.
type HydraError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *HydraError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *HydraError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to a HydraError
func (e *HydraError) WithDetail(key string, value any) *HydraError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to a HydraError
func (e *HydraError) WithCause(cause error) *HydraError {
	e.Cause = cause
	return e
}

// WithField adds field context to a HydraError
func (e *HydraError) WithField(field string) *HydraError {
	e.Field = field
	return e
}

// NewHydraError creates a new HydraError
func NewHydraError(errorType ErrorType, code, message string) *HydraError {
	return &HydraError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewMissingAttributeDefinitionError is returned when a value record is built
// without an attribute id. The id decides the backend type, so it is never defaulted.
func NewMissingAttributeDefinitionError() *HydraError {
	return NewHydraError(ErrorTypeValidation, ErrCodeMissingAttributeDefinition,
		"attribute id is required to build a value record").WithField("attribute_id")
}

// NewEntityNotPersistedError is returned by Save while the owning entity has no row yet.
func NewEntityNotPersistedError(entityType string) *HydraError {
	return NewHydraError(ErrorTypeValidation, ErrCodeEntityNotPersisted,
		"value cannot be saved because its entity is not persisted").
		WithDetail("entity_type", entityType)
}

// NewAttributeNotFoundError is returned by catalogs for unknown attribute ids.
func NewAttributeNotFoundError(id int64) *HydraError {
	return NewHydraError(ErrorTypeNotFound, ErrCodeAttributeNotFound,
		fmt.Sprintf("attribute definition %d not found", id)).
		WithDetail("attribute_id", id)
}

// NewTypeCastError reports a value that cannot be cast to its backend type.
func NewTypeCastError(attribute string, backendType BackendType, value any) *HydraError {
	return NewHydraError(ErrorTypeValidation, ErrCodeTypeCastFailed,
		fmt.Sprintf("cannot cast %T to %s", value, backendType)).
		WithField(attribute).
		WithDetail("value", value)
}

func NewUnsupportedBackendTypeError(token string) *HydraError {
	return NewHydraError(ErrorTypeValidation, ErrCodeUnsupportedBackendType,
		fmt.Sprintf("unsupported backend type %q", token))
}

func NewQueryFinalizedError() *HydraError {
	return NewHydraError(ErrorTypeQuery, ErrCodeQueryFinalized,
		"query is finalized and cannot be modified")
}

// IsCode reports whether err (or any error it wraps) is a HydraError with code.
func IsCode(err error, code string) bool {
	var he *HydraError
	if errors.As(err, &he) {
		return he.Code == code
	}
	return false
}

// IsNotFound reports whether err is an attribute-not-found error.
func IsNotFound(err error) bool {
	return IsCode(err, ErrCodeAttributeNotFound)
}
