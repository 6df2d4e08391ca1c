package hydra

import (
	"strings"
)

// BackendType is the declared value kind of an attribute. It selects the
// physical table the value lives in and the decode/encode rules applied to it.
type BackendType string

const (
	BackendTypeText                 BackendType = "text"
	BackendTypeNumeric              BackendType = "numeric"
	BackendTypeDate                 BackendType = "date"
	BackendTypeEnumerated           BackendType = "enum"
	BackendTypePolymorphicReference BackendType = "polymorphic"
)

// AllBackendTypes lists every supported backend type in a stable order.
var AllBackendTypes = []BackendType{
	BackendTypeText,
	BackendTypeNumeric,
	BackendTypeDate,
	BackendTypeEnumerated,
	BackendTypePolymorphicReference,
}

// ParseBackendType maps a stored backend type token onto the closed set.
// Legacy tokens written by older catalogs are accepted as aliases.
func ParseBackendType(token string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "text", "string":
		return BackendTypeText, nil
	case "numeric", "integer", "float", "decimal":
		return BackendTypeNumeric, nil
	case "date", "datetime":
		return BackendTypeDate, nil
	case "enum", "enumerated":
		return BackendTypeEnumerated, nil
	case "polymorphic", "polymorphic_association", "polymorphic_reference":
		return BackendTypePolymorphicReference, nil
	default:
		return "", NewUnsupportedBackendTypeError(token)
	}
}

// Valid reports whether the backend type belongs to the closed set.
func (b BackendType) Valid() bool {
	switch b {
	case BackendTypeText, BackendTypeNumeric, BackendTypeDate, BackendTypeEnumerated, BackendTypePolymorphicReference:
		return true
	default:
		return false
	}
}

// IsPolymorphic reports whether values are stored as a (value_id, value_type) pair.
func (b BackendType) IsPolymorphic() bool {
	return b == BackendTypePolymorphicReference
}

// IsNumeric reports whether presence is decided by comparing against zero.
func (b BackendType) IsNumeric() bool {
	return b == BackendTypeNumeric
}

func (b BackendType) String() string {
	return string(b)
}
