package internal

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/lychee-technology/hydra"
	"gopkg.in/yaml.v3"
)

// VirtualColumn stands in for a table column that does not physically exist
// on the entity table. Instances are immutable once cached.
type VirtualColumn struct {
	AttributeID int64
	Name        string
	Default     *string
	BackendType hydra.BackendType
}

func newVirtualColumn(def hydra.AttributeDefinition) *VirtualColumn {
	var defaultValue *string
	if def.DefaultValue != nil {
		v := *def.DefaultValue
		defaultValue = &v
	}
	return &VirtualColumn{
		AttributeID: def.ID,
		Name:        def.Name,
		Default:     defaultValue,
		BackendType: def.BackendType,
	}
}

// Number reports whether presence checks compare against zero.
func (c *VirtualColumn) Number() bool {
	return c.BackendType.IsNumeric()
}

// DefaultValue returns the cast default, or nil when none is declared.
func (c *VirtualColumn) DefaultValue() (any, error) {
	if c.Default == nil {
		return nil, nil
	}
	if c.BackendType.IsPolymorphic() {
		// A polymorphic default would need both halves of the reference pair.
		return nil, nil
	}
	return c.TypeCast(*c.Default)
}

// TypeCast converts v into the decoded representation of the column:
// string for text, float64 for numeric, UTC time.Time for date, []any or
// map[string]any for enumerated and int64 for polymorphic reference ids.
// nil and empty strings cast to nil for every type except text.
func (c *VirtualColumn) TypeCast(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var (
		out any
		ok  bool
	)
	switch c.BackendType {
	case hydra.BackendTypeText:
		out, ok = castText(v)
	case hydra.BackendTypeNumeric:
		out, ok = castNumeric(v)
	case hydra.BackendTypeDate:
		out, ok = castDate(v)
	case hydra.BackendTypeEnumerated:
		out, ok = castEnumerated(v)
	case hydra.BackendTypePolymorphicReference:
		out, ok = castReferenceID(v)
	default:
		return nil, hydra.NewUnsupportedBackendTypeError(string(c.BackendType))
	}
	if !ok {
		return nil, hydra.NewTypeCastError(c.Name, c.BackendType, v)
	}
	return out, nil
}

// Encode turns a decoded value into the parameter written to the value column.
// Enumerated containers are serialized to JSON; everything else is passed as is.
func (c *VirtualColumn) Encode(decoded any) (any, error) {
	if decoded == nil {
		return nil, nil
	}
	switch c.BackendType {
	case hydra.BackendTypeText, hydra.BackendTypeNumeric, hydra.BackendTypeDate:
		return decoded, nil
	case hydra.BackendTypeEnumerated:
		data, err := json.Marshal(decoded)
		if err != nil {
			return nil, fmt.Errorf("encode enumerated value for %s: %w", c.Name, err)
		}
		return string(data), nil
	case hydra.BackendTypePolymorphicReference:
		return decoded, nil
	default:
		return nil, hydra.NewUnsupportedBackendTypeError(string(c.BackendType))
	}
}

func castText(v any) (any, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case *string:
		if val == nil {
			return nil, true
		}
		return *val, true
	case []byte:
		return string(val), true
	case bool:
		return strconv.FormatBool(val), true
	case time.Time:
		return val.UTC().Format(time.RFC3339), true
	case fmt.Stringer:
		return val.String(), true
	}
	if f, ok := toFloat64(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return nil, false
}

func castNumeric(v any) (any, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	case *float64:
		if val == nil {
			return nil, true
		}
		return *val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return toFloat64(v)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func castDate(v any) (any, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), true
	case *time.Time:
		if val == nil {
			return nil, true
		}
		return val.UTC(), true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, true
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		// Unix milliseconds, the same encoding used for numeric date filters.
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		return nil, false
	case int64:
		return time.UnixMilli(val).UTC(), true
	case int:
		return time.UnixMilli(int64(val)).UTC(), true
	}
	return nil, false
}

func castEnumerated(v any) (any, bool) {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, true
		}
		parsed, err := parseLiteral(val)
		if err != nil {
			return nil, false
		}
		return parsed, true
	case []byte:
		return castEnumerated(string(val))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		// Containers of any element type are normalized through their JSON
		// form so a written value and its reloaded literal decode identically.
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		parsed, err := parseLiteral(string(data))
		if err != nil {
			return nil, false
		}
		return parsed, true
	}
	return nil, false
}

// parseLiteral decodes a serialized enumerated literal. YAML is a superset of
// JSON, so rows written as JSON and legacy YAML rows both load.
func parseLiteral(literal string) (any, error) {
	var raw any
	if err := yaml.Unmarshal([]byte(literal), &raw); err != nil {
		return nil, fmt.Errorf("parse enumerated literal: %w", err)
	}
	normalized := normalizeContainer(raw)
	switch normalized.(type) {
	case []any, map[string]any:
		return normalized, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("enumerated literal %q is not a list or mapping", literal)
	}
}

func normalizeContainer(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeContainer(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeContainer(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeContainer(item)
		}
		return out
	default:
		return val
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return true
	default:
		return false
	}
}

func castReferenceID(v any) (any, bool) {
	id, ok := toInt64(v)
	if !ok {
		return nil, false
	}
	return id, true
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}
