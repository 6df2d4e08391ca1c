package internal

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, " \"")
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	if len(clean) == 0 {
		clean = []string{name}
	}
	return pgx.Identifier(clean).Sanitize()
}

// quoteIdent quotes a single identifier without splitting on dots.
func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// qualifiedColumn renders "table"."column" for a table (or alias) and column.
func qualifiedColumn(table, column string) string {
	return pgx.Identifier{table, column}.Sanitize()
}

// quoteLiteral renders a string literal for the few constants inlined into
// join conditions. Filter values always travel as parameters.
func quoteLiteral(s string) string {
	return pq.QuoteLiteral(s)
}

// toInt64 interprets v as an integer id. Strings must be plain decimal.
func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case *int64:
		if val == nil {
			return 0, false
		}
		return *val, true
	case uint:
		return uintToInt64(uint64(val))
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return uintToInt64(val)
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt64 || val < math.MinInt64 {
			return 0, false
		}
		return int64(val), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func uintToInt64(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// valuesEqual compares decoded values, treating equal instants as equal
// regardless of location.
func valuesEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// isBlank mirrors the usual "blank" notion: nil, false, whitespace-only
// strings and empty containers.
func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case time.Time:
		return val.IsZero()
	default:
		return false
	}
}

func int64Ptr(v int64) *int64 {
	return &v
}

func stringPtr(v string) *string {
	return &v
}
