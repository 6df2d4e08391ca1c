package internal

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple", input: "text_products", expected: `"text_products"`},
		{name: "schema qualified", input: "public.text_products", expected: `"public"."text_products"`},
		{name: "already quoted", input: `"products"`, expected: `"products"`},
		{name: "embedded quote", input: `bad"name`, expected: `"bad""name"`},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeIdentifier(tt.input))
		})
	}
}

func TestQuoteHelpers(t *testing.T) {
	assert.Equal(t, `"a.b"`, quoteIdent("a.b"))
	assert.Equal(t, `"products"."id"`, qualifiedColumn("products", "id"))
	assert.Equal(t, `'Product'`, quoteLiteral("Product"))
	assert.Equal(t, `'O''Brien'`, quoteLiteral("O'Brien"))
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		expect int64
		ok     bool
	}{
		{name: "int", input: 7, expect: 7, ok: true},
		{name: "int32", input: int32(-3), expect: -3, ok: true},
		{name: "uint8", input: uint8(200), expect: 200, ok: true},
		{name: "uint64 overflow", input: uint64(math.MaxUint64), ok: false},
		{name: "whole float", input: 12.0, expect: 12, ok: true},
		{name: "fractional float", input: 1.5, ok: false},
		{name: "decimal string", input: " 42 ", expect: 42, ok: true},
		{name: "zero string", input: "0", expect: 0, ok: true},
		{name: "non numeric string", input: "abc", ok: false},
		{name: "nil", input: nil, ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toInt64(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expect, got)
			}
		})
	}
}

func TestValuesEqual(t *testing.T) {
	utc := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	local := utc.In(time.FixedZone("plus2", 2*60*60))

	assert.True(t, valuesEqual(utc, local))
	assert.False(t, valuesEqual(utc, "2024-01-02"))
	assert.True(t, valuesEqual([]any{"a", 1.0}, []any{"a", 1.0}))
	assert.False(t, valuesEqual(nil, ""))
	assert.True(t, valuesEqual(nil, nil))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, isBlank(nil))
	assert.True(t, isBlank(""))
	assert.True(t, isBlank("   "))
	assert.True(t, isBlank(false))
	assert.True(t, isBlank([]any{}))
	assert.True(t, isBlank(map[string]any{}))
	assert.True(t, isBlank(time.Time{}))

	assert.False(t, isBlank("x"))
	assert.False(t, isBlank(0.0))
	assert.False(t, isBlank([]any{nil}))
}
