package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lychee-technology/hydra"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
attributes:
  - id: 9
    name: color
    entity_type: Product
    backend_type: text
  - id: 10
    name: price
    entity_type: Product
    backend_type: numeric
    default_value: "0"
  - id: 20
    name: slug
    entity_type: Category
    backend_type: string
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "catalog", "--catalog", writeCatalog(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestCatalogText(t *testing.T) {
	out, err := execute(t, "catalog", "--catalog", writeCatalog(t), "--entity", "Product", "--table", "products")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "BACKEND")
	assert.Contains(t, lines[1], "color")
	assert.Contains(t, lines[1], "text_products")
	assert.Contains(t, lines[2], "numeric_products")
}

func TestCatalogJSONAllEntities(t *testing.T) {
	out, err := execute(t, "--format", "json", "catalog", "--catalog", writeCatalog(t))
	require.NoError(t, err)

	var entries []catalogEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "slug", entries[0].Name, "entity types are listed in name order")
	assert.Equal(t, hydra.BackendTypeText, entries[0].BackendType)
	assert.Empty(t, entries[0].BackendTable)
}

func TestCatalogRequiresFile(t *testing.T) {
	t.Setenv("HYDRA_CATALOG", "")
	_, err := execute(t, "catalog")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--catalog must be provided")
}

func TestExplainText(t *testing.T) {
	out, err := execute(t, "explain",
		"--catalog", writeCatalog(t),
		"--entity", "Product",
		"--table", "products",
		"--where", "color=red",
		"--order", "price:desc",
		"--limit", "5")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "explain_text", []byte(out))
}

func TestExplainJSONIDs(t *testing.T) {
	out, err := execute(t, "--format", "json", "explain",
		"--catalog", writeCatalog(t),
		"--entity", "Product",
		"--table", "products",
		"--where", "color=red|blue",
		"--ids")
	require.NoError(t, err)

	var stmt struct {
		SQL  string `json:"sql"`
		Args []any  `json:"args"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stmt))
	assert.True(t, strings.HasPrefix(stmt.SQL, `SELECT "products"."id" FROM "products"`))
	assert.Contains(t, stmt.SQL, `= ANY($1)`)
	assert.Equal(t, []any{[]any{"red", "blue"}}, stmt.Args)
}

func TestExplainRejectsBadDirection(t *testing.T) {
	_, err := execute(t, "explain",
		"--catalog", writeCatalog(t),
		"--entity", "Product",
		"--table", "products",
		"--order", "price:sideways")
	require.Error(t, err)
	assert.True(t, hydra.IsCode(err, hydra.ErrCodeQueryBuildFailed))
}

func TestParseFilterFlag(t *testing.T) {
	tests := []struct {
		raw      string
		name     string
		value    any
		hasError bool
	}{
		{raw: "color=red", name: "color", value: "red"},
		{raw: "color=null", name: "color", value: nil},
		{raw: "color=red|blue", name: "color", value: []string{"red", "blue"}},
		{raw: "color=", name: "color", value: ""},
		{raw: "color", hasError: true},
		{raw: "=red", hasError: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			name, value, err := parseFilterFlag(tt.raw)
			if tt.hasError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestParseOrderFlag(t *testing.T) {
	name, direction := parseOrderFlag("price")
	assert.Equal(t, "price", name)
	assert.Equal(t, hydra.SortOrderAsc, direction)

	name, direction = parseOrderFlag("price:DESC")
	assert.Equal(t, "price", name)
	assert.Equal(t, hydra.SortOrderDesc, direction)
}

func TestInitStatements(t *testing.T) {
	stmts := initStatements(&initDBOptions{
		attributeTable: "hydra_attributes",
		tablePrefix:    "eav_",
		entityTables:   []string{"products", " "},
	})

	// attribute table, then a table and an index per backend type
	require.Len(t, stmts, 1+2*len(hydra.AllBackendTypes))
	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "hydra_attributes"`)
	assert.Contains(t, stmts[1], `CREATE TABLE IF NOT EXISTS "eav_text_products"`)
	assert.Contains(t, stmts[2], `"eav_text_products_entity_attribute_idx" ON "eav_text_products" (entity_id, entity_type, attribute_id)`)

	last := stmts[len(stmts)-2]
	assert.Contains(t, last, `"eav_polymorphic_products"`)
	assert.Contains(t, last, "value_id BIGINT")
	assert.Contains(t, last, "value_type TEXT")
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"public"."hydra_attributes"`, quoteIdentifier("public.hydra_attributes"))
	assert.Equal(t, `"products"`, quoteIdentifier(" products "))
}

func TestGetenvDefaultInt(t *testing.T) {
	t.Setenv("HYDRA_TEST_PORT", "6543")
	assert.Equal(t, 6543, getenvDefaultInt("HYDRA_TEST_PORT", 5432))
	t.Setenv("HYDRA_TEST_PORT", "nope")
	assert.Equal(t, 5432, getenvDefaultInt("HYDRA_TEST_PORT", 5432))
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := parseS3URI("s3://catalogs/prod/attributes.yaml")
	require.NoError(t, err)
	assert.Equal(t, "catalogs", bucket)
	assert.Equal(t, "prod/attributes.yaml", key)

	for _, bad := range []string{"s3://catalogs", "s3:///key.yaml", "http://catalogs/key.yaml"} {
		_, _, err := parseS3URI(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadCatalogLocalFile(t *testing.T) {
	catalog, err := loadCatalog(context.Background(), writeCatalog(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Category", "Product"}, catalog.EntityTypes())
}
