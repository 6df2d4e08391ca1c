package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lychee-technology/hydra"
	"github.com/lychee-technology/hydra/internal"
	"github.com/spf13/cobra"
)

type explainOptions struct {
	catalogPath string
	entity      string
	baseType    string
	table       string
	primaryKey  string
	prefix      string
	where       []string
	order       []string
	limit       int
	offset      int
	idsOnly     bool
}

// NewExplainCommand prints the SQL a query over dynamic attributes compiles to.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &explainOptions{}
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show the SQL generated for a filtered, ordered query",
		Long: `Compile a query over an entity table using the attributes of a catalog file.

Filters are given as name=value. A value of null matches missing attributes,
and values separated by | match any of them. Orders are given as name or
name:desc.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, rootOpts, opts)
		},
	}
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", getenvDefault("HYDRA_CATALOG", ""), "attribute catalog YAML file or s3://bucket/key")
	cmd.Flags().StringVar(&opts.entity, "entity", "", "entity type name")
	cmd.Flags().StringVar(&opts.baseType, "base-type", "", "base type stored in entity_type (defaults to --entity)")
	cmd.Flags().StringVar(&opts.table, "table", "", "entity table name")
	cmd.Flags().StringVar(&opts.primaryKey, "primary-key", "id", "entity primary key column")
	cmd.Flags().StringVar(&opts.prefix, "table-prefix", getenvDefault("HYDRA_TABLE_PREFIX", ""), "backend table prefix")
	cmd.Flags().StringArrayVar(&opts.where, "where", nil, "filter as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.order, "order", nil, "order as name[:asc|desc] (repeatable)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "row limit")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "row offset")
	cmd.Flags().BoolVar(&opts.idsOnly, "ids", false, "project the primary key only")
	return cmd
}

func runExplain(cmd *cobra.Command, rootOpts *RootOptions, opts *explainOptions) error {
	if opts.catalogPath == "" {
		return fmt.Errorf("--catalog must be provided")
	}
	if opts.entity == "" || opts.table == "" {
		return fmt.Errorf("--entity and --table must be provided")
	}
	catalog, err := loadCatalog(cmd.Context(), opts.catalogPath)
	if err != nil {
		return err
	}

	rewriter := internal.NewQueryRewriter(internal.NewColumnCache(catalog), internal.NewTableRegistry(opts.prefix))
	q := rewriter.NewQuery(hydra.EntityType{
		Name:         opts.entity,
		BaseTypeName: opts.baseType,
		TableName:    opts.table,
		PrimaryKey:   opts.primaryKey,
	})
	for _, raw := range opts.where {
		name, value, err := parseFilterFlag(raw)
		if err != nil {
			return err
		}
		q.Where(name, value)
	}
	for _, raw := range opts.order {
		name, direction := parseOrderFlag(raw)
		q.OrderBy(name, direction)
	}
	if opts.limit > 0 {
		q.Limit(opts.limit)
	}
	if opts.offset > 0 {
		q.Offset(opts.offset)
	}

	var stmt *hydra.Statement
	if opts.idsOnly {
		stmt, err = q.BuildIDs(cmd.Context())
	} else {
		stmt, err = q.Build(cmd.Context())
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stmt)
	}
	fmt.Fprintln(out, stmt.SQL)
	for i, arg := range stmt.Args {
		fmt.Fprintf(out, "  $%d = %#v\n", i+1, arg)
	}
	return nil
}

func parseFilterFlag(raw string) (string, any, error) {
	name, value, ok := strings.Cut(raw, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("invalid filter %q: expected name=value", raw)
	}
	switch {
	case value == "null":
		return name, nil, nil
	case strings.Contains(value, "|"):
		return name, strings.Split(value, "|"), nil
	default:
		return name, value, nil
	}
}

func parseOrderFlag(raw string) (string, hydra.SortOrder) {
	name, direction, ok := strings.Cut(raw, ":")
	if !ok {
		return strings.TrimSpace(name), hydra.SortOrderAsc
	}
	return strings.TrimSpace(name), hydra.SortOrder(strings.ToLower(strings.TrimSpace(direction)))
}
