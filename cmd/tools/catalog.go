package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/lychee-technology/hydra"
	"github.com/lychee-technology/hydra/internal"
	"github.com/spf13/cobra"
)

type catalogOptions struct {
	catalogPath string
	entity      string
	table       string
	prefix      string
}

type catalogEntry struct {
	hydra.AttributeDefinition
	BackendTable string `json:"backendTable,omitempty"`
}

// NewCatalogCommand lists the attributes of a catalog file.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &catalogOptions{}
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List attribute definitions from a catalog file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, rootOpts, opts)
		},
	}
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", getenvDefault("HYDRA_CATALOG", ""), "attribute catalog YAML file or s3://bucket/key")
	cmd.Flags().StringVar(&opts.entity, "entity", "", "only list attributes of this entity type")
	cmd.Flags().StringVar(&opts.table, "table", "", "entity table used to name backend tables")
	cmd.Flags().StringVar(&opts.prefix, "table-prefix", getenvDefault("HYDRA_TABLE_PREFIX", ""), "backend table prefix")
	return cmd
}

func runCatalog(cmd *cobra.Command, rootOpts *RootOptions, opts *catalogOptions) error {
	if opts.catalogPath == "" {
		return fmt.Errorf("--catalog must be provided")
	}
	catalog, err := loadCatalog(cmd.Context(), opts.catalogPath)
	if err != nil {
		return err
	}

	entityTypes := catalog.EntityTypes()
	if opts.entity != "" {
		entityTypes = []string{opts.entity}
	}

	entries := make([]catalogEntry, 0)
	for _, entityType := range entityTypes {
		defs, err := catalog.FindAllByEntityType(cmd.Context(), entityType)
		if err != nil {
			return err
		}
		for _, def := range defs {
			entry := catalogEntry{AttributeDefinition: def}
			if opts.table != "" {
				entry.BackendTable = internal.BackendTableName(opts.prefix, opts.table, def.BackendType)
			}
			entries = append(entries, entry)
		}
	}

	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENTITY\tNAME\tBACKEND\tDEFAULT\tTABLE")
	for _, e := range entries {
		def := "-"
		if e.DefaultValue != nil {
			def = *e.DefaultValue
		}
		table := e.BackendTable
		if table == "" {
			table = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.EntityType, e.Name, e.BackendType, def, table)
	}
	return w.Flush()
}
