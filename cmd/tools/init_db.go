package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/hydra"
	"github.com/lychee-technology/hydra/factory"
	"github.com/lychee-technology/hydra/internal"
	"github.com/spf13/cobra"
)

type initDBOptions struct {
	host           string
	port           int
	database       string
	user           string
	password       string
	sslMode        string
	attributeTable string
	tablePrefix    string
	entityTables   []string
	catalogPath    string
}

// NewInitDBCommand creates the attribute table and the backend tables.
func NewInitDBCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &initDBOptions{}
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the attribute table and backend tables in PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initDatabase(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "hydra"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.StringVar(&opts.attributeTable, "attribute-table", getenvDefault("ATTRIBUTE_TABLE", "hydra_attributes"), "attribute catalog table name")
	flags.StringVar(&opts.tablePrefix, "table-prefix", getenvDefault("HYDRA_TABLE_PREFIX", ""), "backend table prefix")
	flags.StringSliceVar(&opts.entityTables, "entity-table", nil, "entity table to create backend tables for (repeatable)")
	flags.StringVar(&opts.catalogPath, "catalog", getenvDefault("HYDRA_CATALOG", ""), "attribute catalog YAML file to register (optional)")
	return cmd
}

func (o *initDBOptions) databaseConfig() hydra.DatabaseConfig {
	cfg := hydra.DefaultConfig().Database
	cfg.Host = o.host
	cfg.Port = o.port
	cfg.Database = o.database
	cfg.Username = o.user
	cfg.Password = o.password
	cfg.SSLMode = o.sslMode
	return cfg
}

func initDatabase(ctx context.Context, out io.Writer, opts *initDBOptions) error {
	var catalog *internal.MemoryCatalog
	if opts.catalogPath != "" {
		loaded, err := loadCatalog(ctx, opts.catalogPath)
		if err != nil {
			return err
		}
		catalog = loaded
	}

	pool, err := factory.OpenPool(ctx, opts.databaseConfig())
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := withTx(ctx, conn, func(tx pgx.Tx) error {
		for _, stmt := range initStatements(opts) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("ensure tables: %w", err)
			}
		}
		if catalog != nil {
			return registerAttributes(ctx, tx, out, opts.attributeTable, catalog)
		}
		return nil
	}); err != nil {
		return err
	}

	fmt.Fprintln(out, "Database initialized successfully.")
	return nil
}

// initStatements returns the DDL for the attribute table and, per entity
// table, one backend table with its lookup index per backend type.
func initStatements(opts *initDBOptions) []string {
	stmts := []string{internal.AttributeTableDDL(opts.attributeTable)}
	for _, entityTable := range opts.entityTables {
		entityTable = strings.TrimSpace(entityTable)
		if entityTable == "" {
			continue
		}
		stmts = append(stmts, internal.BackendTablesDDL(opts.tablePrefix, entityTable)...)
	}
	return stmts
}

// registerAttributes inserts the catalog definitions into the attribute table.
func registerAttributes(ctx context.Context, tx pgx.Tx, out io.Writer, attributeTable string, catalog *internal.MemoryCatalog) error {
	insertSQL := fmt.Sprintf(
		`INSERT INTO %s (id, name, entity_type, backend_type, default_value) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		quoteIdentifier(attributeTable),
	)
	count := 0
	for _, entityType := range catalog.EntityTypes() {
		defs, err := catalog.FindAllByEntityType(ctx, entityType)
		if err != nil {
			return err
		}
		for _, def := range defs {
			result, err := tx.Exec(ctx, insertSQL, def.ID, def.Name, def.EntityType, string(def.BackendType), def.DefaultValue)
			if err != nil {
				return fmt.Errorf("insert attribute %s.%s: %w", def.EntityType, def.Name, err)
			}
			if result.RowsAffected() > 0 {
				fmt.Fprintf(out, "Registered attribute, entity: %s, name: %s, id: %d\n", def.EntityType, def.Name, def.ID)
			} else {
				fmt.Fprintf(out, "Attribute already exists, id: %d\n", def.ID)
			}
			count++
		}
	}
	fmt.Fprintf(out, "Registered attributes from catalog, count: %d\n", count)
	return nil
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func quoteIdentifier(name string) string {
	return pgx.Identifier(splitIdentifier(name)).Sanitize()
}

func splitIdentifier(name string) []string {
	parts := strings.Split(name, ".")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return []string{name}
	}
	return result
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
