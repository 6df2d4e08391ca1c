package factory

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/hydra"
	"github.com/lychee-technology/hydra/internal"
	"go.uber.org/zap"
)

// Pool is the database handle the engine issues statements on.
// *pgxpool.Pool and pgx.Tx both satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queryPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// tableCollector is a test hook.
var tableCollector = collectTablesFromPool

// Engine wires the attribute catalog, the caches, the value repository and
// the query rewriter over one pool.
type Engine struct {
	Config  *hydra.Config
	Columns *internal.ColumnCache
	Tables  *internal.TableRegistry
	Values  *internal.ValueRepository
	Queries *internal.QueryRewriter

	pool Pool
}

// Pool returns the pool the engine was built with.
func (e *Engine) Pool() Pool {
	return e.pool
}

// FindIDs runs q on the engine pool and returns matching primary keys.
func (e *Engine) FindIDs(ctx context.Context, q *internal.Query) ([]int64, error) {
	return e.Queries.FindIDs(ctx, e.pool, q)
}

// NewEngineWithConfig creates an Engine from config and an open pool.
//
// When catalog is nil the attribute definitions are read from
// config.Storage.AttributeTable, which must exist.
//
// Usage:
//
//	config := hydra.DefaultConfig()
//	pool, err := factory.OpenPool(ctx, config.Database)
//	if err != nil {
//	    // handle error
//	}
//	engine, err := factory.NewEngineWithConfig(config, pool, nil, resolvers)
func NewEngineWithConfig(config *hydra.Config, pool Pool, catalog hydra.AttributeCatalog, references hydra.ReferenceResolver) (*Engine, error) {
	if config == nil {
		config = hydra.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, hydra.NewHydraError(hydra.ErrorTypeValidation, hydra.ErrCodeConfigInvalid, "invalid engine configuration").WithCause(err)
	}

	if catalog == nil {
		if pool == nil {
			return nil, fmt.Errorf("a pool is required when no catalog is provided")
		}
		tables, err := tableCollector(pool)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(tables, config.Storage.AttributeTable) {
			return nil, fmt.Errorf("required tables are missing in the database: %s", config.Storage.AttributeTable)
		}
		catalog = internal.NewPostgresCatalog(pool, config.Storage.AttributeTable)
	}

	columns := internal.NewColumnCache(catalog)
	tables := internal.NewTableRegistry(config.Storage.TablePrefix)
	engine := &Engine{
		Config:  config,
		Columns: columns,
		Tables:  tables,
		Values:  internal.NewValueRepository(pool, columns, tables, references),
		Queries: internal.NewQueryRewriter(columns, tables).WithQueryLogging(config.Logging.EnableQueryLogging),
		pool:    pool,
	}
	zap.S().Infow("hydra engine ready",
		"attribute_table", config.Storage.AttributeTable,
		"table_prefix", config.Storage.TablePrefix,
		"query_logging", config.Logging.EnableQueryLogging)
	return engine, nil
}

func collectTablesFromPool(pool queryPool) ([]string, error) {
	rows, err := pool.Query(context.Background(), `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE';`)
	if err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tables, nil
}

// ConnString renders the postgres URL for config.
func ConnString(config hydra.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.Username, config.Password),
		Host:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Path:     "/" + config.Database,
		RawQuery: "sslmode=" + url.QueryEscape(config.SSLMode),
	}
	return u.String()
}

// OpenPool creates a PostgreSQL connection pool and pings it.
func OpenPool(ctx context.Context, config hydra.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(ConnString(config))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.MinConns = int32(config.MaxIdleConns)
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = config.Timeout
	if config.UseIAMAuth {
		hook, err := iamBeforeConnect(ctx, config)
		if err != nil {
			return nil, err
		}
		poolConfig.BeforeConnect = hook
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
