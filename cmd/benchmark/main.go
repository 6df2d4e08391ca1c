package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/hydra"
	"github.com/lychee-technology/hydra/factory"
	"github.com/lychee-technology/hydra/internal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type options struct {
	host           string
	port           int
	database       string
	user           string
	password       string
	sslMode        string
	attributeTable string
	tablePrefix    string
	entity         string
	entityTable    string
	referenceType  string
	purge          bool
	count          int
	chunkSize      int
	workers        int
	queries        int
	seed           int64
	seedProvided   bool
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		sugar.Fatalf("invalid flags: %v", err)
	}
	if err := run(context.Background(), opts); err != nil {
		sugar.Fatalf("benchmark failed: %v", err)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := flag.NewFlagSet("hydra-benchmark", flag.ContinueOnError)

	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "hydra"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.StringVar(&opts.attributeTable, "attribute-table", getenvDefault("ATTRIBUTE_TABLE", "hydra_attributes"), "attribute catalog table")
	flags.StringVar(&opts.tablePrefix, "table-prefix", getenvDefault("HYDRA_TABLE_PREFIX", ""), "backend table prefix")
	flags.StringVar(&opts.entity, "entity", "Product", "entity type to generate values for")
	flags.StringVar(&opts.entityTable, "entity-table", "products", "entity table")
	flags.StringVar(&opts.referenceType, "reference-type", "", "type name written to polymorphic attributes (skipped when empty)")
	flags.BoolVar(&opts.purge, "purge", false, "delete existing values of the generated entities before seeding")
	flags.IntVar(&opts.count, "count", 10000, "number of entities to generate")
	flags.IntVar(&opts.chunkSize, "chunk-size", 500, "number of entities saved per transaction")
	flags.IntVar(&opts.workers, "workers", 4, "number of chunks seeded concurrently")
	flags.IntVar(&opts.queries, "queries", 20, "number of timed queries to run after seeding")
	seed := flags.Int64("seed", 0, "random seed (0 uses current time)")

	if err := flags.Parse(args); err != nil {
		return opts, err
	}

	if *seed == 0 {
		opts.seed = time.Now().UnixNano()
	} else {
		opts.seed = *seed
		opts.seedProvided = true
	}
	if opts.chunkSize < 1 {
		opts.chunkSize = 1
	}
	if opts.workers < 1 {
		opts.workers = 1
	}
	if opts.count < 0 || opts.queries < 0 {
		return opts, fmt.Errorf("counts must be non-negative")
	}
	return opts, nil
}

func (o options) config() *hydra.Config {
	config := hydra.DefaultConfig()
	config.Database.Host = o.host
	config.Database.Port = o.port
	config.Database.Database = o.database
	config.Database.Username = o.user
	config.Database.Password = o.password
	config.Database.SSLMode = o.sslMode
	config.Storage.AttributeTable = o.attributeTable
	config.Storage.TablePrefix = o.tablePrefix
	return config
}

func run(ctx context.Context, opts options) error {
	config := opts.config()
	pool, err := factory.OpenPool(ctx, config.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	engine, err := factory.NewEngineWithConfig(config, pool, nil, nil)
	if err != nil {
		return err
	}
	entityType := hydra.EntityType{Name: opts.entity, TableName: opts.entityTable}

	index, err := engine.Columns.EntityAttributes(ctx, entityType.Name)
	if err != nil {
		return err
	}
	if index.Len() == 0 {
		return fmt.Errorf("no attributes declared for %s", entityType.Name)
	}
	if !opts.seedProvided {
		zap.S().Infow("using random seed", "seed", opts.seed)
	}

	entries := index.Entries()

	start := time.Now()
	var saved atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers)
	for chunk, first := 0, 1; first <= opts.count; chunk, first = chunk+1, first+opts.chunkSize {
		last := min(first+opts.chunkSize-1, opts.count)
		// Each chunk draws from its own source so runs with a fixed seed
		// are reproducible regardless of scheduling.
		gen := newValueGenerator(rand.New(rand.NewSource(opts.seed+int64(chunk))), opts.referenceType, opts.count)
		g.Go(func() error {
			n, err := seedChunk(gctx, pool, engine, entityType, entries, gen, first, last, opts.purge)
			if err != nil {
				return err
			}
			saved.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	zap.S().Infow("seeded attribute values",
		"entities", opts.count,
		"workers", opts.workers,
		"values", saved.Load(),
		"elapsed", elapsed.String(),
		"values_per_second", strconv.FormatFloat(float64(saved.Load())/max(elapsed.Seconds(), 1e-9), 'f', 1, 64))

	gen := newValueGenerator(rand.New(rand.NewSource(opts.seed)), opts.referenceType, opts.count)
	return timeQueries(ctx, engine, entityType, entries, gen, opts.queries)
}

type txPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func seedChunk(ctx context.Context, pool txPool, engine *factory.Engine, entityType hydra.EntityType, entries []*internal.AttributeEntry, gen *valueGenerator, first, last int, purge bool) (int, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertHost := fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1) ON CONFLICT DO NOTHING",
		pgx.Identifier{entityType.TableName}.Sanitize(), pgx.Identifier{entityType.PrimaryKeyName()}.Sanitize())
	values := engine.Values.WithPool(tx)

	saved := 0
	for id := first; id <= last; id++ {
		entity := row{id: int64(id), typ: entityType}
		if _, err := tx.Exec(ctx, insertHost, entity.id); err != nil {
			return 0, fmt.Errorf("insert %s %d: %w", entityType.TableName, entity.id, err)
		}
		if purge {
			if err := values.DeleteAllForEntity(ctx, entity); err != nil {
				return 0, err
			}
		}
		for _, entry := range entries {
			value, ok := gen.next(entry.Column.BackendType)
			if !ok {
				continue
			}
			rec, err := values.NewValue(ctx, entity, hydra.ValueAttributes{AttributeID: entry.ID}.WithValue(value))
			if err != nil {
				return 0, err
			}
			if _, err := rec.Save(ctx); err != nil {
				return 0, err
			}
			saved++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return saved, nil
}

func timeQueries(ctx context.Context, engine *factory.Engine, entityType hydra.EntityType, entries []*internal.AttributeEntry, gen *valueGenerator, count int) error {
	var total time.Duration
	matched := 0
	for i := 0; i < count; i++ {
		entry := entries[i%len(entries)]
		value, ok := gen.next(entry.Column.BackendType)
		if !ok {
			continue
		}
		q := engine.Queries.NewQuery(entityType).
			Where(entry.Column.Name, value).
			OrderBy(entries[(i+1)%len(entries)].Column.Name, hydra.SortOrderAsc).
			Limit(100)

		start := time.Now()
		ids, err := engine.FindIDs(ctx, q)
		if err != nil {
			return err
		}
		total += time.Since(start)
		matched += len(ids)
	}
	if count > 0 {
		zap.S().Infow("timed attribute queries",
			"queries", count,
			"matched", matched,
			"avg", (total / time.Duration(count)).String())
	}
	return nil
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
