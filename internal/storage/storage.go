// Package storage provides the persistent event and price-history stores backed by SQL.
// SQLite (modernc, pure Go) is the default embedded backend; PostgreSQL is supported for
// deployments that share a database with the competitor scraper.
//
// Schema changes ship as additive, versioned migrations embedded in the binary and are
// tracked in schema_migrations, so existing event and price data always survives upgrades.
// Every store error is wrapped with models.ErrStoreUnavailable.
package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/rewired-gh/nightrate/internal/models"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultQueryTimeout = 5 * time.Second
)

// Config holds connection parameters for the store.
type Config struct {
	Driver       string
	DSN          string
	QueryTimeout time.Duration
	MaxOpenConns int
}

// Storage is the SQL-backed event store and price history store.
// It is safe for concurrent use.
type Storage struct {
	db      *sqlx.DB
	driver  string
	timeout time.Duration
}

// Open connects to the configured database and verifies the connection.
// Call Migrate before first use.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage dsn is required")
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, models.StoreUnavailable("open database", err)
	}

	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(30 * time.Minute)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}

	s := &Storage{db: db, driver: driver, timeout: timeout}

	pingCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, models.StoreUnavailable("ping database", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Health checks database connectivity.
func (s *Storage) Health(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return models.StoreUnavailable("ping database", s.db.PingContext(ctx))
}

// Driver returns the active driver name.
func (s *Storage) Driver() string {
	return s.driver
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Migrate applies embedded migrations for the active driver in lexicographic order
// and records each one in schema_migrations. Already-applied files are skipped.
func (s *Storage) Migrate(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	if _, err := s.db.ExecContext(ctx, createTracker); err != nil {
		return models.StoreUnavailable("create schema_migrations table", err)
	}

	dir := "migrations/" + s.driver
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if err := s.applyMigration(ctx, dir, entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) applyMigration(ctx context.Context, dir, name string) error {
	var applied int
	err := s.db.GetContext(ctx, &applied,
		s.db.Rebind("SELECT COUNT(*) FROM schema_migrations WHERE filename = ?"), name)
	if err != nil {
		return models.StoreUnavailable("check migration "+name, err)
	}
	if applied > 0 {
		return nil
	}

	data, err := migrationsFS.ReadFile(dir + "/" + name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.StoreUnavailable("begin migration "+name, err)
	}
	if _, err := tx.ExecContext(ctx, string(data)); err != nil {
		_ = tx.Rollback()
		return models.StoreUnavailable("exec migration "+name, err)
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO schema_migrations (filename) VALUES (?)"), name); err != nil {
		_ = tx.Rollback()
		return models.StoreUnavailable("record migration "+name, err)
	}
	if err := tx.Commit(); err != nil {
		return models.StoreUnavailable("commit migration "+name, err)
	}
	return nil
}

// AppliedMigrations lists recorded migration filenames in order.
func (s *Storage) AppliedMigrations(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var names []string
	if err := s.db.SelectContext(ctx, &names, "SELECT filename FROM schema_migrations ORDER BY filename"); err != nil {
		return nil, models.StoreUnavailable("list migrations", err)
	}
	return names, nil
}
