// Package store is the relational persistence layer: a pgxpool.Pool-backed
// client plus per-entity accessors that implement the row-locking and
// SKIP LOCKED patterns the dispatcher and webhook delivery queue rely on.
//
// Postgres is driven directly through jackc/pgx/v5's pgxpool.Pool rather
// than through a generated ORM client: a thin Store wraps a pool,
// transactions are opened with pool.Begin and rolled back via
// `defer tx.Rollback(ctx)`, and entity mutations are plain parameterized
// SQL in per-entity files. See DESIGN.md for the full rationale.
package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver for database/sql, used only by the migrate driver below
	stdsql "database/sql"
)

//go:embed migrations
var migrationsFS embed.FS

// Config configures the pgxpool connection.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

func (c Config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Store wraps a pgxpool.Pool and exposes per-entity accessors as methods on
// dedicated files (bot.go, recording.go, webhook.go, ...).
type Store struct {
	Pool *pgxpool.Pool
}

// Open creates a pgxpool.Pool, applies embedded migrations, and returns a
// ready-to-use Store: connect, configure pool, run migrations, wrap.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{Pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.Pool.Close()
}

// runMigrations applies embedded SQL migrations via golang-migrate: a
// separate database/sql connection (migrate needs its own driver handle)
// applies everything under //go:embed migrations, closed immediately
// afterward.
func runMigrations(cfg Config) error {
	db, err := stdsql.Open("pgx", cfg.dsn())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, cfg.Database, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
