// Package sqlite provides the "sqlite" store.Driver for single-node
// deployments. Money is kept in integer cents and converted at the
// repository boundary.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/jensholdgaard/penalty-kitty/internal/clock"
	"github.com/jensholdgaard/penalty-kitty/internal/config"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// driverName is go-sqlite3 with a Unicode-aware fold registered on every
// connection. The built-in LOWER only folds ASCII.
const driverName = "sqlite3_kitty"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", fold, true)
		},
	})
	store.Register("sqlite", open)
}

// fold matches the lowercasing store.ContainsPattern applies to search
// terms.
func fold(s string) string {
	return strings.ToLower(s)
}

func open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, clk), nil
}

// New builds the repositories over an open, migrated database.
func New(db *sqlx.DB, clk clock.Clock) *store.Repositories {
	return &store.Repositories{
		Players:   NewPlayerRepo(db, clk),
		Catalog:   NewCatalogRepo(db, clk),
		Penalties: NewPenaltyRepo(db, clk),
		Events:    NewEventStore(db, clk),
		Closer:    closerFunc(db.Close),
		Ping:      db.PingContext,
	}
}

// Connect opens the database file at path with OTEL instrumentation.
func Connect(ctx context.Context, path string) (*sqlx.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)

	sqlDB, err := otelsql.Open(driverName, dsn,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps writers queued
	// in Go instead of failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	db := sqlx.NewDb(sqlDB, "sqlite3")
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}
	return db, nil
}

// Migrate applies all pending embedded migrations.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
