package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/penalty-kitty/internal/clock"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

const catalogColumns = `id, name, amount, created_at`

// CatalogRepo implements store.CatalogRepository with sqlx.
type CatalogRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewCatalogRepo returns a new CatalogRepo.
func NewCatalogRepo(db *sqlx.DB, clk clock.Clock) *CatalogRepo {
	return &CatalogRepo{db: db, clock: clk}
}

func (r *CatalogRepo) Upsert(ctx context.Context, name string, amount decimal.Decimal) (*store.CatalogEntry, error) {
	var e store.CatalogEntry
	err := r.db.GetContext(ctx, &e,
		`INSERT INTO penalty_catalog (id, name, amount, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO UPDATE SET amount = EXCLUDED.amount
		 RETURNING `+catalogColumns,
		uuid.NewString(), name, amount.Round(2), r.clock.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting catalog entry: %w", err)
	}
	return &e, nil
}

func (r *CatalogRepo) Remove(ctx context.Context, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM penalty_catalog WHERE LOWER(name) = LOWER($1::text)`, name)
	if err != nil {
		return false, fmt.Errorf("removing catalog entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *CatalogRepo) Find(ctx context.Context, substr string) (*store.CatalogEntry, error) {
	var e store.CatalogEntry
	err := r.db.GetContext(ctx, &e,
		`SELECT `+catalogColumns+` FROM penalty_catalog WHERE LOWER(name) LIKE $1 ESCAPE '\'
		 ORDER BY LOWER(name) = LOWER($2::text) DESC, LENGTH(name), name LIMIT 1`,
		store.ContainsPattern(substr), substr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding catalog entry: %w", err)
	}
	return &e, nil
}

func (r *CatalogRepo) List(ctx context.Context) ([]store.CatalogEntry, error) {
	var entries []store.CatalogEntry
	err := r.db.SelectContext(ctx, &entries, `SELECT `+catalogColumns+` FROM penalty_catalog ORDER BY amount, name`)
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	return entries, nil
}
