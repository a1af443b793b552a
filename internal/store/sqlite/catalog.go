package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/penalty-kitty/internal/clock"
	"github.com/jensholdgaard/penalty-kitty/internal/money"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

const catalogColumns = `id, name, amount_cents, created_at`

type catalogRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	AmountCents int64     `db:"amount_cents"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r catalogRow) entry() store.CatalogEntry {
	return store.CatalogEntry{
		ID:        r.ID,
		Name:      r.Name,
		Amount:    money.FromCents(r.AmountCents),
		CreatedAt: r.CreatedAt,
	}
}

// CatalogRepo implements store.CatalogRepository on SQLite.
type CatalogRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewCatalogRepo returns a new CatalogRepo.
func NewCatalogRepo(db *sqlx.DB, clk clock.Clock) *CatalogRepo {
	return &CatalogRepo{db: db, clock: clk}
}

func (r *CatalogRepo) Upsert(ctx context.Context, name string, amount decimal.Decimal) (*store.CatalogEntry, error) {
	var row catalogRow
	err := r.db.GetContext(ctx, &row,
		`INSERT INTO penalty_catalog (id, name, amount_cents, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET amount_cents = excluded.amount_cents
		 RETURNING `+catalogColumns,
		uuid.NewString(), name, money.ToCents(amount), r.clock.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting catalog entry: %w", err)
	}
	e := row.entry()
	return &e, nil
}

func (r *CatalogRepo) Remove(ctx context.Context, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM penalty_catalog WHERE fold(name) = fold(?)`, name)
	if err != nil {
		return false, fmt.Errorf("removing catalog entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *CatalogRepo) Find(ctx context.Context, substr string) (*store.CatalogEntry, error) {
	var row catalogRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+catalogColumns+` FROM penalty_catalog WHERE fold(name) LIKE ? ESCAPE '\'
		 ORDER BY fold(name) = fold(?) DESC, LENGTH(name), name LIMIT 1`,
		store.ContainsPattern(substr), substr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding catalog entry: %w", err)
	}
	e := row.entry()
	return &e, nil
}

func (r *CatalogRepo) List(ctx context.Context) ([]store.CatalogEntry, error) {
	var rows []catalogRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+catalogColumns+` FROM penalty_catalog ORDER BY amount_cents, name`)
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	entries := make([]store.CatalogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}
