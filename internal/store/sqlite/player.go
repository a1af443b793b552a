package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/penalty-kitty/internal/clock"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

const playerColumns = `id, name, external_id, created_at`

// PlayerRepo implements store.PlayerRepository on SQLite.
type PlayerRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewPlayerRepo returns a new PlayerRepo.
func NewPlayerRepo(db *sqlx.DB, clk clock.Clock) *PlayerRepo {
	return &PlayerRepo{db: db, clock: clk}
}

func (r *PlayerRepo) Upsert(ctx context.Context, name, externalID string) (*store.Player, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	p, err := resolvePlayer(ctx, tx, name, externalID)
	if err != nil {
		return nil, err
	}

	if p == nil {
		p = &store.Player{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: r.clock.Now().UTC(),
		}
		if externalID != "" {
			p.ExternalID = &externalID
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO players (id, name, external_id, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT DO NOTHING`,
			p.ID, p.Name, p.ExternalID, p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting player: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// A concurrent writer created the same player first.
			if p, err = resolvePlayer(ctx, tx, name, externalID); err != nil {
				return nil, err
			}
			if p == nil {
				return nil, fmt.Errorf("player %q conflicts with an existing player", name)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing player upsert: %w", err)
	}
	return p, nil
}

// resolvePlayer finds the player by external id, then by name, linking a
// name match to externalID when it has none. It returns nil when neither
// lookup matches.
func resolvePlayer(ctx context.Context, tx *sqlx.Tx, name, externalID string) (*store.Player, error) {
	var p store.Player
	if externalID != "" {
		err := tx.GetContext(ctx, &p, `SELECT `+playerColumns+` FROM players WHERE external_id = ?`, externalID)
		if err == nil {
			return &p, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("getting player by external_id: %w", err)
		}
	}

	err := tx.GetContext(ctx, &p, `SELECT `+playerColumns+` FROM players WHERE fold(name) = fold(?)`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting player by name: %w", err)
	}

	if externalID != "" && !p.Linked() {
		if _, err := tx.ExecContext(ctx, `UPDATE players SET external_id = ? WHERE id = ?`, externalID, p.ID); err != nil {
			return nil, fmt.Errorf("linking player %s: %w", p.ID, err)
		}
		p.ExternalID = &externalID
	}
	return &p, nil
}

func (r *PlayerRepo) Find(ctx context.Context, substr string) (*store.Player, error) {
	var p store.Player
	err := r.db.GetContext(ctx, &p,
		`SELECT `+playerColumns+` FROM players WHERE fold(name) LIKE ? ESCAPE '\'
		 ORDER BY fold(name) = fold(?) DESC, LENGTH(name), name LIMIT 1`,
		store.ContainsPattern(substr), substr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding player: %w", err)
	}
	return &p, nil
}

func (r *PlayerRepo) GetByID(ctx context.Context, id string) (*store.Player, error) {
	var p store.Player
	err := r.db.GetContext(ctx, &p, `SELECT `+playerColumns+` FROM players WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return &p, nil
}

func (r *PlayerRepo) List(ctx context.Context) ([]store.Player, error) {
	var players []store.Player
	err := r.db.SelectContext(ctx, &players, `SELECT `+playerColumns+` FROM players ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	return players, nil
}
