package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/penalty-kitty/internal/clock"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

// PenaltyRepo implements store.PenaltyRepository with sqlx.
type PenaltyRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewPenaltyRepo returns a new PenaltyRepo.
func NewPenaltyRepo(db *sqlx.DB, clk clock.Clock) *PenaltyRepo {
	return &PenaltyRepo{db: db, clock: clk}
}

func (r *PenaltyRepo) newPenalty(playerID, reason string, amount decimal.Decimal, eventID string) *store.Penalty {
	p := &store.Penalty{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		Reason:    reason,
		Amount:    amount.Round(2),
		CreatedAt: r.clock.Now().UTC(),
	}
	if eventID != "" {
		p.EventID = &eventID
	}
	return p
}

func (r *PenaltyRepo) Add(ctx context.Context, playerID, reason string, amount decimal.Decimal, eventID string) (*store.Penalty, error) {
	p := r.newPenalty(playerID, reason, amount, eventID)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO penalties (id, player_id, reason, amount, paid, event_id, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5, $6)`,
		p.ID, p.PlayerID, p.Reason, p.Amount, p.EventID, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting penalty: %w", err)
	}
	return p, nil
}

func (r *PenaltyRepo) AddForEvent(ctx context.Context, playerID, reason string, amount decimal.Decimal, eventID string) (*store.Penalty, bool, error) {
	if eventID == "" {
		return nil, false, fmt.Errorf("adding event penalty: event id is required")
	}
	p := r.newPenalty(playerID, reason, amount, eventID)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO penalties (id, player_id, reason, amount, paid, event_id, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5, $6)
		 ON CONFLICT (player_id, event_id) WHERE event_id IS NOT NULL DO NOTHING`,
		p.ID, p.PlayerID, p.Reason, p.Amount, p.EventID, p.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting event penalty: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("inserting event penalty: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	return p, true, nil
}

func (r *PenaltyRepo) Exists(ctx context.Context, playerID, eventID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM penalties WHERE player_id = $1 AND event_id = $2)`,
		playerID, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("checking penalty: %w", err)
	}
	return exists, nil
}

func (r *PenaltyRepo) MarkPaid(ctx context.Context, playerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE penalties SET paid = TRUE, paid_at = $1 WHERE player_id = $2 AND NOT paid`,
		r.clock.Now().UTC(), playerID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking penalties paid: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *PenaltyRepo) List(ctx context.Context, f store.PenaltyFilter) ([]store.PenaltyView, error) {
	query := `SELECT p.id, p.player_id, p.reason, p.amount, p.paid, p.event_id, p.created_at, p.paid_at,
	                 pl.name AS player_name
	          FROM penalties p
	          JOIN players pl ON pl.id = p.player_id`

	var (
		conds []string
		args  []any
	)
	if f.PlayerID != "" {
		args = append(args, f.PlayerID)
		conds = append(conds, fmt.Sprintf("p.player_id = $%d", len(args)))
	}
	if f.OnlyUnpaid {
		conds = append(conds, "NOT p.paid")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY pl.name, p.created_at DESC"

	var penalties []store.PenaltyView
	if err := r.db.SelectContext(ctx, &penalties, query, args...); err != nil {
		return nil, fmt.Errorf("listing penalties: %w", err)
	}
	return penalties, nil
}

func (r *PenaltyRepo) OpenByPlayer(ctx context.Context) ([]store.OpenSummary, error) {
	var summary []store.OpenSummary
	err := r.db.SelectContext(ctx, &summary,
		`SELECT pl.id AS player_id, pl.name AS player_name,
		        COUNT(p.id) AS open_count, SUM(p.amount) AS open_sum
		 FROM penalties p
		 JOIN players pl ON pl.id = p.player_id
		 WHERE NOT p.paid
		 GROUP BY pl.id, pl.name
		 ORDER BY open_sum DESC, pl.name`)
	if err != nil {
		return nil, fmt.Errorf("summarizing open penalties: %w", err)
	}
	return summary, nil
}

func (r *PenaltyRepo) TotalOpen(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(amount), 0) FROM penalties WHERE NOT paid`)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing open penalties: %w", err)
	}
	return total, nil
}
