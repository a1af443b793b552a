package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/penalty-kitty/internal/clock"
	"github.com/jensholdgaard/penalty-kitty/internal/money"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

const penaltyColumns = `p.id, p.player_id, p.reason, p.amount_cents, p.paid, p.event_id, p.created_at, p.paid_at`

type penaltyRow struct {
	ID          string     `db:"id"`
	PlayerID    string     `db:"player_id"`
	Reason      string     `db:"reason"`
	AmountCents int64      `db:"amount_cents"`
	Paid        bool       `db:"paid"`
	EventID     *string    `db:"event_id"`
	CreatedAt   time.Time  `db:"created_at"`
	PaidAt      *time.Time `db:"paid_at"`
	PlayerName  string     `db:"player_name"`
}

func (r penaltyRow) view() store.PenaltyView {
	return store.PenaltyView{
		Penalty: store.Penalty{
			ID:        r.ID,
			PlayerID:  r.PlayerID,
			Reason:    r.Reason,
			Amount:    money.FromCents(r.AmountCents),
			Paid:      r.Paid,
			EventID:   r.EventID,
			CreatedAt: r.CreatedAt,
			PaidAt:    r.PaidAt,
		},
		PlayerName: r.PlayerName,
	}
}

// PenaltyRepo implements store.PenaltyRepository on SQLite.
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
		Amount:    money.FromCents(money.ToCents(amount)),
		CreatedAt: r.clock.Now().UTC(),
	}
	if eventID != "" {
		p.EventID = &eventID
	}
	return p
}

const insertPenalty = `INSERT INTO penalties (id, player_id, reason, amount_cents, paid, event_id, created_at)
	VALUES (?, ?, ?, ?, FALSE, ?, ?)`

func (r *PenaltyRepo) Add(ctx context.Context, playerID, reason string, amount decimal.Decimal, eventID string) (*store.Penalty, error) {
	p := r.newPenalty(playerID, reason, amount, eventID)
	_, err := r.db.ExecContext(ctx, insertPenalty,
		p.ID, p.PlayerID, p.Reason, money.ToCents(p.Amount), p.EventID, p.CreatedAt)
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
		insertPenalty+` ON CONFLICT (player_id, event_id) WHERE event_id IS NOT NULL DO NOTHING`,
		p.ID, p.PlayerID, p.Reason, money.ToCents(p.Amount), p.EventID, p.CreatedAt)
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
		`SELECT EXISTS (SELECT 1 FROM penalties WHERE player_id = ? AND event_id = ?)`,
		playerID, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("checking penalty: %w", err)
	}
	return exists, nil
}

func (r *PenaltyRepo) MarkPaid(ctx context.Context, playerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE penalties SET paid = TRUE, paid_at = ? WHERE player_id = ? AND NOT paid`,
		r.clock.Now().UTC(), playerID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking penalties paid: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *PenaltyRepo) List(ctx context.Context, f store.PenaltyFilter) ([]store.PenaltyView, error) {
	query := `SELECT ` + penaltyColumns + `, pl.name AS player_name
	          FROM penalties p
	          JOIN players pl ON pl.id = p.player_id`

	var (
		conds []string
		args  []any
	)
	if f.PlayerID != "" {
		conds = append(conds, "p.player_id = ?")
		args = append(args, f.PlayerID)
	}
	if f.OnlyUnpaid {
		conds = append(conds, "NOT p.paid")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY pl.name COLLATE NOCASE, p.created_at DESC"

	var rows []penaltyRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing penalties: %w", err)
	}
	views := make([]store.PenaltyView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views, nil
}

func (r *PenaltyRepo) OpenByPlayer(ctx context.Context) ([]store.OpenSummary, error) {
	var rows []struct {
		PlayerID   string `db:"player_id"`
		PlayerName string `db:"player_name"`
		Count      int    `db:"open_count"`
		SumCents   int64  `db:"open_sum"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT pl.id AS player_id, pl.name AS player_name,
		        COUNT(p.id) AS open_count, SUM(p.amount_cents) AS open_sum
		 FROM penalties p
		 JOIN players pl ON pl.id = p.player_id
		 WHERE NOT p.paid
		 GROUP BY pl.id, pl.name
		 ORDER BY open_sum DESC, pl.name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("summarizing open penalties: %w", err)
	}
	summary := make([]store.OpenSummary, 0, len(rows))
	for _, row := range rows {
		summary = append(summary, store.OpenSummary{
			PlayerID:   row.PlayerID,
			PlayerName: row.PlayerName,
			Count:      row.Count,
			Sum:        money.FromCents(row.SumCents),
		})
	}
	return summary, nil
}

func (r *PenaltyRepo) TotalOpen(ctx context.Context) (decimal.Decimal, error) {
	var cents int64
	err := r.db.GetContext(ctx, &cents, `SELECT COALESCE(SUM(amount_cents), 0) FROM penalties WHERE NOT paid`)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing open penalties: %w", err)
	}
	return money.FromCents(cents), nil
}
