// Package kitty implements the ledger operations behind the chat commands:
// assigning and settling penalties, maintaining the catalog and reporting.
package kitty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/penalty-kitty/internal/event"
	"github.com/jensholdgaard/penalty-kitty/internal/money"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

var (
	// ErrUnknownPlayer is returned when a player search matches nobody.
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrAmountRequired is returned when a reason matches no catalog entry
	// and no amount was given.
	ErrAmountRequired = errors.New("amount required for a reason outside the catalog")
	// ErrMissingField is returned when a required name or reason is blank.
	ErrMissingField = errors.New("missing field")
)

// Manager handles ledger operations.
type Manager struct {
	players   store.PlayerRepository
	catalog   store.CatalogRepository
	penalties store.PenaltyRepository
	events    event.Store
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewManager returns a new Manager.
func NewManager(repos *store.Repositories, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		players:   repos.Players,
		catalog:   repos.Catalog,
		penalties: repos.Penalties,
		events:    repos.Events,
		logger:    logger,
		tracer:    tp.Tracer("github.com/jensholdgaard/penalty-kitty/internal/kitty"),
	}
}

// Assignment describes a manual penalty.
type Assignment struct {
	PlayerName string
	Reason     string
	// Amount is used only when Reason matches no catalog entry.
	Amount *decimal.Decimal
	// AssignedBy identifies the caller for the audit log.
	AssignedBy string
}

// Assigned is the outcome of AssignPenalty.
type Assigned struct {
	Player  *store.Player
	Penalty *store.Penalty
	// FromCatalog reports that reason and amount were copied from the catalog.
	FromCatalog bool
}

// AssignPenalty records a manual penalty. When the reason matches a
// catalog entry, the entry's name and current amount are copied into the
// penalty; later catalog changes do not affect it. The player is created
// if no player has that name.
func (m *Manager) AssignPenalty(ctx context.Context, a Assignment) (*Assigned, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.AssignPenalty",
		trace.WithAttributes(
			attribute.String("player", a.PlayerName),
			attribute.String("reason", a.Reason),
		),
	)
	defer span.End()

	name := strings.TrimSpace(a.PlayerName)
	reason := strings.TrimSpace(a.Reason)
	if name == "" || reason == "" {
		return nil, fmt.Errorf("%w: player and reason are required", ErrMissingField)
	}

	entry, err := m.catalog.Find(ctx, reason)
	if err != nil {
		return nil, fmt.Errorf("looking up catalog: %w", err)
	}

	var amount decimal.Decimal
	switch {
	case entry != nil:
		reason, amount = entry.Name, entry.Amount
	case a.Amount != nil:
		if amount, err = money.Normalize(*a.Amount); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmountRequired, reason)
	}

	player, err := m.players.Upsert(ctx, name, "")
	if err != nil {
		return nil, fmt.Errorf("resolving player: %w", err)
	}

	penalty, err := m.penalties.Add(ctx, player.ID, reason, amount, "")
	if err != nil {
		return nil, fmt.Errorf("adding penalty: %w", err)
	}

	data, _ := json.Marshal(event.PenaltyAssignedData{
		PenaltyID:  penalty.ID,
		PlayerID:   player.ID,
		Reason:     reason,
		Amount:     amount.StringFixed(money.Places),
		AssignedBy: a.AssignedBy,
	})
	m.appendEvent(ctx, event.Event{AggregateID: player.ID, Type: event.PenaltyAssigned, Data: data})

	m.logger.InfoContext(ctx, "penalty assigned",
		slog.String("player_id", player.ID),
		slog.String("reason", reason),
		slog.String("amount", amount.StringFixed(money.Places)),
		slog.Bool("from_catalog", entry != nil),
	)
	return &Assigned{Player: player, Penalty: penalty, FromCatalog: entry != nil}, nil
}

// MarkPaid settles every open penalty of the player matching search and
// returns the player and how many penalties changed.
func (m *Manager) MarkPaid(ctx context.Context, search, by string) (*store.Player, int64, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.MarkPaid",
		trace.WithAttributes(attribute.String("search", search)),
	)
	defer span.End()

	player, err := m.findPlayer(ctx, search)
	if err != nil {
		return nil, 0, err
	}

	n, err := m.penalties.MarkPaid(ctx, player.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("marking paid: %w", err)
	}
	if n == 0 {
		return player, 0, nil
	}

	data, _ := json.Marshal(event.PenaltiesPaidData{PlayerID: player.ID, Count: n, MarkedBy: by})
	m.appendEvent(ctx, event.Event{AggregateID: player.ID, Type: event.PenaltiesPaid, Data: data})

	m.logger.InfoContext(ctx, "penalties paid",
		slog.String("player_id", player.ID),
		slog.Int64("count", n),
	)
	return player, n, nil
}

// PlayerDetail lists a player's penalties with the unpaid total.
type PlayerDetail struct {
	Player    *store.Player
	Penalties []store.PenaltyView
	Open      decimal.Decimal
}

// Detail returns every penalty of the player matching search, newest first.
func (m *Manager) Detail(ctx context.Context, search string) (*PlayerDetail, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Detail")
	defer span.End()

	player, err := m.findPlayer(ctx, search)
	if err != nil {
		return nil, err
	}
	penalties, err := m.penalties.List(ctx, store.PenaltyFilter{PlayerID: player.ID})
	if err != nil {
		return nil, fmt.Errorf("listing penalties: %w", err)
	}

	open := decimal.Zero
	for _, p := range penalties {
		if !p.Paid {
			open = open.Add(p.Amount)
		}
	}
	return &PlayerDetail{Player: player, Penalties: penalties, Open: open}, nil
}

// Overview is the open balance of the whole team.
type Overview struct {
	Players []store.OpenSummary
	Total   decimal.Decimal
}

// Overview summarizes unpaid penalties per player, largest sum first.
func (m *Manager) Overview(ctx context.Context) (*Overview, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Overview")
	defer span.End()

	rows, err := m.penalties.OpenByPlayer(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarizing penalties: %w", err)
	}
	total, err := m.penalties.TotalOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("summing penalties: %w", err)
	}
	return &Overview{Players: rows, Total: total}, nil
}

// Players returns every known player sorted by name.
func (m *Manager) Players(ctx context.Context) ([]store.Player, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Players")
	defer span.End()

	return m.players.List(ctx)
}

func (m *Manager) findPlayer(ctx context.Context, search string) (*store.Player, error) {
	search = strings.TrimSpace(search)
	if search == "" {
		return nil, fmt.Errorf("%w: player name is required", ErrMissingField)
	}
	player, err := m.players.Find(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("finding player: %w", err)
	}
	if player == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlayer, search)
	}
	return player, nil
}

func (m *Manager) appendEvent(ctx context.Context, e event.Event) {
	if err := m.events.Append(ctx, e); err != nil {
		m.logger.ErrorContext(ctx, "failed to append event",
			slog.String("type", string(e.Type)),
			slog.Any("error", err),
		)
	}
}
