// Package reconcile issues penalties to members who left an event
// invitation unanswered past its response deadline.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/penalty-kitty/internal/clock"
	"github.com/jensholdgaard/penalty-kitty/internal/event"
	"github.com/jensholdgaard/penalty-kitty/internal/money"
	"github.com/jensholdgaard/penalty-kitty/internal/schedule"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

const instrumentationName = "github.com/jensholdgaard/penalty-kitty/internal/reconcile"

// DefaultLookback is the window used when neither the request nor the
// engine names one.
const DefaultLookback = 14 * 24 * time.Hour

var (
	// ErrNoGroup is returned when a run names no group.
	ErrNoGroup = errors.New("group id is required")
	// ErrInvalidWindow is returned when the window starts after it ends.
	ErrInvalidWindow = errors.New("sync window starts after it ends")
)

// Request parameterises a run. Zero times are filled in from the engine's
// clock and lookback.
type Request struct {
	GroupID string
	From    time.Time
	To      time.Time
	// Now is the reference time for the default window.
	Now           time.Time
	PenaltyAmount decimal.Decimal
}

// Engine reconciles scheduled events against the ledger.
type Engine struct {
	source    schedule.Source
	players   store.PlayerRepository
	penalties store.PenaltyRepository
	events    event.Store
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     clock.Clock
	lookback  time.Duration

	runs         metric.Int64Counter
	newPenalties metric.Int64Counter
	skipped      metric.Int64Counter
}

// NewEngine returns an Engine. A lookback of zero or less means
// DefaultLookback.
func NewEngine(
	source schedule.Source,
	players store.PlayerRepository,
	penalties store.PenaltyRepository,
	events event.Store,
	logger *slog.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	clk clock.Clock,
	lookback time.Duration,
) (*Engine, error) {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	meter := mp.Meter(instrumentationName)

	runs, err := meter.Int64Counter("kitty.sync.runs",
		metric.WithDescription("Reconciliation runs by outcome."))
	if err != nil {
		return nil, fmt.Errorf("creating runs counter: %w", err)
	}
	newPenalties, err := meter.Int64Counter("kitty.sync.penalties",
		metric.WithDescription("Penalties issued for unanswered events."))
	if err != nil {
		return nil, fmt.Errorf("creating penalties counter: %w", err)
	}
	skipped, err := meter.Int64Counter("kitty.sync.skipped",
		metric.WithDescription("Events skipped by reason."))
	if err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}

	return &Engine{
		source:       source,
		players:      players,
		penalties:    penalties,
		events:       events,
		logger:       logger,
		tracer:       tp.Tracer(instrumentationName),
		clock:        clk,
		lookback:     lookback,
		runs:         runs,
		newPenalties: newPenalties,
		skipped:      skipped,
	}, nil
}

// Window resolves the request's time window.
func (e *Engine) Window(req Request) (from, to time.Time) {
	now := req.Now
	if now.IsZero() {
		now = e.clock.Now()
	}
	to = req.To
	if to.IsZero() {
		to = now
	}
	from = req.From
	if from.IsZero() {
		from = to.Add(-e.lookback)
	}
	return from, to
}

// Run performs one complete reconciliation pass. A failure to reach the
// scheduling service aborts the run without a result; penalties already
// written by an aborted run stay, and a later run skips them.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Run",
		trace.WithAttributes(attribute.String("group.id", req.GroupID)),
	)
	defer span.End()

	res, err := e.run(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return res, err
}

func (e *Engine) run(ctx context.Context, req Request) (*Result, error) {
	if req.GroupID == "" {
		return nil, ErrNoGroup
	}
	amount, err := money.Normalize(req.PenaltyAmount)
	if err != nil {
		return nil, fmt.Errorf("penalty amount: %w", err)
	}
	from, to := e.Window(req)
	if from.After(to) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidWindow, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	events, err := e.source.Events(ctx, req.GroupID, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetching events: %w", err)
	}
	group, err := e.source.Group(ctx, req.GroupID)
	if err != nil {
		return nil, fmt.Errorf("fetching group roster: %w", err)
	}

	res := newResult(req.GroupID, from, to)
	roster := group.Roster()
	invited := make(IDSet, len(roster))
	for id := range roster {
		invited.Add(id)
	}

	// Every named member becomes a player before any event is looked at.
	players := make(map[string]*store.Player, len(roster))
	for _, m := range group.Members {
		name := m.DisplayName()
		if m.ID == "" || name == "" {
			continue
		}
		if _, seen := players[m.ID]; seen {
			continue
		}
		p, err := e.players.Upsert(ctx, name, m.ID)
		if err != nil {
			return nil, fmt.Errorf("syncing player %s: %w", m.ID, err)
		}
		players[m.ID] = p
		res.synced()
	}

	var audit []event.Event
	for _, ev := range events {
		res.checked()

		switch {
		case ev.Cancelled:
			res.skipCancelled()
			e.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "cancelled")))
			continue
		case !ev.Expired:
			res.skipExpired()
			e.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "deadline_open")))
			continue
		case ev.ID == "":
			e.logger.WarnContext(ctx, "skipping event without id", slog.String("event", ev.Name))
			continue
		}

		for _, id := range Classify(ev.Responses, invited).Sorted() {
			member, ok := roster[id]
			if !ok {
				continue
			}
			name := member.DisplayName()
			if name == "" {
				continue
			}

			p := players[id]
			if p == nil {
				if p, err = e.players.Upsert(ctx, name, id); err != nil {
					return nil, fmt.Errorf("syncing player %s: %w", id, err)
				}
				players[id] = p
			}

			reason := "no reply: " + ev.Name
			penalty, inserted, err := e.penalties.AddForEvent(ctx, p.ID, reason, amount, ev.ID)
			if err != nil {
				return nil, fmt.Errorf("adding penalty for %s on event %s: %w", p.ID, ev.ID, err)
			}
			if !inserted {
				continue
			}

			res.issued(fmt.Sprintf("%s → %s (%s)", name, ev.Name, ev.Start.UTC().Format(time.DateOnly)))
			audit = append(audit, penaltyAssigned(penalty))
		}
	}

	e.newPenalties.Add(ctx, int64(res.NewPenalties))
	e.recordAudit(ctx, res, audit)

	e.logger.InfoContext(ctx, "sync completed",
		slog.String("group_id", req.GroupID),
		slog.Int("events_checked", res.EventsChecked),
		slog.Int("skipped_expired", res.SkippedExpired),
		slog.Int("skipped_cancelled", res.SkippedCancelled),
		slog.Int("new_penalties", res.NewPenalties),
		slog.Int("players_synced", res.PlayersSynced),
	)
	return res, nil
}

func penaltyAssigned(p *store.Penalty) event.Event {
	data, _ := json.Marshal(event.PenaltyAssignedData{
		PenaltyID: p.ID,
		PlayerID:  p.PlayerID,
		Reason:    p.Reason,
		Amount:    p.Amount.StringFixed(money.Places),
	})
	return event.Event{AggregateID: p.PlayerID, Type: event.PenaltyAssigned, Data: data}
}

// recordAudit appends the run's events. The ledger is already updated, so
// a failure here is only logged.
func (e *Engine) recordAudit(ctx context.Context, res *Result, audit []event.Event) {
	data, _ := json.Marshal(event.SyncCompletedData{
		GroupID:          res.GroupID,
		From:             res.From,
		To:               res.To,
		EventsChecked:    res.EventsChecked,
		SkippedExpired:   res.SkippedExpired,
		SkippedCancelled: res.SkippedCancelled,
		NewPenalties:     res.NewPenalties,
		PlayersSynced:    res.PlayersSynced,
	})
	audit = append(audit, event.Event{AggregateID: res.GroupID, Type: event.SyncCompleted, Data: data})

	if err := e.events.Append(ctx, audit...); err != nil {
		e.logger.ErrorContext(ctx, "failed to append sync events", slog.Any("error", err))
	}
}
