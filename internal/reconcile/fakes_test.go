package reconcile_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/penalty-kitty/internal/event"
	"github.com/jensholdgaard/penalty-kitty/internal/schedule"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

// fakeSource serves a fixed roster and event list.
type fakeSource struct {
	group     schedule.Group
	events    []schedule.Event
	eventsErr error
	groupErr  error

	mu       sync.Mutex
	minStart time.Time
	maxEnd   time.Time
}

func (f *fakeSource) Events(_ context.Context, _ string, minStart, maxEnd time.Time) ([]schedule.Event, error) {
	f.mu.Lock()
	f.minStart, f.maxEnd = minStart, maxEnd
	f.mu.Unlock()
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events, nil
}

func (f *fakeSource) Group(_ context.Context, groupID string) (*schedule.Group, error) {
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	g := f.group
	g.ID = groupID
	return &g, nil
}

func (f *fakeSource) Groups(_ context.Context) ([]schedule.Group, error) {
	return []schedule.Group{f.group}, nil
}

// memPlayers implements store.PlayerRepository in memory.
type memPlayers struct {
	mu      sync.Mutex
	players []*store.Player
	upserts int
}

func (m *memPlayers) Upsert(_ context.Context, name, externalID string) (*store.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++

	if externalID != "" {
		for _, p := range m.players {
			if p.ExternalID != nil && *p.ExternalID == externalID {
				return p, nil
			}
		}
	}
	for _, p := range m.players {
		if strings.EqualFold(p.Name, name) {
			if externalID != "" && !p.Linked() {
				p.ExternalID = &externalID
			}
			return p, nil
		}
	}
	p := &store.Player{ID: fmt.Sprintf("p%d", len(m.players)+1), Name: name}
	if externalID != "" {
		p.ExternalID = &externalID
	}
	m.players = append(m.players, p)
	return p, nil
}

func (m *memPlayers) Find(_ context.Context, substr string) (*store.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(substr)) {
			return p, nil
		}
	}
	return nil, nil
}

func (m *memPlayers) GetByID(_ context.Context, id string) (*store.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memPlayers) List(_ context.Context) ([]store.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memPlayers) byName(name string) *store.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// memPenalties implements store.PenaltyRepository in memory. AddForEvent
// is atomic, like the unique index in the real stores.
type memPenalties struct {
	mu        sync.Mutex
	penalties []store.Penalty
	addErr    error
}

func (m *memPenalties) Add(_ context.Context, playerID, reason string, amount decimal.Decimal, eventID string) (*store.Penalty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(playerID, reason, amount, eventID), nil
}

func (m *memPenalties) insert(playerID, reason string, amount decimal.Decimal, eventID string) *store.Penalty {
	p := store.Penalty{
		ID:       fmt.Sprintf("pen%d", len(m.penalties)+1),
		PlayerID: playerID,
		Reason:   reason,
		Amount:   amount,
	}
	if eventID != "" {
		p.EventID = &eventID
	}
	m.penalties = append(m.penalties, p)
	return &p
}

func (m *memPenalties) AddForEvent(_ context.Context, playerID, reason string, amount decimal.Decimal, eventID string) (*store.Penalty, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return nil, false, m.addErr
	}
	if m.exists(playerID, eventID) {
		return nil, false, nil
	}
	return m.insert(playerID, reason, amount, eventID), true, nil
}

func (m *memPenalties) exists(playerID, eventID string) bool {
	for _, p := range m.penalties {
		if p.PlayerID == playerID && p.EventID != nil && *p.EventID == eventID {
			return true
		}
	}
	return false
}

func (m *memPenalties) Exists(_ context.Context, playerID, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists(playerID, eventID), nil
}

func (m *memPenalties) MarkPaid(_ context.Context, playerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.penalties {
		if m.penalties[i].PlayerID == playerID && !m.penalties[i].Paid {
			m.penalties[i].Paid = true
			n++
		}
	}
	return n, nil
}

func (m *memPenalties) List(_ context.Context, f store.PenaltyFilter) ([]store.PenaltyView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.PenaltyView
	for _, p := range m.penalties {
		if f.PlayerID != "" && p.PlayerID != f.PlayerID {
			continue
		}
		if f.OnlyUnpaid && p.Paid {
			continue
		}
		out = append(out, store.PenaltyView{Penalty: p})
	}
	return out, nil
}

func (m *memPenalties) OpenByPlayer(_ context.Context) ([]store.OpenSummary, error) {
	return nil, nil
}

func (m *memPenalties) TotalOpen(_ context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, p := range m.penalties {
		if !p.Paid {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (m *memPenalties) all() []store.Penalty {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Penalty(nil), m.penalties...)
}

// memEvents implements event.Store in memory.
type memEvents struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (m *memEvents) Append(_ context.Context, events ...event.Event) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *memEvents) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.Event
	for _, e := range m.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvents) LoadByType(_ context.Context, eventType event.Type, _ int) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.Event
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}
