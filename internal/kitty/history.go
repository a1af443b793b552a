package kitty

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jensholdgaard/penalty-kitty/internal/event"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

// SyncRun is one completed reconciliation run read back from the audit log.
type SyncRun struct {
	At time.Time
	event.SyncCompletedData
}

// History returns the audit trail of the player matching search, oldest
// first.
func (m *Manager) History(ctx context.Context, search string) (*store.Player, []event.Event, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.History")
	defer span.End()

	player, err := m.findPlayer(ctx, search)
	if err != nil {
		return nil, nil, err
	}
	events, err := m.events.Load(ctx, player.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading history: %w", err)
	}
	return player, events, nil
}

// RecentSyncs returns up to limit completed runs, newest first.
func (m *Manager) RecentSyncs(ctx context.Context, limit int) ([]SyncRun, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.RecentSyncs")
	defer span.End()

	events, err := m.events.LoadByType(ctx, event.SyncCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("loading sync log: %w", err)
	}

	runs := make([]SyncRun, 0, len(events))
	for _, e := range events {
		run := SyncRun{At: e.CreatedAt}
		if err := json.Unmarshal(e.Data, &run.SyncCompletedData); err != nil {
			return nil, fmt.Errorf("decoding sync event %s: %w", e.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
