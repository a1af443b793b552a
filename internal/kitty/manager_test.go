package kitty_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/penalty-kitty/internal/clock"
	"github.com/jensholdgaard/penalty-kitty/internal/event"
	"github.com/jensholdgaard/penalty-kitty/internal/kitty"
	"github.com/jensholdgaard/penalty-kitty/internal/money"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
	"github.com/jensholdgaard/penalty-kitty/internal/store/sqlite"
)

var testNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T) (*kitty.Manager, *store.Repositories, *clock.Mock) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Connect(ctx, filepath.Join(t.TempDir(), "kitty.db"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	clk := clock.NewMock(testNow)
	repos := sqlite.New(db, clk)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return kitty.NewManager(repos, logger, noop.NewTracerProvider()), repos, clk
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestManager_AssignPenaltyCopiesCatalogAmount(t *testing.T) {
	m, repos, _ := newManager(t)
	ctx := context.Background()

	if _, err := m.SetCatalogEntry(ctx, "Own Goal", decimal.RequireFromString("5.00")); err != nil {
		t.Fatalf("SetCatalogEntry: %v", err)
	}

	got, err := m.AssignPenalty(ctx, kitty.Assignment{PlayerName: "Anna Berg", Reason: "own goal", Amount: amount("99")})
	if err != nil {
		t.Fatalf("AssignPenalty: %v", err)
	}
	if !got.FromCatalog {
		t.Error("FromCatalog = false, want true")
	}
	if got.Penalty.Reason != "Own Goal" {
		t.Errorf("Reason = %q, want the catalog name", got.Penalty.Reason)
	}

	if _, err := m.SetCatalogEntry(ctx, "Own Goal", decimal.RequireFromString("7.00")); err != nil {
		t.Fatalf("SetCatalogEntry: %v", err)
	}

	stored, err := repos.Penalties.List(ctx, store.PenaltyFilter{PlayerID: got.Player.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(stored) != 1 || !stored[0].Amount.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("stored penalties = %+v, want one 5.00 penalty", stored)
	}
}

func TestManager_AssignPenaltyCustomReason(t *testing.T) {
	m, repos, _ := newManager(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      kitty.Assignment
		wantErr error
	}{
		{
			name: "amount given",
			in:   kitty.Assignment{PlayerName: "Bo", Reason: "Lost the ball bag", Amount: amount("12.5")},
		},
		{
			name:    "amount missing",
			in:      kitty.Assignment{PlayerName: "Bo", Reason: "Sang off key"},
			wantErr: kitty.ErrAmountRequired,
		},
		{
			name:    "negative amount",
			in:      kitty.Assignment{PlayerName: "Bo", Reason: "Refund", Amount: amount("-1")},
			wantErr: money.ErrInvalidAmount,
		},
		{
			name:    "blank player",
			in:      kitty.Assignment{PlayerName: "  ", Reason: "Late", Amount: amount("1")},
			wantErr: kitty.ErrMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.AssignPenalty(ctx, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AssignPenalty error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if got.FromCatalog {
				t.Error("FromCatalog = true, want false")
			}
			if !got.Penalty.Amount.Equal(decimal.RequireFromString("12.50")) {
				t.Errorf("Amount = %s, want 12.50", got.Penalty.Amount)
			}
		})
	}

	players, err := repos.Players.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(players) != 1 || players[0].Name != "Bo" {
		t.Errorf("players = %+v, want only Bo", players)
	}
}

func TestManager_AssignPenaltyReusesPlayer(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	first, err := m.AssignPenalty(ctx, kitty.Assignment{PlayerName: "Anna Berg", Reason: "Red card"})
	if err != nil {
		t.Fatalf("AssignPenalty: %v", err)
	}
	second, err := m.AssignPenalty(ctx, kitty.Assignment{PlayerName: "ANNA BERG", Reason: "Forgot kit"})
	if err != nil {
		t.Fatalf("AssignPenalty: %v", err)
	}
	if first.Player.ID != second.Player.ID {
		t.Errorf("second assignment created a new player")
	}
}

func TestManager_MarkPaid(t *testing.T) {
	m, _, clk := newManager(t)
	ctx := context.Background()

	for _, reason := range []string{"Red card", "Late for training"} {
		if _, err := m.AssignPenalty(ctx, kitty.Assignment{PlayerName: "Anna Berg", Reason: reason}); err != nil {
			t.Fatalf("AssignPenalty: %v", err)
		}
	}
	if _, err := m.AssignPenalty(ctx, kitty.Assignment{PlayerName: "Bo Lind", Reason: "Forgot kit"}); err != nil {
		t.Fatalf("AssignPenalty: %v", err)
	}

	overview, err := m.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if !overview.Total.Equal(decimal.RequireFromString("23")) {
		t.Errorf("Total = %s, want 23.00", overview.Total)
	}
	if len(overview.Players) != 2 || overview.Players[0].PlayerName != "Anna Berg" {
		t.Errorf("Players = %+v, want Anna first", overview.Players)
	}

	clk.Advance(time.Hour)
	player, n, err := m.MarkPaid(ctx, "anna", "admin-1")
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if player.Name != "Anna Berg" || n != 2 {
		t.Errorf("MarkPaid = %s, %d; want Anna Berg, 2", player.Name, n)
	}

	_, n, err = m.MarkPaid(ctx, "anna", "admin-1")
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if n != 0 {
		t.Errorf("second MarkPaid = %d, want 0", n)
	}

	if _, _, err := m.MarkPaid(ctx, "Bo", "admin-1"); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	overview, err = m.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if !overview.Total.IsZero() || len(overview.Players) != 0 {
		t.Errorf("after paying everyone: %+v, want empty", overview)
	}
}

func TestManager_UnknownPlayer(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	if _, _, err := m.MarkPaid(ctx, "nobody", ""); !errors.Is(err, kitty.ErrUnknownPlayer) {
		t.Errorf("MarkPaid error = %v, want ErrUnknownPlayer", err)
	}
	if _, err := m.Detail(ctx, "nobody"); !errors.Is(err, kitty.ErrUnknownPlayer) {
		t.Errorf("Detail error = %v, want ErrUnknownPlayer", err)
	}
	if _, err := m.Detail(ctx, ""); !errors.Is(err, kitty.ErrMissingField) {
		t.Errorf("Detail error = %v, want ErrMissingField", err)
	}
}

func TestManager_Detail(t *testing.T) {
	m, _, clk := newManager(t)
	ctx := context.Background()

	if _, err := m.AssignPenalty(ctx, kitty.Assignment{PlayerName: "Anna", Reason: "Red card"}); err != nil {
		t.Fatalf("AssignPenalty: %v", err)
	}
	if _, _, err := m.MarkPaid(ctx, "Anna", ""); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	clk.Advance(time.Hour)
	if _, err := m.AssignPenalty(ctx, kitty.Assignment{PlayerName: "Anna", Reason: "Forgot kit"}); err != nil {
		t.Fatalf("AssignPenalty: %v", err)
	}

	d, err := m.Detail(ctx, "ann")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if len(d.Penalties) != 2 || d.Penalties[0].Reason != "Forgot kit" {
		t.Errorf("penalties = %+v, want newest first", d.Penalties)
	}
	if !d.Open.Equal(decimal.RequireFromString("5")) {
		t.Errorf("Open = %s, want 5.00", d.Open)
	}
}

func TestManager_Catalog(t *testing.T) {
	m, repos, _ := newManager(t)
	ctx := context.Background()

	entries, err := m.Catalog(ctx)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("default catalog has %d entries, want 6", len(entries))
	}

	if _, err := m.SetCatalogEntry(ctx, "Complaining", decimal.RequireFromString("2")); err != nil {
		t.Fatalf("SetCatalogEntry: %v", err)
	}
	if _, err := m.SetCatalogEntry(ctx, "Free kick", decimal.RequireFromString("-2")); !errors.Is(err, money.ErrInvalidAmount) {
		t.Errorf("negative amount error = %v, want ErrInvalidAmount", err)
	}
	if _, err := m.SetCatalogEntry(ctx, "Huge", decimal.RequireFromString("200000000000000000")); !errors.Is(err, money.ErrInvalidAmount) {
		t.Errorf("oversized amount error = %v, want ErrInvalidAmount", err)
	}

	removed, err := m.RemoveCatalogEntry(ctx, "complaining")
	if err != nil || !removed {
		t.Fatalf("RemoveCatalogEntry = %v, %v; want true", removed, err)
	}
	removed, err = m.RemoveCatalogEntry(ctx, "complaining")
	if err != nil || removed {
		t.Errorf("second RemoveCatalogEntry = %v, %v; want false", removed, err)
	}

	updated, err := repos.Events.LoadByType(ctx, event.CatalogUpdated, 0)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	removedEvents, err := repos.Events.LoadByType(ctx, event.CatalogRemoved, 0)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(updated) != 1 || len(removedEvents) != 1 {
		t.Errorf("audit events: %d updated, %d removed; want 1, 1", len(updated), len(removedEvents))
	}
}

func TestManager_ExportCSV(t *testing.T) {
	m, _, clk := newManager(t)
	ctx := context.Background()

	if _, err := m.AssignPenalty(ctx, kitty.Assignment{PlayerName: "Bo", Reason: "Late; again", Amount: amount("1")}); err != nil {
		t.Fatalf("AssignPenalty: %v", err)
	}
	if _, err := m.AssignPenalty(ctx, kitty.Assignment{PlayerName: "Anna", Reason: "Red card"}); err != nil {
		t.Fatalf("AssignPenalty: %v", err)
	}
	clk.Advance(48 * time.Hour)
	if _, _, err := m.MarkPaid(ctx, "Anna", ""); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	var buf bytes.Buffer
	n, err := m.ExportCSV(ctx, &buf)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if n != 2 {
		t.Errorf("ExportCSV rows = %d, want 2", n)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "\ufeff") {
		t.Error("export does not start with a byte order mark")
	}
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff")))
	r.Comma = kitty.ExportSeparator
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}

	want := [][]string{
		{"Player", "Reason", "Amount", "Paid", "Date", "Paid on"},
		{"Anna", "Red card", "15.00", "yes", "2024-03-20", "2024-03-22"},
		{"Bo", "Late; again", "1.00", "no", "2024-03-20", ""},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_History(t *testing.T) {
	m, _, clk := newManager(t)
	ctx := context.Background()

	if _, err := m.AssignPenalty(ctx, kitty.Assignment{PlayerName: "Anna Berg", Reason: "Forgot kit", Amount: amount("3"), AssignedBy: "42"}); err != nil {
		t.Fatalf("AssignPenalty: %v", err)
	}
	clk.Advance(time.Hour)
	if _, _, err := m.MarkPaid(ctx, "anna", "42"); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	player, events, err := m.History(ctx, "berg")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if player.Name != "Anna Berg" {
		t.Errorf("player = %q", player.Name)
	}
	var types []event.Type
	for _, e := range events {
		types = append(types, e.Type)
	}
	if diff := cmp.Diff([]event.Type{event.PenaltyAssigned, event.PenaltiesPaid}, types); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	if _, _, err := m.History(ctx, "nobody"); !errors.Is(err, kitty.ErrUnknownPlayer) {
		t.Errorf("History(nobody) error = %v, want ErrUnknownPlayer", err)
	}
}

func TestManager_RecentSyncs(t *testing.T) {
	m, repos, clk := newManager(t)
	ctx := context.Background()

	for n := 1; n <= 3; n++ {
		data, err := json.Marshal(event.SyncCompletedData{GroupID: "G1", NewPenalties: n})
		if err != nil {
			t.Fatal(err)
		}
		if err := repos.Events.Append(ctx, event.Event{AggregateID: "G1", Type: event.SyncCompleted, Data: data}); err != nil {
			t.Fatalf("Append: %v", err)
		}
		clk.Advance(time.Hour)
	}

	runs, err := m.RecentSyncs(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSyncs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].NewPenalties != 3 || runs[1].NewPenalties != 2 {
		t.Errorf("runs = %+v, want newest first", runs)
	}
	if !runs[0].At.Equal(testNow.Add(2 * time.Hour)) {
		t.Errorf("At = %v, want %v", runs[0].At, testNow.Add(2*time.Hour))
	}
}
