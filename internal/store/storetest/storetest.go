// Package storetest holds a behavioural test suite shared by every
// store.Driver implementation.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/penalty-kitty/internal/clock"
	"github.com/jensholdgaard/penalty-kitty/internal/event"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

// Opener returns empty repositories whose timestamps come from clk.
type Opener func(t *testing.T, clk clock.Clock) *store.Repositories

// Epoch is the starting time of the mock clock handed to an Opener.
var Epoch = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

// Run exercises the full repository contract against open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repos *store.Repositories, clk *clock.Mock)
	}{
		{"PlayerUpsertCreates", testPlayerUpsertCreates},
		{"PlayerUpsertMatchesExternalID", testPlayerUpsertMatchesExternalID},
		{"PlayerUpsertLinksByName", testPlayerUpsertLinksByName},
		{"PlayerFind", testPlayerFind},
		{"PlayerFindNonASCII", testPlayerFindNonASCII},
		{"PlayerGetByIDNotFound", testPlayerGetByIDNotFound},
		{"PlayerList", testPlayerList},
		{"CatalogUpsertOverwrites", testCatalogUpsertOverwrites},
		{"CatalogRemove", testCatalogRemove},
		{"CatalogFindAndList", testCatalogFindAndList},
		{"CatalogFindNonASCII", testCatalogFindNonASCII},
		{"PenaltyAddAndList", testPenaltyAddAndList},
		{"PenaltyAddForEventDedups", testPenaltyAddForEventDedups},
		{"PenaltyAddForEventConcurrent", testPenaltyAddForEventConcurrent},
		{"PenaltyManualNotDeduped", testPenaltyManualNotDeduped},
		{"PenaltyMarkPaid", testPenaltyMarkPaid},
		{"PenaltyOpenSummary", testPenaltyOpenSummary},
		{"EventAppendAndLoad", testEventAppendAndLoad},
		{"EventLoadByType", testEventLoadByType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewMock(Epoch)
			tt.fn(t, open(t, clk), clk)
		})
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustPlayer(t *testing.T, repos *store.Repositories, name, externalID string) *store.Player {
	t.Helper()
	p, err := repos.Players.Upsert(context.Background(), name, externalID)
	if err != nil {
		t.Fatalf("Upsert(%q, %q): %v", name, externalID, err)
	}
	return p
}

func testPlayerUpsertCreates(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	p := mustPlayer(t, repos, "Anna Berg", "m1")
	if p.ID == "" {
		t.Fatal("expected ID to be set")
	}
	if !p.Linked() || *p.ExternalID != "m1" {
		t.Errorf("ExternalID = %v, want m1", p.ExternalID)
	}
	if !p.CreatedAt.Equal(Epoch) {
		t.Errorf("CreatedAt = %v, want %v", p.CreatedAt, Epoch)
	}

	unlinked := mustPlayer(t, repos, "Bo Lind", "")
	if unlinked.Linked() {
		t.Errorf("player without external id reported as linked")
	}
}

func testPlayerUpsertMatchesExternalID(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	first := mustPlayer(t, repos, "Anna Berg", "m1")
	again := mustPlayer(t, repos, "Anna B.", "m1")
	if again.ID != first.ID {
		t.Errorf("ID = %s, want %s", again.ID, first.ID)
	}
	if again.Name != "Anna Berg" {
		t.Errorf("Name = %q, stored name must not change", again.Name)
	}
}

func testPlayerUpsertLinksByName(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	ctx := context.Background()
	manual := mustPlayer(t, repos, "Anna Berg", "")
	linked := mustPlayer(t, repos, "anna berg", "m1")
	if linked.ID != manual.ID {
		t.Fatalf("ID = %s, want %s", linked.ID, manual.ID)
	}
	if !linked.Linked() || *linked.ExternalID != "m1" {
		t.Errorf("ExternalID = %v, want m1", linked.ExternalID)
	}

	got, err := repos.Players.GetByID(ctx, manual.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.Linked() || *got.ExternalID != "m1" {
		t.Errorf("stored ExternalID = %v, want m1", got.ExternalID)
	}

	players, err := repos.Players.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(players) != 1 {
		t.Errorf("List returned %d players, want 1", len(players))
	}
}

func testPlayerFind(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	ctx := context.Background()
	anna := mustPlayer(t, repos, "Anna Berg", "")
	short := mustPlayer(t, repos, "Anna", "")
	mustPlayer(t, repos, "100% Carl", "")

	tests := []struct {
		term   string
		want   string
		wantOK bool
	}{
		{"berg", anna.ID, true},
		{"ANNA", short.ID, true},
		{"nna", short.ID, true},
		{"100%", "", true},
		{"nobody", "", false},
		{"_", "", false},
	}
	for _, tt := range tests {
		got, err := repos.Players.Find(ctx, tt.term)
		if err != nil {
			t.Fatalf("Find(%q): %v", tt.term, err)
		}
		if (got != nil) != tt.wantOK {
			t.Errorf("Find(%q) = %v, want found=%v", tt.term, got, tt.wantOK)
			continue
		}
		if tt.want != "" && got.ID != tt.want {
			t.Errorf("Find(%q).ID = %s, want %s", tt.term, got.ID, tt.want)
		}
	}
}

func testPlayerFindNonASCII(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	ctx := context.Background()
	omer := mustPlayer(t, repos, "Ömer Yilmaz", "")

	for _, term := range []string{"Ömer Yilmaz", "Ömer", "ömer", "ÖMER YILMAZ", "Yilmaz"} {
		got, err := repos.Players.Find(ctx, term)
		if err != nil {
			t.Fatalf("Find(%q): %v", term, err)
		}
		if got == nil || got.ID != omer.ID {
			t.Errorf("Find(%q) = %v, want %s", term, got, omer.ID)
		}
	}

	linked := mustPlayer(t, repos, "ömer yilmaz", "m9")
	if linked.ID != omer.ID {
		t.Errorf("Upsert with lowercase name created %s, want %s", linked.ID, omer.ID)
	}
}

func testPlayerGetByIDNotFound(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	_, err := repos.Players.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByID error = %v, want ErrNotFound", err)
	}
}

func testPlayerList(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	mustPlayer(t, repos, "Cleo", "")
	mustPlayer(t, repos, "Anna", "")
	mustPlayer(t, repos, "Bo", "")

	players, err := repos.Players.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for _, p := range players {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"Anna", "Bo", "Cleo"}, names); diff != "" {
		t.Errorf("List names mismatch (-want +got):\n%s", diff)
	}
}

func testCatalogUpsertOverwrites(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	ctx := context.Background()
	first, err := repos.Catalog.Upsert(ctx, "Red card", dec("15"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	second, err := repos.Catalog.Upsert(ctx, "Red card", dec("20.5"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("ID = %s, want %s", second.ID, first.ID)
	}
	if !second.Amount.Equal(dec("20.50")) {
		t.Errorf("Amount = %s, want 20.50", second.Amount)
	}

	entries, err := repos.Catalog.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("List returned %d entries, want 1", len(entries))
	}
}

func testCatalogRemove(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	ctx := context.Background()
	if _, err := repos.Catalog.Upsert(ctx, "Forgot kit", dec("5")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	removed, err := repos.Catalog.Remove(ctx, "forgot KIT")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Error("Remove = false, want true")
	}

	removed, err = repos.Catalog.Remove(ctx, "Forgot kit")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed {
		t.Error("second Remove = true, want false")
	}
}

func testCatalogFindAndList(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	ctx := context.Background()
	for name, amount := range map[string]string{
		"Yellow-red card": "10",
		"Red card":        "15",
		"Yellow card":     "5",
		"Late":            "3",
	} {
		if _, err := repos.Catalog.Upsert(ctx, name, dec(amount)); err != nil {
			t.Fatalf("Upsert(%q): %v", name, err)
		}
	}

	tests := []struct {
		term string
		want string
	}{
		{"RED", "Red card"},
		{"red card", "Red card"},
		{"yellow", "Yellow card"},
		{"w-r", "Yellow-red card"},
		{"blue", ""},
	}
	for _, tt := range tests {
		got, err := repos.Catalog.Find(ctx, tt.term)
		if err != nil {
			t.Fatalf("Find(%q): %v", tt.term, err)
		}
		var name string
		if got != nil {
			name = got.Name
		}
		if name != tt.want {
			t.Errorf("Find(%q) = %q, want %q", tt.term, name, tt.want)
		}
	}

	entries, err := repos.Catalog.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{"Late", "Yellow card", "Yellow-red card", "Red card"}, names); diff != "" {
		t.Errorf("List order mismatch (-want +got):\n%s", diff)
	}
}

func testCatalogFindNonASCII(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	ctx := context.Background()
	if _, err := repos.Catalog.Upsert(ctx, "Ärger mit Schiri", dec("7.50")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := repos.Catalog.Find(ctx, "ärger")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got == nil || got.Name != "Ärger mit Schiri" {
		t.Errorf("Find(%q) = %v, want Ärger mit Schiri", "ärger", got)
	}

	removed, err := repos.Catalog.Remove(ctx, "ÄRGER MIT SCHIRI")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Error("Remove = false, want true")
	}
}

func testPenaltyAddAndList(t *testing.T, repos *store.Repositories, clk *clock.Mock) {
	ctx := context.Background()
	anna := mustPlayer(t, repos, "Anna", "")
	bo := mustPlayer(t, repos, "Bo", "")

	if _, err := repos.Penalties.Add(ctx, bo.ID, "Red card", dec("15"), ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	older, err := repos.Penalties.Add(ctx, anna.ID, "Late", dec("3"), "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	clk.Advance(time.Hour)
	newer, err := repos.Penalties.Add(ctx, anna.ID, "Forgot kit", dec("5"), "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if older.EventID != nil {
		t.Errorf("manual penalty EventID = %v, want nil", *older.EventID)
	}

	all, err := repos.Penalties.List(ctx, store.PenaltyFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, p := range all {
		ids = append(ids, p.ID)
	}
	if len(ids) != 3 || ids[0] != newer.ID || ids[1] != older.ID {
		t.Errorf("List order = %v, want Anna's newest first then Bo", ids)
	}
	if all[0].PlayerName != "Anna" || all[2].PlayerName != "Bo" {
		t.Errorf("PlayerName = %q/%q, want Anna/Bo", all[0].PlayerName, all[2].PlayerName)
	}

	mine, err := repos.Penalties.List(ctx, store.PenaltyFilter{PlayerID: bo.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(mine) != 1 || !mine[0].Amount.Equal(dec("15")) {
		t.Errorf("List(Bo) = %+v, want one 15.00 penalty", mine)
	}
}

func testPenaltyAddForEventDedups(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	ctx := context.Background()
	anna := mustPlayer(t, repos, "Anna", "m1")

	p, inserted, err := repos.Penalties.AddForEvent(ctx, anna.ID, "no reply: Training", dec("2"), "ev1")
	if err != nil {
		t.Fatalf("AddForEvent: %v", err)
	}
	if !inserted || p == nil {
		t.Fatal("first AddForEvent did not insert")
	}
	if p.EventID == nil || *p.EventID != "ev1" {
		t.Errorf("EventID = %v, want ev1", p.EventID)
	}

	_, inserted, err = repos.Penalties.AddForEvent(ctx, anna.ID, "no reply: Training", dec("2"), "ev1")
	if err != nil {
		t.Fatalf("AddForEvent: %v", err)
	}
	if inserted {
		t.Error("second AddForEvent inserted a duplicate")
	}

	exists, err := repos.Penalties.Exists(ctx, anna.ID, "ev1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("Exists(ev1) = false, want true")
	}
	if exists, _ := repos.Penalties.Exists(ctx, anna.ID, "ev2"); exists {
		t.Error("Exists(ev2) = true, want false")
	}

	// The same event still fines a different player.
	bo := mustPlayer(t, repos, "Bo", "m2")
	if _, inserted, _ := repos.Penalties.AddForEvent(ctx, bo.ID, "no reply: Training", dec("2"), "ev1"); !inserted {
		t.Error("AddForEvent for second player did not insert")
	}
}

func testPenaltyAddForEventConcurrent(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	ctx := context.Background()
	anna := mustPlayer(t, repos, "Anna", "m1")

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repos.Penalties.AddForEvent(ctx, anna.ID, "no reply: Match", dec("2"), "ev1")
			if err != nil {
				t.Errorf("AddForEvent: %v", err)
				return
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Errorf("inserted = %d, want exactly 1", inserted)
	}
	all, err := repos.Penalties.List(ctx, store.PenaltyFilter{PlayerID: anna.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("stored %d penalties, want 1", len(all))
	}
}

func testPenaltyManualNotDeduped(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	ctx := context.Background()
	anna := mustPlayer(t, repos, "Anna", "")
	for range 2 {
		if _, err := repos.Penalties.Add(ctx, anna.ID, "Late", dec("3"), ""); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	all, err := repos.Penalties.List(ctx, store.PenaltyFilter{PlayerID: anna.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("stored %d penalties, want 2", len(all))
	}
}

func testPenaltyMarkPaid(t *testing.T, repos *store.Repositories, clk *clock.Mock) {
	ctx := context.Background()
	anna := mustPlayer(t, repos, "Anna", "")
	bo := mustPlayer(t, repos, "Bo", "")
	for _, id := range []string{anna.ID, anna.ID, bo.ID} {
		if _, err := repos.Penalties.Add(ctx, id, "Late", dec("3"), ""); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	paidAt := clk.Advance(24 * time.Hour)
	n, err := repos.Penalties.MarkPaid(ctx, anna.ID)
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if n != 2 {
		t.Errorf("MarkPaid = %d, want 2", n)
	}
	if n, _ := repos.Penalties.MarkPaid(ctx, anna.ID); n != 0 {
		t.Errorf("second MarkPaid = %d, want 0", n)
	}

	mine, err := repos.Penalties.List(ctx, store.PenaltyFilter{PlayerID: anna.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, p := range mine {
		if !p.Paid || p.PaidAt == nil || !p.PaidAt.Equal(paidAt) {
			t.Errorf("penalty %s paid=%v paid_at=%v, want paid at %v", p.ID, p.Paid, p.PaidAt, paidAt)
		}
	}

	open, err := repos.Penalties.List(ctx, store.PenaltyFilter{OnlyUnpaid: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(open) != 1 || open[0].PlayerID != bo.ID {
		t.Errorf("open penalties = %+v, want only Bo's", open)
	}
}

func testPenaltyOpenSummary(t *testing.T, repos *store.Repositories, _ *clock.Mock) {
	ctx := context.Background()
	anna := mustPlayer(t, repos, "Anna", "")
	bo := mustPlayer(t, repos, "Bo", "")
	cleo := mustPlayer(t, repos, "Cleo", "")

	add := func(id, amount string) {
		t.Helper()
		if _, err := repos.Penalties.Add(ctx, id, "x", dec(amount), ""); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	add(anna.ID, "0.10")
	add(anna.ID, "0.20")
	add(bo.ID, "15")
	add(cleo.ID, "4")
	if _, err := repos.Penalties.MarkPaid(ctx, cleo.ID); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	summary, err := repos.Penalties.OpenByPlayer(ctx)
	if err != nil {
		t.Fatalf("OpenByPlayer: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("OpenByPlayer returned %d rows, want 2", len(summary))
	}
	if summary[0].PlayerName != "Bo" || !summary[0].Sum.Equal(dec("15")) || summary[0].Count != 1 {
		t.Errorf("summary[0] = %+v, want Bo 1 x 15", summary[0])
	}
	if summary[1].PlayerName != "Anna" || !summary[1].Sum.Equal(dec("0.30")) || summary[1].Count != 2 {
		t.Errorf("summary[1] = %+v, want Anna 2 x 0.30", summary[1])
	}

	total, err := repos.Penalties.TotalOpen(ctx)
	if err != nil {
		t.Fatalf("TotalOpen: %v", err)
	}
	if !total.Equal(dec("15.30")) {
		t.Errorf("TotalOpen = %s, want 15.30", total)
	}
}

func testEventAppendAndLoad(t *testing.T, repos *store.Repositories, clk *clock.Mock) {
	ctx := context.Background()
	first := event.Event{AggregateID: "p1", Type: event.PenaltyAssigned, Data: json.RawMessage(`{"reason":"Late"}`)}
	if err := repos.Events.Append(ctx, first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	clk.Advance(time.Minute)
	second := event.Event{AggregateID: "p1", Type: event.PenaltiesPaid, Data: json.RawMessage(`{"count":1}`)}
	other := event.Event{AggregateID: "p2", Type: event.PenaltyAssigned, Data: json.RawMessage(`{}`)}
	if err := repos.Events.Append(ctx, second, other); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := repos.Events.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Load returned %d events, want 2", len(loaded))
	}
	if loaded[0].Type != event.PenaltyAssigned || loaded[1].Type != event.PenaltiesPaid {
		t.Errorf("types = [%s, %s], want oldest first", loaded[0].Type, loaded[1].Type)
	}
	if loaded[0].ID == "" {
		t.Error("expected ID to be assigned")
	}

	var data event.PenaltyAssignedData
	if err := json.Unmarshal(loaded[0].Data, &data); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if data.Reason != "Late" {
		t.Errorf("payload reason = %q, want Late", data.Reason)
	}
}

func testEventLoadByType(t *testing.T, repos *store.Repositories, clk *clock.Mock) {
	ctx := context.Background()
	for _, agg := range []string{"g1", "g2", "g3"} {
		if err := repos.Events.Append(ctx, event.Event{AggregateID: agg, Type: event.SyncCompleted, Data: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
		clk.Advance(time.Minute)
	}
	if err := repos.Events.Append(ctx, event.Event{AggregateID: "x", Type: event.CatalogUpdated, Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	all, err := repos.Events.LoadByType(ctx, event.SyncCompleted, 0)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("LoadByType returned %d events, want 3", len(all))
	}

	latest, err := repos.Events.LoadByType(ctx, event.SyncCompleted, 2)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	var aggs []string
	for _, e := range latest {
		aggs = append(aggs, e.AggregateID)
	}
	if diff := cmp.Diff([]string{"g3", "g2"}, aggs); diff != "" {
		t.Errorf("LoadByType order mismatch (-want +got):\n%s", diff)
	}
}
