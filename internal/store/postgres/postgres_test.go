package postgres_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/penalty-kitty/internal/clock"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
	"github.com/jensholdgaard/penalty-kitty/internal/store/postgres"
	"github.com/jensholdgaard/penalty-kitty/internal/store/storetest"
)

func TestRepositories(t *testing.T) {
	db := newTestDB(t)

	storetest.Run(t, func(t *testing.T, clk clock.Clock) *store.Repositories {
		truncate(t, db)
		return &store.Repositories{
			Players:   postgres.NewPlayerRepo(db, clk),
			Catalog:   postgres.NewCatalogRepo(db, clk),
			Penalties: postgres.NewPenaltyRepo(db, clk),
			Events:    postgres.NewEventStore(db, clk),
			Ping:      db.PingContext,
		}
	})
}

func TestMigrate_SeedsCatalog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entries, err := postgres.NewCatalogRepo(db, clock.Real{}).List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("seeded %d catalog entries, want 6", len(entries))
	}
	if entries[0].Name != "No reply" || !entries[0].Amount.Equal(decimal.NewFromInt(2)) {
		t.Errorf("cheapest entry = %s %s, want No reply 2", entries[0].Name, entries[0].Amount)
	}

	// Running again is a no-op.
	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestPenaltyRepo_AddForEventRequiresEventID(t *testing.T) {
	db := newTestDB(t)
	clk := clock.Real{}
	ctx := context.Background()

	p, err := postgres.NewPlayerRepo(db, clk).Upsert(ctx, "Anna", "")
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, _, err := postgres.NewPenaltyRepo(db, clk).AddForEvent(ctx, p.ID, "x", decimal.NewFromInt(2), ""); err == nil {
		t.Error("expected error for empty event id")
	}
}
