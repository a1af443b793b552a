package kitty

import (
	"context"
	"encoding/json"
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

// Catalog returns the catalog ordered by amount.
func (m *Manager) Catalog(ctx context.Context) ([]store.CatalogEntry, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Catalog")
	defer span.End()

	return m.catalog.List(ctx)
}

// SetCatalogEntry creates the entry or replaces its amount.
func (m *Manager) SetCatalogEntry(ctx context.Context, name string, amount decimal.Decimal) (*store.CatalogEntry, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.SetCatalogEntry",
		trace.WithAttributes(attribute.String("name", name)),
	)
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: catalog name is required", ErrMissingField)
	}
	amount, err := money.Normalize(amount)
	if err != nil {
		return nil, err
	}

	entry, err := m.catalog.Upsert(ctx, name, amount)
	if err != nil {
		return nil, fmt.Errorf("saving catalog entry: %w", err)
	}

	data, _ := json.Marshal(event.CatalogData{Name: entry.Name, Amount: entry.Amount.StringFixed(money.Places)})
	m.appendEvent(ctx, event.Event{AggregateID: entry.ID, Type: event.CatalogUpdated, Data: data})

	m.logger.InfoContext(ctx, "catalog entry saved",
		slog.String("name", entry.Name),
		slog.String("amount", entry.Amount.StringFixed(money.Places)),
	)
	return entry, nil
}

// RemoveCatalogEntry deletes the entry with that name, ignoring case. It
// reports false when there was none.
func (m *Manager) RemoveCatalogEntry(ctx context.Context, name string) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.RemoveCatalogEntry",
		trace.WithAttributes(attribute.String("name", name)),
	)
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%w: catalog name is required", ErrMissingField)
	}
	removed, err := m.catalog.Remove(ctx, name)
	if err != nil {
		return false, fmt.Errorf("removing catalog entry: %w", err)
	}
	if removed {
		data, _ := json.Marshal(event.CatalogData{Name: name})
		m.appendEvent(ctx, event.Event{AggregateID: strings.ToLower(name), Type: event.CatalogRemoved, Data: data})
	}
	return removed, nil
}
