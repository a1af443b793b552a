package kitty

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jensholdgaard/penalty-kitty/internal/money"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

// ExportSeparator separates CSV fields. Spreadsheet programs in comma
// decimal locales expect a semicolon.
const ExportSeparator = ';'

// utf8BOM lets spreadsheet programs detect the encoding.
const utf8BOM = "\ufeff"

var exportHeader = []string{"Player", "Reason", "Amount", "Paid", "Date", "Paid on"}

// ExportCSV writes every penalty to w and returns how many rows it wrote.
func (m *Manager) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ExportCSV")
	defer span.End()

	penalties, err := m.penalties.List(ctx, store.PenaltyFilter{})
	if err != nil {
		return 0, fmt.Errorf("listing penalties: %w", err)
	}

	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return 0, fmt.Errorf("writing export: %w", err)
	}
	cw := csv.NewWriter(w)
	cw.Comma = ExportSeparator
	if err := cw.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("writing export: %w", err)
	}
	for _, p := range penalties {
		if err := cw.Write(exportRow(p)); err != nil {
			return 0, fmt.Errorf("writing export: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("writing export: %w", err)
	}
	return len(penalties), nil
}

func exportRow(p store.PenaltyView) []string {
	paid, paidOn := "no", ""
	if p.Paid {
		paid = "yes"
		if p.PaidAt != nil {
			paidOn = p.PaidAt.Format("2006-01-02")
		}
	}
	return []string{
		p.PlayerName,
		p.Reason,
		p.Amount.StringFixed(money.Places),
		paid,
		p.CreatedAt.Format("2006-01-02"),
		paidOn,
	}
}
