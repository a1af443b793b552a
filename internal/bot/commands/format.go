package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/penalty-kitty/internal/event"
	"github.com/jensholdgaard/penalty-kitty/internal/kitty"
	"github.com/jensholdgaard/penalty-kitty/internal/money"
	"github.com/jensholdgaard/penalty-kitty/internal/reconcile"
	"github.com/jensholdgaard/penalty-kitty/internal/schedule"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
)

const (
	// syncDetailLimit caps the penalty lines shown after a sync.
	syncDetailLimit = 20
	syncLogLimit    = 5
	historyLimit    = 25
)

var dateLayouts = []string{"02.01.2006", "2006-01-02", "02/01/2006"}

// ParseDate reads a day as typed in chat. The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use DD.MM.YYYY", s)
}

// IsAdmin reports whether userID may run mutating commands. An empty
// admin list lets everyone in.
func IsAdmin(admins []string, userID string) bool {
	if len(admins) == 0 {
		return true
	}
	for _, id := range admins {
		if id == userID {
			return true
		}
	}
	return false
}

func formatOverview(o *kitty.Overview, currency string) string {
	if len(o.Players) == 0 {
		return "✅ No open penalties. The kitty is clean."
	}

	var b strings.Builder
	b.WriteString("💰 **Open penalties**\n```\n")
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Player\tCount\tSum\t")
	for _, row := range o.Players {
		fmt.Fprintf(w, "%s\t%d\t%s\t\n", row.PlayerName, row.Count, money.Format(row.Sum, currency))
	}
	_ = w.Flush()
	b.WriteString("```\n")
	fmt.Fprintf(&b, "**Total: %s**", money.Format(o.Total, currency))
	return b.String()
}

func formatDetail(d *kitty.PlayerDetail, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 **%s**\n", d.Player.Name)
	if len(d.Penalties) == 0 {
		b.WriteString("No penalties recorded.")
		return b.String()
	}
	for _, p := range d.Penalties {
		mark := "❌"
		if p.Paid {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s: %s (%s)\n", mark, p.Reason, money.Format(p.Amount, currency), p.CreatedAt.UTC().Format("02.01.2006"))
	}
	fmt.Fprintf(&b, "\n**Open: %s**", money.Format(d.Open, currency))
	return b.String()
}

func formatCatalog(entries []store.CatalogEntry, currency string) string {
	if len(entries) == 0 {
		return "The catalog is empty."
	}
	var b strings.Builder
	b.WriteString("📖 **Penalty catalog**\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "• %s: %s\n", e.Name, money.Format(e.Amount, currency))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPlayers(players []store.Player) string {
	if len(players) == 0 {
		return "No players yet. Run `/sync` or assign a penalty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 **Players (%d)**\n", len(players))
	for _, p := range players {
		b.WriteString("• " + p.Name)
		if p.Linked() {
			b.WriteString(" 🔗")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSync(res *reconcile.Result, amount string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔄 **Sync %s – %s**\n", res.From.Format("02.01.2006"), res.To.Format("02.01.2006"))
	fmt.Fprintf(&b, "Events checked: %d\n", res.EventsChecked)
	if res.SkippedCancelled > 0 {
		fmt.Fprintf(&b, "Cancelled: %d\n", res.SkippedCancelled)
	}
	if res.SkippedExpired > 0 {
		fmt.Fprintf(&b, "Deadline still open: %d\n", res.SkippedExpired)
	}
	fmt.Fprintf(&b, "Players synced: %d\n", res.PlayersSynced)
	fmt.Fprintf(&b, "New penalties: %d (%s each)", res.NewPenalties, amount)

	lines, more := res.Summary(syncDetailLimit)
	if len(lines) > 0 {
		b.WriteString("\n")
		for _, l := range lines {
			b.WriteString("\n• " + l)
		}
	}
	if more > 0 {
		fmt.Fprintf(&b, "\n… and %d more", more)
	}
	return b.String()
}

func formatGroups(groups []schedule.Group, current string) string {
	if len(groups) == 0 {
		return "No groups found for this account."
	}
	var b strings.Builder
	b.WriteString("🏟️ **Groups**\n")
	for _, g := range groups {
		fmt.Fprintf(&b, "• %s (%d members) `%s`", g.Name, len(g.Members), g.ID)
		if g.ID == current {
			b.WriteString(" ⭐")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSyncLog(runs []kitty.SyncRun) string {
	if len(runs) == 0 {
		return "No sync has run yet."
	}
	var b strings.Builder
	b.WriteString("🔄 **Recent syncs**\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "• %s: %d events, %d new penalties (%s – %s)\n",
			r.At.UTC().Format("02.01.2006 15:04"), r.EventsChecked, r.NewPenalties,
			r.From.Format("02.01."), r.To.Format("02.01.2006"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatHistory shows the newest entries of a player's audit trail.
func formatHistory(name string, events []event.Event, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗂️ **%s**\n", name)
	if len(events) == 0 {
		b.WriteString("No history.")
		return b.String()
	}
	if len(events) > historyLimit {
		fmt.Fprintf(&b, "(last %d of %d)\n", historyLimit, len(events))
		events = events[len(events)-historyLimit:]
	}
	for _, e := range events {
		fmt.Fprintf(&b, "%s %s\n", e.CreatedAt.UTC().Format("02.01.2006"), describeEvent(e, currency))
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeEvent(e event.Event, currency string) string {
	switch e.Type {
	case event.PenaltyAssigned:
		var d event.PenaltyAssignedData
		if err := json.Unmarshal(e.Data, &d); err == nil {
			amount, _ := decimal.NewFromString(d.Amount)
			return fmt.Sprintf("fined %s for %s", money.Format(amount, currency), d.Reason)
		}
	case event.PenaltiesPaid:
		var d event.PenaltiesPaidData
		if err := json.Unmarshal(e.Data, &d); err == nil {
			return fmt.Sprintf("paid %d penalties", d.Count)
		}
	}
	return string(e.Type)
}
