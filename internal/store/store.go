package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by lookups addressed by id when no row exists.
// Substring searches report a miss as a nil result instead.
var ErrNotFound = errors.New("not found")

// Player is a member of the team who can be fined.
type Player struct {
	ID   string `db:"id"`
	Name string `db:"name"`
	// ExternalID is the member id in the scheduling service, if linked.
	ExternalID *string   `db:"external_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// Linked reports whether the player is tied to a scheduling-service member.
func (p Player) Linked() bool {
	return p.ExternalID != nil && *p.ExternalID != ""
}

// CatalogEntry is a named, reusable penalty template.
type CatalogEntry struct {
	ID        string          `db:"id"`
	Name      string          `db:"name"`
	Amount    decimal.Decimal `db:"amount"`
	CreatedAt time.Time       `db:"created_at"`
}

// Penalty is a single fine.
type Penalty struct {
	ID       string          `db:"id"`
	PlayerID string          `db:"player_id"`
	Reason   string          `db:"reason"`
	Amount   decimal.Decimal `db:"amount"`
	Paid     bool            `db:"paid"`
	// EventID is set only for penalties issued by a sync.
	EventID   *string    `db:"event_id"`
	CreatedAt time.Time  `db:"created_at"`
	PaidAt    *time.Time `db:"paid_at"`
}

// PenaltyView is a penalty joined with its player's name.
type PenaltyView struct {
	Penalty
	PlayerName string `db:"player_name"`
}

// PenaltyFilter narrows PenaltyRepository.List. Zero value lists everything.
type PenaltyFilter struct {
	PlayerID   string
	OnlyUnpaid bool
}

// OpenSummary aggregates a player's unpaid penalties.
type OpenSummary struct {
	PlayerID   string          `db:"player_id"`
	PlayerName string          `db:"player_name"`
	Count      int             `db:"open_count"`
	Sum        decimal.Decimal `db:"open_sum"`
}

// PlayerRepository defines player persistence operations.
type PlayerRepository interface {
	// Upsert resolves a player by external id, then by case-insensitive
	// name, attaching externalID to a name match that lacks one. A new
	// player is created when neither matches. An empty externalID means
	// none.
	Upsert(ctx context.Context, name, externalID string) (*Player, error)
	// Find returns the first player whose name contains substr, ignoring
	// case, or nil when none does.
	Find(ctx context.Context, substr string) (*Player, error)
	GetByID(ctx context.Context, id string) (*Player, error)
	// List returns all players sorted by name.
	List(ctx context.Context) ([]Player, error)
}

// CatalogRepository defines penalty catalog persistence operations.
type CatalogRepository interface {
	// Upsert creates the entry or overwrites the amount of an existing
	// entry with the same name.
	Upsert(ctx context.Context, name string, amount decimal.Decimal) (*CatalogEntry, error)
	// Remove deletes the entry whose name equals name, ignoring case.
	Remove(ctx context.Context, name string) (bool, error)
	// Find returns the first entry whose name contains substr, ignoring
	// case, or nil when none does.
	Find(ctx context.Context, substr string) (*CatalogEntry, error)
	// List returns all entries ordered by amount, then name.
	List(ctx context.Context) ([]CatalogEntry, error)
}

// PenaltyRepository defines penalty persistence operations.
type PenaltyRepository interface {
	// Add inserts a penalty unconditionally. An empty eventID stores NULL.
	Add(ctx context.Context, playerID, reason string, amount decimal.Decimal, eventID string) (*Penalty, error)
	// AddForEvent inserts a penalty unless one already exists for
	// (playerID, eventID). The boolean reports whether a row was inserted.
	AddForEvent(ctx context.Context, playerID, reason string, amount decimal.Decimal, eventID string) (*Penalty, bool, error)
	// Exists reports whether a penalty exists for (playerID, eventID).
	Exists(ctx context.Context, playerID, eventID string) (bool, error)
	// MarkPaid marks every unpaid penalty of the player as paid and
	// returns how many changed.
	MarkPaid(ctx context.Context, playerID string) (int64, error)
	// List returns penalties ordered by player name, newest first.
	List(ctx context.Context, f PenaltyFilter) ([]PenaltyView, error)
	// OpenByPlayer summarizes unpaid penalties per player, largest sum first.
	OpenByPlayer(ctx context.Context) ([]OpenSummary, error)
	// TotalOpen sums all unpaid penalties.
	TotalOpen(ctx context.Context) (decimal.Decimal, error)
}

// ContainsPattern turns a user search term into a LIKE pattern matching
// any value that contains it. LIKE wildcards in the term are escaped with
// a backslash, so queries must declare ESCAPE '\'.
func ContainsPattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(term)) + "%"
}
