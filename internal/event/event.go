package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	PenaltyAssigned Type = "penalty.assigned"
	PenaltiesPaid   Type = "penalty.paid"

	CatalogUpdated Type = "catalog.updated"
	CatalogRemoved Type = "catalog.removed"

	SyncCompleted Type = "sync.completed"
)

// Event is one entry of the ledger's append-only audit log.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// PenaltyAssignedData is the payload for PenaltyAssigned events.
type PenaltyAssignedData struct {
	PenaltyID  string `json:"penalty_id"`
	PlayerID   string `json:"player_id"`
	Reason     string `json:"reason"`
	Amount     string `json:"amount"`
	AssignedBy string `json:"assigned_by,omitempty"`
}

// PenaltiesPaidData is the payload for PenaltiesPaid events.
type PenaltiesPaidData struct {
	PlayerID string `json:"player_id"`
	Count    int64  `json:"count"`
	MarkedBy string `json:"marked_by,omitempty"`
}

// CatalogData is the payload for catalog events.
type CatalogData struct {
	Name   string `json:"name"`
	Amount string `json:"amount,omitempty"`
}

// SyncCompletedData is the payload for SyncCompleted events.
type SyncCompletedData struct {
	GroupID          string    `json:"group_id"`
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
	EventsChecked    int       `json:"events_checked"`
	SkippedExpired   int       `json:"skipped_expired"`
	SkippedCancelled int       `json:"skipped_cancelled"`
	NewPenalties     int       `json:"new_penalties"`
	PlayersSynced    int       `json:"players_synced"`
}
