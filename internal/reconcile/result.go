package reconcile

import "time"

// Result is the report of one reconciliation run. Details lists every
// penalty the run issued; trimming it for display is up to the caller.
type Result struct {
	GroupID string    `json:"group_id"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`

	EventsChecked    int      `json:"events_checked"`
	SkippedExpired   int      `json:"skipped_expired"`
	SkippedCancelled int      `json:"skipped_cancelled"`
	NewPenalties     int      `json:"new_penalties"`
	PlayersSynced    int      `json:"players_synced"`
	Details          []string `json:"details"`
}

func newResult(groupID string, from, to time.Time) *Result {
	return &Result{GroupID: groupID, From: from, To: to, Details: []string{}}
}

func (r *Result) checked()       { r.EventsChecked++ }
func (r *Result) skipCancelled() { r.SkippedCancelled++ }

// skipExpired counts an event whose response deadline is still open.
func (r *Result) skipExpired() { r.SkippedExpired++ }
func (r *Result) synced()      { r.PlayersSynced++ }

func (r *Result) issued(detail string) {
	r.NewPenalties++
	r.Details = append(r.Details, detail)
}

// Summary returns at most limit detail lines and how many were left out.
// A limit of zero or less returns all of them.
func (r *Result) Summary(limit int) (lines []string, more int) {
	if limit <= 0 || len(r.Details) <= limit {
		return r.Details, 0
	}
	return r.Details[:limit], len(r.Details) - limit
}
