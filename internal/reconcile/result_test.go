package reconcile_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jensholdgaard/penalty-kitty/internal/reconcile"
)

func TestResult_Summary(t *testing.T) {
	details := make([]string, 25)
	for i := range details {
		details[i] = fmt.Sprintf("line %d", i)
	}

	tests := []struct {
		name      string
		details   []string
		limit     int
		wantLines int
		wantMore  int
	}{
		{"under limit", details[:5], 20, 5, 0},
		{"at limit", details[:20], 20, 20, 0},
		{"over limit", details, 20, 20, 5},
		{"no limit", details, 0, 25, 0},
		{"empty", nil, 20, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &reconcile.Result{Details: tt.details}
			lines, more := r.Summary(tt.limit)
			if len(lines) != tt.wantLines || more != tt.wantMore {
				t.Errorf("Summary(%d) = %d lines, %d more; want %d, %d", tt.limit, len(lines), more, tt.wantLines, tt.wantMore)
			}
			if len(r.Details) != len(tt.details) {
				t.Errorf("Summary trimmed the full detail list")
			}
		})
	}
}

func TestResult_JSONShape(t *testing.T) {
	r := reconcile.Result{EventsChecked: 3, SkippedExpired: 1, NewPenalties: 2, PlayersSynced: 4, Details: []string{"x"}}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"events_checked", "skipped_expired", "new_penalties", "players_synced", "details"} {
		if _, ok := got[key]; !ok {
			t.Errorf("report is missing %q", key)
		}
	}
	if diff := cmp.Diff([]any{"x"}, got["details"]); diff != "" {
		t.Errorf("details mismatch (-want +got):\n%s", diff)
	}
}
