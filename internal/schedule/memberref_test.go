package schedule_test

import (
	"encoding/json"
	"testing"

	"github.com/jensholdgaard/penalty-kitty/internal/schedule"
)

func TestMemberRef_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind schedule.RefKind
		wantID   string
	}{
		{"string id", `"M1"`, schedule.RefRaw, "M1"},
		{"number id", `42`, schedule.RefRaw, "42"},
		{"object with string id", `{"id":"M2","name":"x"}`, schedule.RefStructured, "M2"},
		{"object with number id", `{"id":7}`, schedule.RefStructured, "7"},
		{"empty string", `""`, schedule.RefInvalid, ""},
		{"null", `null`, schedule.RefInvalid, ""},
		{"bool", `true`, schedule.RefInvalid, ""},
		{"array", `["M1"]`, schedule.RefInvalid, ""},
		{"object without id", `{"name":"x"}`, schedule.RefInvalid, ""},
		{"object with empty id", `{"id":""}`, schedule.RefInvalid, ""},
		{"object with nested id", `{"id":{"v":"M1"}}`, schedule.RefInvalid, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ref schedule.MemberRef
			if err := json.Unmarshal([]byte(tt.input), &ref); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v, want nil", tt.input, err)
			}
			if ref.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", ref.Kind, tt.wantKind)
			}
			id, ok := ref.ID()
			if ok != (tt.wantKind != schedule.RefInvalid) {
				t.Errorf("ID() ok = %v for kind %s", ok, ref.Kind)
			}
			if id != tt.wantID {
				t.Errorf("ID() = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestMemberRef_MixedList(t *testing.T) {
	var refs []schedule.MemberRef
	input := `["A", {"id":"B"}, null, 5, false, {"x":1}, {"id":"C"}]`
	if err := json.Unmarshal([]byte(input), &refs); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	var ids []string
	for _, r := range refs {
		if id, ok := r.ID(); ok {
			ids = append(ids, id)
		}
	}
	want := []string{"A", "B", "5", "C"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestMemberRef_MarshalJSON(t *testing.T) {
	tests := []struct {
		ref  schedule.MemberRef
		want string
	}{
		{schedule.Raw("A"), `"A"`},
		{schedule.Structured("B"), `{"id":"B"}`},
		{schedule.Raw(""), `null`},
		{schedule.MemberRef{}, `null`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.ref)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if string(got) != tt.want {
			t.Errorf("Marshal(%v) = %s, want %s", tt.ref, got, tt.want)
		}
	}
}
