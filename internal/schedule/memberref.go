package schedule

import (
	"bytes"
	"encoding/json"
)

// RefKind tells how a response entry identified its member.
type RefKind uint8

const (
	// RefInvalid is an entry that names no member. It is ignored.
	RefInvalid RefKind = iota
	// RefRaw is a bare string or number id.
	RefRaw
	// RefStructured is an object carrying an "id" field.
	RefStructured
)

func (k RefKind) String() string {
	switch k {
	case RefRaw:
		return "raw"
	case RefStructured:
		return "structured"
	default:
		return "invalid"
	}
}

// MemberRef is one entry of a response list. The service has sent both
// bare ids and objects, so both are accepted; anything else decodes to an
// invalid ref rather than failing the whole payload.
type MemberRef struct {
	Kind RefKind
	id   string
}

// Raw returns a ref holding a bare id.
func Raw(id string) MemberRef { return newRef(RefRaw, id) }

// Structured returns a ref decoded from an object with an id field.
func Structured(id string) MemberRef { return newRef(RefStructured, id) }

func newRef(kind RefKind, id string) MemberRef {
	if id == "" {
		return MemberRef{}
	}
	return MemberRef{Kind: kind, id: id}
}

// ID returns the member id and whether the ref is valid.
func (r MemberRef) ID() (string, bool) {
	if r.Kind == RefInvalid {
		return "", false
	}
	return r.id, true
}

// MarshalJSON encodes raw refs as strings and structured refs as objects.
func (r MemberRef) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RefRaw:
		return json.Marshal(r.id)
	case RefStructured:
		return json.Marshal(struct {
			ID string `json:"id"`
		}{r.id})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON never returns an error. Unrecognised shapes yield RefInvalid.
func (r *MemberRef) UnmarshalJSON(data []byte) error {
	*r = MemberRef{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	if data[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil
		}
		if id, ok := scalarID(obj["id"]); ok {
			*r = Structured(id)
		}
		return nil
	}

	if id, ok := scalarID(data); ok {
		*r = Raw(id)
	}
	return nil
}

// scalarID decodes a JSON string or number into its textual form.
func scalarID(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	switch c := data[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return "", false
		}
		return n.String(), true
	default:
		return "", false
	}
}
