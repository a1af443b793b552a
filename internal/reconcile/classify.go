package reconcile

import (
	"slices"

	"github.com/jensholdgaard/penalty-kitty/internal/schedule"
)

// IDSet is a set of member ids.
type IDSet map[string]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id. Empty ids are ignored.
func (s IDSet) Add(id string) {
	if id != "" {
		s[id] = struct{}{}
	}
}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Responded collects every valid id from the four response lists.
func Responded(r schedule.Responses) IDSet {
	s := make(IDSet)
	for _, list := range [][]schedule.MemberRef{r.Accepted, r.Declined, r.Waitlisted, r.Unconfirmed} {
		for _, ref := range list {
			if id, ok := ref.ID(); ok {
				s.Add(id)
			}
		}
	}
	return s
}

// Classify returns the invited members who appear in none of the response
// lists.
func Classify(r schedule.Responses, invited IDSet) IDSet {
	responded := Responded(r)
	noReply := make(IDSet)
	for id := range invited {
		if !responded.Has(id) {
			noReply.Add(id)
		}
	}
	return noReply
}
