// Package schedule describes the group-scheduling service the kitty
// reconciles against: groups, their members, events and the members'
// responses to event invitations.
package schedule

import (
	"context"
	"strings"
	"time"
)

// Source is a read-only view of the scheduling service.
type Source interface {
	// Events returns the group's events starting at or after minStart and
	// ending at or before maxEnd, in the order the service reports them.
	Events(ctx context.Context, groupID string, minStart, maxEnd time.Time) ([]Event, error)
	// Group returns a single group with its member roster.
	Group(ctx context.Context, groupID string) (*Group, error)
	// Groups returns every group visible to the account.
	Groups(ctx context.Context) ([]Group, error)
}

// Event is a scheduled occurrence members are invited to.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"heading"`
	Start     time.Time `json:"startTimestamp"`
	Cancelled bool      `json:"cancelled"`
	// Expired reports that the response deadline has passed.
	Expired   bool      `json:"expired"`
	Responses Responses `json:"responses"`
}

// Responses holds the members who answered an invitation, by answer.
// Members invited but absent from every list have not replied.
type Responses struct {
	Accepted    []MemberRef `json:"acceptedIds"`
	Declined    []MemberRef `json:"declinedIds"`
	Waitlisted  []MemberRef `json:"waitinglistIds"`
	Unconfirmed []MemberRef `json:"unconfirmedIds"`
}

// Member is a person on a group roster.
type Member struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// DisplayName joins first and last name. It is empty when both are.
func (m Member) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(m.FirstName) + " " + strings.TrimSpace(m.LastName))
}

// Group is a team with its roster.
type Group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}

// Roster indexes the group's members by id.
func (g *Group) Roster() map[string]Member {
	roster := make(map[string]Member, len(g.Members))
	for _, m := range g.Members {
		if m.ID != "" {
			roster[m.ID] = m
		}
	}
	return roster
}
