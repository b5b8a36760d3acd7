package models

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Commit feed
type CommitEvent struct {
	Team         TeamRef         `json:"team"`
	Sender       Sender          `json:"sender"`
	Commits      []CommitSummary `json:"commits"`
	CommitLength int             `json:"commit_length"` // total commits in the push, before truncation
}

type TeamRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Sender struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type CommitSummary struct {
	Author  string `json:"author"`
	Message string `json:"message"`
}

// Roster feed

// NoTeamKey groups members that have not joined a team.
const NoTeamKey = "null"

type RosterMember struct {
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	Languages []int  `json:"languages"`
	Timezone  int    `json:"timezone"` // UTC offset in hours
	Solo      bool   `json:"solo"`
}

// Roster maps team display names to their members. Keys keep insertion order
// when serialized.
type Roster struct {
	teams *orderedmap.OrderedMap[string, []RosterMember]
}

func NewRoster() *Roster {
	return &Roster{teams: orderedmap.New[string, []RosterMember]()}
}

// Add appends members under a team name.
func (r *Roster) Add(team string, members ...RosterMember) {
	existing, _ := r.teams.Get(team)
	r.teams.Set(team, append(existing, members...))
}

// Members returns the members listed under team.
func (r *Roster) Members(team string) ([]RosterMember, bool) {
	return r.teams.Get(team)
}

// Teams returns the team keys in serialization order.
func (r *Roster) Teams() []string {
	keys := make([]string, 0, r.teams.Len())
	for pair := r.teams.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (r *Roster) MarshalJSON() ([]byte, error) {
	return r.teams.MarshalJSON()
}

// Team administration
type CreateTeamRequest struct {
	Name  string `json:"name"`
	Owner int64  `json:"owner"`
}

type CreateTeamResponse struct {
	TeamID int64  `json:"team_id"`
	Name   string `json:"name"`
	Invite string `json:"invite"`
	Token  string `json:"token"` // returned once; only a hash is stored
}

type RenameTeamRequest struct {
	Name string `json:"name"`
}

type RegisterMemberRequest struct {
	MemberID  int64 `json:"member_id"`
	Languages []int `json:"languages"`
	Timezone  int   `json:"timezone"`
	Solo      bool  `json:"solo"`
}

type SetMemberTeamRequest struct {
	Invite string `json:"invite,omitempty"` // empty means leave the current team
}

type TeamResponse struct {
	TeamID int64  `json:"team_id"`
	Name   string `json:"name"`
	Invite string `json:"invite"`
	Owner  int64  `json:"owner"`
}

type MemberResponse struct {
	MemberID  int64  `json:"member_id"`
	Languages []int  `json:"languages"`
	Timezone  int    `json:"timezone"`
	Solo      bool   `json:"solo"`
	TeamID    *int64 `json:"team_id"`
}

// Error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
