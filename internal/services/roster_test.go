package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/codejam/backend/internal/broker"
	"github.com/codejam/backend/internal/chat"
	"github.com/codejam/backend/internal/db"
	"github.com/codejam/backend/internal/models"
)

type fakeMembers struct {
	rows  []db.MemberWithTeam
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeMembers) ListMembersWithTeams(ctx context.Context) ([]db.MemberWithTeam, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.rows, f.err
}

type fakeIdentities map[int64]error

func (f fakeIdentities) ResolveIdentity(ctx context.Context, memberID int64) (chat.Identity, error) {
	if err := f[memberID]; err != nil {
		return chat.Identity{}, err
	}
	return chat.Identity{Name: "user" + string(rune('0'+memberID)), Avatar: "avatar"}, nil
}

func memberRow(id int64, teamID int64, teamName string) db.MemberWithTeam {
	row := db.MemberWithTeam{Member: db.Member{ID: id, Languages: "[1]", Timezone: 2}}
	if teamName != "" {
		row.TeamID = sql.NullInt64{Int64: teamID, Valid: true}
		row.TeamName = sql.NullString{String: teamName, Valid: true}
	}
	return row
}

func TestRosterBuildGroupsAndOrders(t *testing.T) {
	members := &fakeMembers{rows: []db.MemberWithTeam{
		memberRow(1, 0, ""),
		memberRow(2, 20, "zebras"),
		memberRow(3, 10, "Aardvarks"),
		memberRow(4, 20, "zebras"),
		memberRow(5, 10, "Aardvarks"),
		memberRow(6, 0, ""),
	}}
	identities := fakeIdentities{
		4: chat.ErrNotInGuild,
		6: errors.New("discord unavailable"),
	}
	svc := NewRosterService(members, identities, &recordingPublisher{})

	roster, err := svc.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if diff := cmp.Diff([]string{"Aardvarks", "zebras", models.NoTeamKey}, roster.Teams()); diff != "" {
		t.Errorf("team order mismatch (-want +got):\n%s", diff)
	}

	member := func(name, avatar string) models.RosterMember {
		return models.RosterMember{Name: name, Avatar: avatar, Languages: []int{1}, Timezone: 2}
	}
	want := map[string][]models.RosterMember{
		"Aardvarks":      {member("user3", "avatar"), member("user5", "avatar")},
		"zebras":         {member("user2", "avatar")},
		models.NoTeamKey: {member("user1", "avatar"), member("6", "")},
	}
	for team, wantMembers := range want {
		got, _ := roster.Members(team)
		if diff := cmp.Diff(wantMembers, got); diff != "" {
			t.Errorf("members of %q mismatch (-want +got):\n%s", team, diff)
		}
	}
}

func TestRosterBuildEmpty(t *testing.T) {
	svc := NewRosterService(&fakeMembers{}, fakeIdentities{}, &recordingPublisher{})
	roster, err := svc.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data, err := roster.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("empty roster = %s, want {}", data)
	}
}

func TestRosterBuildStoreError(t *testing.T) {
	svc := NewRosterService(&fakeMembers{err: errors.New("db down")}, fakeIdentities{}, &recordingPublisher{})
	if _, err := svc.Build(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRosterBuildCoalescesConcurrentCalls(t *testing.T) {
	members := &fakeMembers{rows: []db.MemberWithTeam{memberRow(1, 0, "")}, gate: make(chan struct{})}
	svc := NewRosterService(members, fakeIdentities{}, &recordingPublisher{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Build(context.Background()); err != nil {
				t.Errorf("Build: %v", err)
			}
		}()
	}

	// Let the callers pile up behind the first build.
	time.Sleep(50 * time.Millisecond)
	close(members.gate)
	wg.Wait()

	if got := members.calls.Load(); got != 1 {
		t.Errorf("store calls = %d, want 1", got)
	}
}

func TestRosterBroadcastPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewRosterService(&fakeMembers{rows: []db.MemberWithTeam{memberRow(1, 7, "Gophers")}}, fakeIdentities{}, pub)

	if err := svc.Broadcast(context.Background()); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if got := pub.count(broker.FeedRoster); got != 1 {
		t.Fatalf("roster broadcasts = %d, want 1", got)
	}

	var got map[string][]models.RosterMember
	pub.last(t, &got)
	if len(got["Gophers"]) != 1 || got["Gophers"][0].Name != "user1" {
		t.Errorf("published roster = %+v", got)
	}
}

func TestRosterBroadcastPublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("relay down")}
	svc := NewRosterService(&fakeMembers{}, fakeIdentities{}, pub)
	if err := svc.Broadcast(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// stagedMembers snapshots its rows when a read starts and holds the first
// read until release is closed.
type stagedMembers struct {
	mu      sync.Mutex
	rows    []db.MemberWithTeam
	calls   int
	started chan struct{}
	release chan struct{}
}

func (s *stagedMembers) ListMembersWithTeams(ctx context.Context) ([]db.MemberWithTeam, error) {
	s.mu.Lock()
	rows := append([]db.MemberWithTeam(nil), s.rows...)
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	if first {
		close(s.started)
		<-s.release
	}
	return rows, nil
}

func (s *stagedMembers) set(rows ...db.MemberWithTeam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

func TestRosterBroadcastDoesNotReuseEarlierBuild(t *testing.T) {
	members := &stagedMembers{
		rows:    []db.MemberWithTeam{memberRow(1, 0, "")},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	pub := &recordingPublisher{}
	svc := NewRosterService(members, fakeIdentities{}, pub)

	// A feed reader starts a build before member 1 joins a team.
	readerDone := make(chan *models.Roster)
	go func() {
		roster, err := svc.Build(context.Background())
		if err != nil {
			t.Errorf("Build: %v", err)
		}
		readerDone <- roster
	}()
	<-members.started

	members.set(memberRow(1, 7, "alpha"))
	if err := svc.Broadcast(context.Background()); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	var got map[string][]models.RosterMember
	pub.last(t, &got)
	if len(got["alpha"]) != 1 || got[models.NoTeamKey] != nil {
		t.Errorf("broadcast roster = %+v, want member 1 in alpha", got)
	}

	close(members.release)
	stale := <-readerDone
	if teams := stale.Teams(); len(teams) != 1 || teams[0] != models.NoTeamKey {
		t.Errorf("reader roster teams = %v, want [%s]", teams, models.NoTeamKey)
	}
	if members.calls != 2 {
		t.Errorf("store reads = %d, want 2", members.calls)
	}
}
