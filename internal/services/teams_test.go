package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/codejam/backend/internal/crypto"
	"github.com/codejam/backend/internal/database"
	"github.com/codejam/backend/internal/db"
	"github.com/codejam/backend/internal/models"
)

type countingRoster struct {
	broadcasts int
	err        error
}

func (c *countingRoster) Broadcast(ctx context.Context) error {
	c.broadcasts++
	return c.err
}

func newTeamFixture(t *testing.T) (*TeamService, *db.Queries, *countingRoster) {
	t.Helper()
	sqlDB, dialect, err := database.New(filepath.Join(t.TempDir(), "codejam.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.RunMigrations(sqlDB, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	queries := db.New(sqlDB, dialect)
	roster := &countingRoster{}
	return NewTeamService(sqlDB, queries, roster), queries, roster
}

func register(t *testing.T, svc *TeamService, id int64) {
	t.Helper()
	if _, err := svc.RegisterMember(context.Background(), models.RegisterMemberRequest{MemberID: id, Languages: []int{1}, Timezone: 1}); err != nil {
		t.Fatalf("RegisterMember(%d): %v", id, err)
	}
}

func TestRegisterMemberValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     models.RegisterMemberRequest
		wantErr error
	}{
		{"valid", models.RegisterMemberRequest{MemberID: 1, Languages: []int{0, 18}, Timezone: -12}, nil},
		{"missing id", models.RegisterMemberRequest{Timezone: 0}, ErrInvalid},
		{"bad language", models.RegisterMemberRequest{MemberID: 2, Languages: []int{19}}, ErrInvalid},
		{"negative language", models.RegisterMemberRequest{MemberID: 2, Languages: []int{-1}}, ErrInvalid},
		{"timezone too far east", models.RegisterMemberRequest{MemberID: 2, Timezone: 13}, ErrInvalid},
		{"duplicate", models.RegisterMemberRequest{MemberID: 1}, ErrConflict},
	}

	svc, _, _ := newTeamFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterMember(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RegisterMember error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateTeam(t *testing.T) {
	ctx := context.Background()
	svc, queries, roster := newTeamFixture(t)
	register(t, svc, 10)
	register(t, svc, 11)
	roster.broadcasts = 0

	resp, err := svc.CreateTeam(ctx, models.CreateTeamRequest{Name: "  Go Getters ", Owner: 10})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if resp.Name != "Go Getters" || resp.Invite == "" || resp.Token == "" {
		t.Errorf("CreateTeam = %+v", resp)
	}
	if roster.broadcasts != 1 {
		t.Errorf("roster broadcasts = %d, want 1", roster.broadcasts)
	}

	team, err := queries.GetTeamByID(ctx, resp.TeamID)
	if err != nil {
		t.Fatalf("GetTeamByID: %v", err)
	}
	if team.TokenHash == resp.Token {
		t.Error("token stored in plaintext")
	}
	if !crypto.VerifyTeamToken(team.ID, resp.Token, team.TokenHash) {
		t.Error("returned token does not verify against stored hash")
	}
	owner, _ := queries.GetMember(ctx, 10)
	if !owner.TeamID.Valid || owner.TeamID.Int64 != resp.TeamID {
		t.Errorf("owner team = %+v, want %d", owner.TeamID, resp.TeamID)
	}

	errTests := []struct {
		name    string
		req     models.CreateTeamRequest
		wantErr error
	}{
		{"duplicate name", models.CreateTeamRequest{Name: "go getters", Owner: 11}, ErrConflict},
		{"owner already in team", models.CreateTeamRequest{Name: "Other", Owner: 10}, ErrConflict},
		{"unregistered owner", models.CreateTeamRequest{Name: "Other", Owner: 99}, ErrNotFound},
		{"empty name", models.CreateTeamRequest{Name: "  ", Owner: 11}, ErrInvalid},
		{"too long", models.CreateTeamRequest{Name: "abcdefghijklmnopqrstuvwxyz", Owner: 11}, ErrInvalid},
		{"punctuation", models.CreateTeamRequest{Name: "Go!", Owner: 11}, ErrInvalid},
		{"reserved", models.CreateTeamRequest{Name: "NULL", Owner: 11}, ErrInvalid},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			before := roster.broadcasts
			if _, err := svc.CreateTeam(ctx, tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateTeam error = %v, want %v", err, tt.wantErr)
			}
			if roster.broadcasts != before {
				t.Error("failed mutation triggered a roster broadcast")
			}
		})
	}
}

func TestJoinAndLeaveTeam(t *testing.T) {
	ctx := context.Background()
	svc, queries, roster := newTeamFixture(t)
	for _, id := range []int64{10, 11, 12} {
		register(t, svc, id)
	}
	created, err := svc.CreateTeam(ctx, models.CreateTeamRequest{Name: "Gophers", Owner: 10})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	if _, err := svc.JoinTeam(ctx, 11, "not-an-invite-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("JoinTeam bad invite error = %v, want ErrNotFound", err)
	}
	if _, err := svc.JoinTeam(ctx, 99, created.Invite); !errors.Is(err, ErrNotFound) {
		t.Errorf("JoinTeam unknown member error = %v, want ErrNotFound", err)
	}

	roster.broadcasts = 0
	for _, id := range []int64{12, 11} {
		resp, err := svc.JoinTeam(ctx, id, created.Invite)
		if err != nil {
			t.Fatalf("JoinTeam(%d): %v", id, err)
		}
		if resp.TeamID == nil || *resp.TeamID != created.TeamID {
			t.Errorf("JoinTeam(%d) team = %v, want %d", id, resp.TeamID, created.TeamID)
		}
	}
	if roster.broadcasts != 2 {
		t.Errorf("roster broadcasts = %d, want 2", roster.broadcasts)
	}
	if _, err := svc.JoinTeam(ctx, 11, created.Invite); !errors.Is(err, ErrConflict) {
		t.Errorf("JoinTeam twice error = %v, want ErrConflict", err)
	}

	// Owner leaves: ownership passes to the lowest remaining member id.
	if _, err := svc.LeaveTeam(ctx, 10); err != nil {
		t.Fatalf("LeaveTeam(owner): %v", err)
	}
	team, err := queries.GetTeamByID(ctx, created.TeamID)
	if err != nil {
		t.Fatalf("GetTeamByID: %v", err)
	}
	if team.Owner != 11 {
		t.Errorf("owner = %d, want 11", team.Owner)
	}

	if _, err := svc.LeaveTeam(ctx, 10); !errors.Is(err, ErrInvalid) {
		t.Errorf("LeaveTeam without team error = %v, want ErrInvalid", err)
	}

	if _, err := svc.LeaveTeam(ctx, 12); err != nil {
		t.Fatalf("LeaveTeam(12): %v", err)
	}
	if _, err := svc.LeaveTeam(ctx, 11); err != nil {
		t.Fatalf("LeaveTeam(last owner): %v", err)
	}
	if n, _ := queries.TeamIDExists(ctx, created.TeamID); n != 0 {
		t.Error("expected empty team to be deleted")
	}
}

func TestRenameAndDeleteTeam(t *testing.T) {
	ctx := context.Background()
	svc, queries, roster := newTeamFixture(t)
	register(t, svc, 10)
	register(t, svc, 11)
	a, err := svc.CreateTeam(ctx, models.CreateTeamRequest{Name: "Alpha", Owner: 10})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if _, err := svc.CreateTeam(ctx, models.CreateTeamRequest{Name: "Beta", Owner: 11}); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	if _, err := svc.RenameTeam(ctx, a.TeamID, "beta"); !errors.Is(err, ErrConflict) {
		t.Errorf("RenameTeam to taken name error = %v, want ErrConflict", err)
	}
	if _, err := svc.RenameTeam(ctx, 12345, "Gamma"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RenameTeam unknown team error = %v, want ErrNotFound", err)
	}

	roster.broadcasts = 0
	resp, err := svc.RenameTeam(ctx, a.TeamID, "ALPHA")
	if err != nil {
		t.Fatalf("RenameTeam case change: %v", err)
	}
	if resp.Name != "ALPHA" || resp.Owner != 10 {
		t.Errorf("RenameTeam = %+v", resp)
	}
	if roster.broadcasts != 1 {
		t.Errorf("roster broadcasts = %d, want 1", roster.broadcasts)
	}

	if err := svc.DeleteTeam(ctx, a.TeamID); err != nil {
		t.Fatalf("DeleteTeam: %v", err)
	}
	if err := svc.DeleteTeam(ctx, a.TeamID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteTeam twice error = %v, want ErrNotFound", err)
	}
	owner, _ := queries.GetMember(ctx, 10)
	if owner.TeamID.Valid {
		t.Error("expected owner to be team-less after delete")
	}
	if roster.broadcasts != 2 {
		t.Errorf("roster broadcasts = %d, want 2", roster.broadcasts)
	}
}

func TestIdentityInvalidation(t *testing.T) {
	sqlDB, dialect, err := database.New(filepath.Join(t.TempDir(), "codejam.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var forgotten []int64
	svc := NewTeamService(sqlDB, db.New(sqlDB, dialect), &countingRoster{},
		WithIdentityInvalidation(func(id int64) { forgotten = append(forgotten, id) }))
	register(t, svc, 42)

	if len(forgotten) != 1 || forgotten[0] != 42 {
		t.Errorf("forgotten = %v, want [42]", forgotten)
	}
}

func TestBroadcastFailureDoesNotFailMutation(t *testing.T) {
	svc, _, roster := newTeamFixture(t)
	roster.err = errors.New("publish failed")
	if _, err := svc.RegisterMember(context.Background(), models.RegisterMemberRequest{MemberID: 5}); err != nil {
		t.Fatalf("RegisterMember: %v", err)
	}
}

func TestTeamInvalidationOnDelete(t *testing.T) {
	sqlDB, dialect, err := database.New(filepath.Join(t.TempDir(), "codejam.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var forgotten []int64
	svc := NewTeamService(sqlDB, db.New(sqlDB, dialect), &countingRoster{},
		WithTeamInvalidation(func(id int64) { forgotten = append(forgotten, id) }))
	ctx := context.Background()
	register(t, svc, 1)
	register(t, svc, 2)

	deletedTeam, err := svc.CreateTeam(ctx, models.CreateTeamRequest{Name: "Deleted", Owner: 1})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if err := svc.DeleteTeam(ctx, deletedTeam.TeamID); err != nil {
		t.Fatalf("DeleteTeam: %v", err)
	}

	emptied, err := svc.CreateTeam(ctx, models.CreateTeamRequest{Name: "Emptied", Owner: 2})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if _, err := svc.LeaveTeam(ctx, 2); err != nil {
		t.Fatalf("LeaveTeam: %v", err)
	}

	want := []int64{deletedTeam.TeamID, emptied.TeamID}
	if len(forgotten) != len(want) || forgotten[0] != want[0] || forgotten[1] != want[1] {
		t.Errorf("forgotten teams = %v, want %v", forgotten, want)
	}
}
