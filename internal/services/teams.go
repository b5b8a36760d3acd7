package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/codejam/backend/internal/crypto"
	"github.com/codejam/backend/internal/db"
	"github.com/codejam/backend/internal/models"
)

const (
	maxLanguageCode = 18
	minTimezone     = -12
	maxTimezone     = 12
	maxTeamIDTries  = 10
)

var teamNamePattern = regexp.MustCompile(`^[A-Za-z0-9_ ]{1,25}$`)

// RosterBroadcaster republishes the roster after a team change.
type RosterBroadcaster interface {
	Broadcast(ctx context.Context) error
}

// TeamServiceOption configures a TeamService.
type TeamServiceOption func(*TeamService)

// WithIdentityInvalidation registers a hook called with every member whose
// registration or team changed.
func WithIdentityInvalidation(forget func(memberID int64)) TeamServiceOption {
	return func(s *TeamService) {
		s.forget = forget
	}
}

// WithTeamInvalidation registers a hook called with every deleted team.
func WithTeamInvalidation(forget func(teamID int64)) TeamServiceOption {
	return func(s *TeamService) {
		s.forgetTeam = forget
	}
}

// TeamService manages teams and members on behalf of the chat bot. Every
// successful mutation triggers one roster broadcast.
type TeamService struct {
	sqlDB   *sql.DB
	queries *db.Queries
	invites *InviteGenerator
	roster  RosterBroadcaster
	forget  func(memberID int64)

	forgetTeam func(teamID int64)
}

func NewTeamService(sqlDB *sql.DB, queries *db.Queries, roster RosterBroadcaster, opts ...TeamServiceOption) *TeamService {
	s := &TeamService{
		sqlDB:   sqlDB,
		queries: queries,
		invites: NewInviteGenerator(queries),
		roster:  roster,
		forget:  func(int64) {},

		forgetTeam: func(int64) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterMember signs a member up for the jam.
func (s *TeamService) RegisterMember(ctx context.Context, req models.RegisterMemberRequest) (models.MemberResponse, error) {
	if req.MemberID <= 0 {
		return models.MemberResponse{}, fmt.Errorf("%w: member_id is required", ErrInvalid)
	}
	if err := validateLanguages(req.Languages); err != nil {
		return models.MemberResponse{}, err
	}
	if req.Timezone < minTimezone || req.Timezone > maxTimezone {
		return models.MemberResponse{}, fmt.Errorf("%w: timezone must be between %d and %d", ErrInvalid, minTimezone, maxTimezone)
	}

	member, err := s.queries.CreateMember(ctx, db.CreateMemberParams{
		ID:        req.MemberID,
		Languages: db.EncodeLanguages(req.Languages),
		Timezone:  int64(req.Timezone),
		Solo:      req.Solo,
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return models.MemberResponse{}, fmt.Errorf("%w: member %d is already registered", ErrConflict, req.MemberID)
		}
		return models.MemberResponse{}, fmt.Errorf("failed to create member: %w", err)
	}

	s.changed(ctx, member.ID)
	return memberResponse(member), nil
}

// CreateTeam creates a team owned by an already registered member and moves
// the owner into it. The plaintext webhook token is only returned here.
func (s *TeamService) CreateTeam(ctx context.Context, req models.CreateTeamRequest) (models.CreateTeamResponse, error) {
	name, err := normalizeTeamName(req.Name)
	if err != nil {
		return models.CreateTeamResponse{}, err
	}

	owner, err := s.queries.GetMember(ctx, req.Owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CreateTeamResponse{}, fmt.Errorf("%w: member %d", ErrNotFound, req.Owner)
		}
		return models.CreateTeamResponse{}, fmt.Errorf("failed to load owner: %w", err)
	}
	if owner.TeamID.Valid {
		return models.CreateTeamResponse{}, fmt.Errorf("%w: member %d is already in a team", ErrConflict, owner.ID)
	}
	if err := s.checkNameFree(ctx, name); err != nil {
		return models.CreateTeamResponse{}, err
	}

	teamID, err := s.newTeamID(ctx)
	if err != nil {
		return models.CreateTeamResponse{}, err
	}
	token, err := crypto.NewTeamToken()
	if err != nil {
		return models.CreateTeamResponse{}, fmt.Errorf("failed to generate team token: %w", err)
	}
	tokenHash, err := crypto.HashTeamToken(teamID, token)
	if err != nil {
		return models.CreateTeamResponse{}, fmt.Errorf("failed to hash team token: %w", err)
	}
	invite, err := s.invites.Generate(ctx)
	if err != nil {
		return models.CreateTeamResponse{}, err
	}

	err = s.withTx(ctx, func(q *db.Queries) error {
		if _, err := q.CreateTeam(ctx, db.CreateTeamParams{
			ID:        teamID,
			TokenHash: tokenHash,
			Invite:    invite,
			Name:      name,
			Owner:     owner.ID,
		}); err != nil {
			return err
		}
		return q.UpdateMemberTeam(ctx, db.UpdateMemberTeamParams{TeamID: validID(teamID), ID: owner.ID})
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return models.CreateTeamResponse{}, fmt.Errorf("%w: team name or owner already taken", ErrConflict)
		}
		return models.CreateTeamResponse{}, fmt.Errorf("failed to create team: %w", err)
	}

	s.changed(ctx, owner.ID)
	return models.CreateTeamResponse{TeamID: teamID, Name: name, Invite: invite, Token: token}, nil
}

// RenameTeam changes a team's display name.
func (s *TeamService) RenameTeam(ctx context.Context, teamID int64, newName string) (models.TeamResponse, error) {
	name, err := normalizeTeamName(newName)
	if err != nil {
		return models.TeamResponse{}, err
	}
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return models.TeamResponse{}, err
	}
	// Changing only the case of the current name is allowed.
	if !strings.EqualFold(team.Name, name) {
		if err := s.checkNameFree(ctx, name); err != nil {
			return models.TeamResponse{}, err
		}
	}

	if _, err := s.queries.UpdateTeamName(ctx, db.UpdateTeamNameParams{Name: name, ID: teamID}); err != nil {
		if db.IsUniqueViolation(err) {
			return models.TeamResponse{}, fmt.Errorf("%w: team name %q is taken", ErrConflict, name)
		}
		return models.TeamResponse{}, fmt.Errorf("failed to rename team: %w", err)
	}

	team.Name = name
	s.changed(ctx)
	return teamResponse(team), nil
}

// DeleteTeam removes a team; its members stay registered without a team.
func (s *TeamService) DeleteTeam(ctx context.Context, teamID int64) error {
	err := s.withTx(ctx, func(q *db.Queries) error {
		result, err := q.DeleteTeam(ctx, teamID)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: team %d", ErrNotFound, teamID)
		}
		return fmt.Errorf("failed to delete team: %w", err)
	}

	s.forgetTeam(teamID)
	s.changed(ctx)
	return nil
}

// JoinTeam moves a team-less member into the team holding invite.
func (s *TeamService) JoinTeam(ctx context.Context, memberID int64, invite string) (models.MemberResponse, error) {
	member, err := s.getMember(ctx, memberID)
	if err != nil {
		return models.MemberResponse{}, err
	}
	if member.TeamID.Valid {
		return models.MemberResponse{}, fmt.Errorf("%w: member %d is already in a team", ErrConflict, memberID)
	}

	team, err := s.queries.GetTeamByInvite(ctx, strings.TrimSpace(invite))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MemberResponse{}, fmt.Errorf("%w: invite", ErrNotFound)
		}
		return models.MemberResponse{}, fmt.Errorf("failed to look up invite: %w", err)
	}

	if err := s.queries.UpdateMemberTeam(ctx, db.UpdateMemberTeamParams{TeamID: validID(team.ID), ID: memberID}); err != nil {
		return models.MemberResponse{}, fmt.Errorf("failed to join team: %w", err)
	}

	member.TeamID = validID(team.ID)
	s.changed(ctx, memberID)
	return memberResponse(member), nil
}

// LeaveTeam removes a member from their team. When the owner leaves,
// ownership passes to the member with the lowest id; a team left empty is
// deleted.
func (s *TeamService) LeaveTeam(ctx context.Context, memberID int64) (models.MemberResponse, error) {
	member, err := s.getMember(ctx, memberID)
	if err != nil {
		return models.MemberResponse{}, err
	}
	if !member.TeamID.Valid {
		return models.MemberResponse{}, fmt.Errorf("%w: member %d is not in a team", ErrInvalid, memberID)
	}
	teamID := member.TeamID.Int64

	deleted := false
	err = s.withTx(ctx, func(q *db.Queries) error {
		if err := q.UpdateMemberTeam(ctx, db.UpdateMemberTeamParams{ID: memberID}); err != nil {
			return err
		}
		team, err := q.GetTeamByID(ctx, teamID)
		if err != nil {
			return err
		}
		if team.Owner != memberID {
			return nil
		}
		remaining, err := q.ListTeamMembers(ctx, teamID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			_, err := q.DeleteTeam(ctx, teamID)
			deleted = err == nil
			return err
		}
		return q.UpdateTeamOwner(ctx, db.UpdateTeamOwnerParams{Owner: remaining[0].ID, ID: teamID})
	})
	if err != nil {
		return models.MemberResponse{}, fmt.Errorf("failed to leave team: %w", err)
	}

	if deleted {
		s.forgetTeam(teamID)
	}
	member.TeamID = sql.NullInt64{}
	s.changed(ctx, memberID)
	return memberResponse(member), nil
}

// changed invalidates cached identities and rebroadcasts the roster. The
// mutation is already committed, so a failed broadcast is only logged.
func (s *TeamService) changed(ctx context.Context, memberIDs ...int64) {
	for _, id := range memberIDs {
		s.forget(id)
	}
	if err := s.roster.Broadcast(ctx); err != nil {
		slog.ErrorContext(ctx, "roster broadcast after team change failed", "error", err)
	}
}

func (s *TeamService) withTx(ctx context.Context, fn func(q *db.Queries) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(s.queries.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *TeamService) getTeam(ctx context.Context, teamID int64) (db.Team, error) {
	team, err := s.queries.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.Team{}, fmt.Errorf("%w: team %d", ErrNotFound, teamID)
		}
		return db.Team{}, fmt.Errorf("failed to load team: %w", err)
	}
	return team, nil
}

func (s *TeamService) getMember(ctx context.Context, memberID int64) (db.Member, error) {
	member, err := s.queries.GetMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.Member{}, fmt.Errorf("%w: member %d", ErrNotFound, memberID)
		}
		return db.Member{}, fmt.Errorf("failed to load member: %w", err)
	}
	return member, nil
}

func (s *TeamService) checkNameFree(ctx context.Context, name string) error {
	n, err := s.queries.TeamNameExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check team name: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: team name %q is taken", ErrConflict, name)
	}
	return nil
}

func (s *TeamService) newTeamID(ctx context.Context) (int64, error) {
	for i := 0; i < maxTeamIDTries; i++ {
		id, err := crypto.NewTeamID()
		if err != nil {
			return 0, fmt.Errorf("failed to generate team id: %w", err)
		}
		n, err := s.queries.TeamIDExists(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to check team id: %w", err)
		}
		if n == 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("failed to generate unique team id after %d attempts", maxTeamIDTries)
}

// normalizeTeamName trims and validates a team name. "null" is reserved for
// the no-team roster group.
func normalizeTeamName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !teamNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: team name must be 1-25 letters, digits, spaces or underscores", ErrInvalid)
	}
	if strings.EqualFold(name, models.NoTeamKey) {
		return "", fmt.Errorf("%w: team name %q is reserved", ErrInvalid, name)
	}
	return name, nil
}

func validateLanguages(codes []int) error {
	for _, code := range codes {
		if code < 0 || code > maxLanguageCode {
			return fmt.Errorf("%w: unknown language code %d", ErrInvalid, code)
		}
	}
	return nil
}

func validID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: true}
}

func teamResponse(t db.Team) models.TeamResponse {
	return models.TeamResponse{TeamID: t.ID, Name: t.Name, Invite: t.Invite, Owner: t.Owner}
}

func memberResponse(m db.Member) models.MemberResponse {
	languages, err := m.LanguageCodes()
	if err != nil {
		languages = []int{}
	}
	resp := models.MemberResponse{
		MemberID:  m.ID,
		Languages: languages,
		Timezone:  int(m.Timezone),
		Solo:      m.Solo,
	}
	if m.TeamID.Valid {
		id := m.TeamID.Int64
		resp.TeamID = &id
	}
	return resp
}
