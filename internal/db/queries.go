package db

import (
	"context"
	"database/sql"
)

const createTeam = `
INSERT INTO teams (team_id, token_hash, invite, name, owner)
VALUES (?, ?, ?, ?, ?)
`

type CreateTeamParams struct {
	ID        int64
	TokenHash string
	Invite    string
	Name      string
	Owner     int64
}

func (q *Queries) CreateTeam(ctx context.Context, arg CreateTeamParams) (Team, error) {
	_, err := q.db.ExecContext(ctx, q.rebind(createTeam),
		arg.ID,
		arg.TokenHash,
		arg.Invite,
		arg.Name,
		arg.Owner,
	)
	if err != nil {
		return Team{}, err
	}
	return Team(arg), nil
}

const getTeamByID = `
SELECT team_id, token_hash, invite, name, owner FROM teams WHERE team_id = ?
`

func (q *Queries) GetTeamByID(ctx context.Context, id int64) (Team, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(getTeamByID), id)
	var t Team
	err := row.Scan(&t.ID, &t.TokenHash, &t.Invite, &t.Name, &t.Owner)
	return t, err
}

const getTeamByInvite = `
SELECT team_id, token_hash, invite, name, owner FROM teams WHERE invite = ?
`

func (q *Queries) GetTeamByInvite(ctx context.Context, invite string) (Team, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(getTeamByInvite), invite)
	var t Team
	err := row.Scan(&t.ID, &t.TokenHash, &t.Invite, &t.Name, &t.Owner)
	return t, err
}

const teamNameExists = `
SELECT COUNT(*) FROM teams WHERE lower(name) = lower(?)
`

func (q *Queries) TeamNameExists(ctx context.Context, name string) (int64, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(teamNameExists), name)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const inviteExists = `
SELECT COUNT(*) FROM teams WHERE invite = ?
`

func (q *Queries) InviteExists(ctx context.Context, invite string) (int64, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(inviteExists), invite)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const teamIDExists = `
SELECT COUNT(*) FROM teams WHERE team_id = ?
`

func (q *Queries) TeamIDExists(ctx context.Context, id int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(teamIDExists), id)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const updateTeamName = `
UPDATE teams SET name = ? WHERE team_id = ?
`

type UpdateTeamNameParams struct {
	Name string
	ID   int64
}

func (q *Queries) UpdateTeamName(ctx context.Context, arg UpdateTeamNameParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.rebind(updateTeamName), arg.Name, arg.ID)
}

const updateTeamOwner = `
UPDATE teams SET owner = ? WHERE team_id = ?
`

type UpdateTeamOwnerParams struct {
	Owner int64
	ID    int64
}

func (q *Queries) UpdateTeamOwner(ctx context.Context, arg UpdateTeamOwnerParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(updateTeamOwner), arg.Owner, arg.ID)
	return err
}

const clearTeamMembers = `
UPDATE members SET team_id = NULL WHERE team_id = ?
`

const deleteTeam = `
DELETE FROM teams WHERE team_id = ?
`

// DeleteTeam detaches every member from the team and removes it. Run it
// inside a transaction via WithTx.
func (q *Queries) DeleteTeam(ctx context.Context, id int64) (sql.Result, error) {
	if _, err := q.db.ExecContext(ctx, q.rebind(clearTeamMembers), id); err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, q.rebind(deleteTeam), id)
}

const createMember = `
INSERT INTO members (member_id, languages, timezone, solo, team_id)
VALUES (?, ?, ?, ?, ?)
`

type CreateMemberParams struct {
	ID        int64
	Languages string
	Timezone  int64
	Solo      bool
	TeamID    sql.NullInt64
}

func (q *Queries) CreateMember(ctx context.Context, arg CreateMemberParams) (Member, error) {
	_, err := q.db.ExecContext(ctx, q.rebind(createMember),
		arg.ID,
		arg.Languages,
		arg.Timezone,
		arg.Solo,
		arg.TeamID,
	)
	if err != nil {
		return Member{}, err
	}
	return Member(arg), nil
}

const getMember = `
SELECT member_id, languages, timezone, solo, team_id FROM members WHERE member_id = ?
`

func (q *Queries) GetMember(ctx context.Context, id int64) (Member, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(getMember), id)
	var m Member
	err := row.Scan(&m.ID, &m.Languages, &m.Timezone, &m.Solo, &m.TeamID)
	return m, err
}

const updateMemberTeam = `
UPDATE members SET team_id = ? WHERE member_id = ?
`

type UpdateMemberTeamParams struct {
	TeamID sql.NullInt64
	ID     int64
}

func (q *Queries) UpdateMemberTeam(ctx context.Context, arg UpdateMemberTeamParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(updateMemberTeam), arg.TeamID, arg.ID)
	return err
}

const listTeamMembers = `
SELECT member_id, languages, timezone, solo, team_id FROM members
WHERE team_id = ?
ORDER BY member_id
`

func (q *Queries) ListTeamMembers(ctx context.Context, teamID int64) ([]Member, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(listTeamMembers), teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Languages, &m.Timezone, &m.Solo, &m.TeamID); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listMembersWithTeams = `
SELECT members.member_id, members.languages, members.timezone, members.solo, members.team_id, teams.name
FROM members
LEFT OUTER JOIN teams ON members.team_id = teams.team_id
ORDER BY members.member_id
`

func (q *Queries) ListMembersWithTeams(ctx context.Context) ([]MemberWithTeam, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(listMembersWithTeams))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MemberWithTeam
	for rows.Next() {
		var m MemberWithTeam
		if err := rows.Scan(&m.ID, &m.Languages, &m.Timezone, &m.Solo, &m.TeamID, &m.TeamName); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
