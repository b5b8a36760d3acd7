package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

type Team struct {
	ID        int64
	TokenHash string
	Invite    string
	Name      string
	Owner     int64
}

type Member struct {
	ID        int64
	Languages string // JSON array of language codes
	Timezone  int64  // UTC offset in hours
	Solo      bool
	TeamID    sql.NullInt64
}

// LanguageCodes decodes the stored language list.
func (m Member) LanguageCodes() ([]int, error) {
	if m.Languages == "" {
		return []int{}, nil
	}
	codes := []int{}
	if err := json.Unmarshal([]byte(m.Languages), &codes); err != nil {
		return nil, fmt.Errorf("decode languages for member %d: %w", m.ID, err)
	}
	return codes, nil
}

// EncodeLanguages is the inverse of Member.LanguageCodes.
func EncodeLanguages(codes []int) string {
	if codes == nil {
		codes = []int{}
	}
	data, _ := json.Marshal(codes)
	return string(data)
}

// MemberWithTeam is a member row left-joined with its team.
type MemberWithTeam struct {
	Member
	TeamName sql.NullString
}
