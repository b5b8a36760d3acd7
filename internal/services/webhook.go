package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/codejam/backend/internal/broker"
	"github.com/codejam/backend/internal/crypto"
	"github.com/codejam/backend/internal/db"
	"github.com/codejam/backend/internal/models"
)

// MaxCommitsPerEvent caps the commits listed on one commit feed event.
const MaxCommitsPerEvent = 5

// MaxWebhookBodyBytes bounds the webhook body read by the handler. GitHub
// caps payloads at 25 MiB.
const MaxWebhookBodyBytes = 25 << 20

// GitHub push event, reduced to the fields the commit feed shows.
type ghPushEvent struct {
	Sender  ghUser      `json:"sender"`
	Commits *[]ghCommit `json:"commits"`
}

type ghUser struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

type ghCommit struct {
	Message string       `json:"message"`
	Author  ghCommitUser `json:"author"`
}

type ghCommitUser struct {
	Name string `json:"name"`
}

// TeamLookup is the part of the store the webhook ingestor needs.
type TeamLookup interface {
	GetTeamByID(ctx context.Context, id int64) (db.Team, error)
}

// WebhookService turns GitHub push webhooks into commit feed events.
type WebhookService struct {
	teams     TeamLookup
	publisher Publisher

	// verified maps a team id to the last token that matched its stored
	// hash, so repeated deliveries skip the scrypt derivation.
	verified sync.Map
}

type verifiedToken struct {
	token string
	hash  string
}

func NewWebhookService(teams TeamLookup, publisher Publisher) *WebhookService {
	return &WebhookService{teams: teams, publisher: publisher}
}

// HandleCommitWebhook authenticates the team and broadcasts the push on the
// commit feed. Events without a commits list (ping, issues, ...) are
// accepted without a broadcast; published reports whether one happened.
func (s *WebhookService) HandleCommitWebhook(ctx context.Context, teamID int64, token string, body []byte) (published bool, err error) {
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("failed to load team %d: %w", teamID, err)
	}

	if !s.verifyToken(team, token) {
		return false, ErrUnauthorized
	}

	var push ghPushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if push.Commits == nil {
		return false, nil
	}

	event := buildCommitEvent(team, push)
	if err := s.publisher.Publish(ctx, broker.FeedCommit, event); err != nil {
		return false, fmt.Errorf("failed to publish commit event: %w", err)
	}
	return true, nil
}

// ForgetTeam drops the cached credential of a deleted team.
func (s *WebhookService) ForgetTeam(teamID int64) {
	s.verified.Delete(teamID)
}

func (s *WebhookService) verifyToken(team db.Team, token string) bool {
	if v, ok := s.verified.Load(team.ID); ok {
		cached := v.(verifiedToken)
		if cached.hash == team.TokenHash && subtle.ConstantTimeCompare([]byte(cached.token), []byte(token)) == 1 {
			return true
		}
	}
	if !crypto.VerifyTeamToken(team.ID, token, team.TokenHash) {
		return false
	}
	s.verified.Store(team.ID, verifiedToken{token: token, hash: team.TokenHash})
	return true
}

func buildCommitEvent(team db.Team, push ghPushEvent) models.CommitEvent {
	all := *push.Commits
	shown := all
	if len(shown) > MaxCommitsPerEvent {
		shown = shown[:MaxCommitsPerEvent]
	}

	commits := make([]models.CommitSummary, 0, len(shown))
	for _, c := range shown {
		commits = append(commits, models.CommitSummary{Author: c.Author.Name, Message: c.Message})
	}

	return models.CommitEvent{
		Team:         models.TeamRef{ID: team.ID, Name: team.Name},
		Sender:       models.Sender{Name: push.Sender.Login, Avatar: push.Sender.AvatarURL},
		Commits:      commits,
		CommitLength: len(all),
	}
}
