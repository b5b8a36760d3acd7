package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/codejam/backend/internal/broker"
	"github.com/codejam/backend/internal/chat"
	"github.com/codejam/backend/internal/db"
	"github.com/codejam/backend/internal/models"
)

const (
	// maxIdentityLookups bounds concurrent chat lookups during one build.
	maxIdentityLookups = 8
	rosterBuildTimeout = 30 * time.Second
)

// MemberLister is the part of the store the roster builder needs.
type MemberLister interface {
	ListMembersWithTeams(ctx context.Context) ([]db.MemberWithTeam, error)
}

// RosterService builds team roster snapshots and publishes them on the
// roster feed.
type RosterService struct {
	members    MemberLister
	identities chat.Resolver
	publisher  Publisher
	builds     singleflight.Group

	// broadcastMu orders broadcasts so the last one published is built
	// from the latest store state.
	broadcastMu sync.Mutex
}

func NewRosterService(members MemberLister, identities chat.Resolver, publisher Publisher) *RosterService {
	return &RosterService{
		members:    members,
		identities: identities,
		publisher:  publisher,
	}
}

// Build returns the current roster for readers. Concurrent callers share
// one build, and a caller going away does not cancel the build for the
// others.
func (s *RosterService) Build(ctx context.Context) (*models.Roster, error) {
	v, err, _ := s.builds.Do("roster", func() (any, error) {
		return s.buildDetached(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Roster), nil
}

// Broadcast reads the store afresh and publishes the roster to every roster
// subscriber. It never joins a build already in flight, which may predate
// the change being announced.
func (s *RosterService) Broadcast(ctx context.Context) error {
	s.broadcastMu.Lock()
	defer s.broadcastMu.Unlock()

	roster, err := s.buildDetached(ctx)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, broker.FeedRoster, roster); err != nil {
		return fmt.Errorf("failed to publish roster: %w", err)
	}
	return nil
}

func (s *RosterService) buildDetached(ctx context.Context) (*models.Roster, error) {
	buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rosterBuildTimeout)
	defer cancel()
	return s.build(buildCtx)
}

type rosterTeam struct {
	name    string
	members []models.RosterMember
}

func (s *RosterService) build(ctx context.Context) (*models.Roster, error) {
	rows, err := s.members.ListMembersWithTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	identities := make([]chat.Identity, len(rows))
	inGuild := make([]bool, len(rows))

	var g errgroup.Group
	g.SetLimit(maxIdentityLookups)
	for i, row := range rows {
		g.Go(func() error {
			identity, err := s.identities.ResolveIdentity(ctx, row.ID)
			switch {
			case errors.Is(err, chat.ErrNotInGuild):
				return nil
			case err != nil:
				slog.WarnContext(ctx, "identity lookup failed", "member_id", row.ID, "error", err)
				identity = chat.Identity{Name: strconv.FormatInt(row.ID, 10)}
			}
			identities[i] = identity
			inGuild[i] = true
			return nil
		})
	}
	_ = g.Wait()

	// Group by team id; the display name is only used as the output key.
	teams := make(map[int64]*rosterTeam)
	var noTeam []models.RosterMember
	for i, row := range rows {
		if !inGuild[i] {
			continue
		}
		languages, err := row.LanguageCodes()
		if err != nil {
			slog.WarnContext(ctx, "bad language list", "member_id", row.ID, "error", err)
			languages = []int{}
		}
		member := models.RosterMember{
			Name:      identities[i].Name,
			Avatar:    identities[i].Avatar,
			Languages: languages,
			Timezone:  int(row.Timezone),
			Solo:      row.Solo,
		}

		if !row.TeamID.Valid {
			noTeam = append(noTeam, member)
			continue
		}
		team, ok := teams[row.TeamID.Int64]
		if !ok {
			team = &rosterTeam{name: row.TeamName.String}
			teams[row.TeamID.Int64] = team
		}
		team.members = append(team.members, member)
	}

	ordered := make([]*rosterTeam, 0, len(teams))
	for _, team := range teams {
		ordered = append(ordered, team)
	}
	slices.SortFunc(ordered, func(a, b *rosterTeam) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.name), strings.ToLower(b.name)),
			cmp.Compare(a.name, b.name),
		)
	})

	roster := models.NewRoster()
	for _, team := range ordered {
		roster.Add(team.name, team.members...)
	}
	if len(noTeam) > 0 {
		roster.Add(models.NoTeamKey, noTeam...)
	}
	return roster, nil
}
