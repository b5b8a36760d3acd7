package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bwmarrin/discordgo"
)

// DiscordResolver fetches guild members over the Discord REST API.
type DiscordResolver struct {
	session *discordgo.Session
	guildID string
}

// NewDiscordResolver creates a resolver authenticated with a bot token.
func NewDiscordResolver(botToken, guildID string) (*DiscordResolver, error) {
	if botToken == "" || guildID == "" {
		return nil, errors.New("discord bot token and guild id are required")
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &DiscordResolver{session: session, guildID: guildID}, nil
}

func (d *DiscordResolver) ResolveIdentity(ctx context.Context, memberID int64) (Identity, error) {
	member, err := d.session.GuildMember(d.guildID, strconv.FormatInt(memberID, 10), discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownMember(err) {
			return Identity{}, ErrNotInGuild
		}
		return Identity{}, fmt.Errorf("fetch guild member %d: %w", memberID, err)
	}
	return identityFromMember(member), nil
}

func isUnknownMember(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && (restErr.Message.Code == discordgo.ErrCodeUnknownMember || restErr.Message.Code == discordgo.ErrCodeUnknownUser) {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

// identityFromMember prefers the guild nickname, then the global display
// name, then the username.
func identityFromMember(member *discordgo.Member) Identity {
	if member == nil || member.User == nil {
		return Identity{}
	}
	name := member.User.Username
	if member.User.GlobalName != "" {
		name = member.User.GlobalName
	}
	if member.Nick != "" {
		name = member.Nick
	}
	return Identity{Name: name, Avatar: member.AvatarURL("")}
}
