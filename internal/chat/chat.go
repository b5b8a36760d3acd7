// Package chat resolves Code Jam participants to their Discord identity.
package chat

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// ErrNotInGuild is returned when the member has left the Code Jam server.
var ErrNotInGuild = errors.New("member is not in the guild")

// Identity is how a member is displayed on the live feeds.
type Identity struct {
	Name   string
	Avatar string
}

// Resolver looks up a member's display identity.
type Resolver interface {
	ResolveIdentity(ctx context.Context, memberID int64) (Identity, error)
}

// StaticResolver names every member by their id. Used when no Discord token
// is configured.
type StaticResolver struct{}

func (StaticResolver) ResolveIdentity(_ context.Context, memberID int64) (Identity, error) {
	return Identity{Name: strconv.FormatInt(memberID, 10)}, nil
}

type cacheEntry struct {
	identity Identity
	err      error
	expires  time.Time
}

// Cache memoizes a Resolver for ttl. Not-in-guild answers are cached too;
// other errors are not.
type Cache struct {
	resolver Resolver
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[int64]cacheEntry
}

// NewCache wraps resolver with a TTL cache.
func NewCache(resolver Resolver, ttl time.Duration) *Cache {
	return &Cache{
		resolver: resolver,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[int64]cacheEntry),
	}
}

func (c *Cache) ResolveIdentity(ctx context.Context, memberID int64) (Identity, error) {
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[memberID]
	c.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.identity, entry.err
	}

	identity, err := c.resolver.ResolveIdentity(ctx, memberID)
	if err != nil && !errors.Is(err, ErrNotInGuild) {
		return Identity{}, err
	}

	c.mu.Lock()
	c.entries[memberID] = cacheEntry{identity: identity, err: err, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return identity, err
}

// Forget drops a cached member, e.g. after they register or rejoin.
func (c *Cache) Forget(memberID int64) {
	c.mu.Lock()
	delete(c.entries, memberID)
	c.mu.Unlock()
}
