// Package broker provides the in-memory subscriber registry behind the live
// feeds. Each feed keeps its own set of subscriber queues; a broadcast copies
// one serialized payload onto every queue registered on that feed.
package broker

import (
	"sync"

	"github.com/google/uuid"

	"github.com/codejam/backend/internal/metrics"
)

// Feed names an independent broadcast channel.
type Feed string

const (
	FeedCommit Feed = "commit" // GitHub push events
	FeedRoster Feed = "roster" // team roster snapshots
)

// Feeds lists every feed the registry serves.
var Feeds = []Feed{FeedCommit, FeedRoster}

// Registry holds one queue per subscriber per feed. Register, Unregister and
// Broadcast are mutually exclusive, so a subscriber registered concurrently
// with a broadcast either receives the whole payload or none of it. Enqueue is
// O(1) and never waits on a reader.
type Registry struct {
	mu         sync.Mutex
	feeds      map[Feed]map[string]*Queue
	queueLimit int
	closed     bool
}

// NewRegistry creates a registry whose queues hold at most queueLimit
// payloads. Zero means unbounded.
func NewRegistry(queueLimit int) *Registry {
	feeds := make(map[Feed]map[string]*Queue, len(Feeds))
	for _, feed := range Feeds {
		feeds[feed] = make(map[string]*Queue)
	}
	return &Registry{
		feeds:      feeds,
		queueLimit: queueLimit,
	}
}

// Register adds a new subscriber to the feed and returns its id and queue.
// After Close, the returned queue is already closed.
func (r *Registry) Register(feed Feed) (string, *Queue) {
	id := uuid.NewString()
	q := NewQueue(r.queueLimit)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		q.Close()
		return id, q
	}
	subs, ok := r.feeds[feed]
	if !ok {
		subs = make(map[string]*Queue)
		r.feeds[feed] = subs
	}
	subs[id] = q
	metrics.Subscribers.WithLabelValues(string(feed)).Set(float64(len(subs)))
	return id, q
}

// Unregister removes a subscriber and closes its queue. Unknown ids are
// ignored.
func (r *Registry) Unregister(feed Feed, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.feeds[feed]
	q, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	q.Close()
	metrics.Subscribers.WithLabelValues(string(feed)).Set(float64(len(subs)))
}

// Broadcast enqueues payload on every queue currently registered on feed and
// returns how many subscribers it reached.
func (r *Registry) Broadcast(feed Feed, payload []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.feeds[feed]
	for _, q := range subs {
		if q.Push(payload) {
			metrics.DroppedPayloadsTotal.WithLabelValues(string(feed)).Inc()
		}
	}
	metrics.BroadcastsTotal.WithLabelValues(string(feed)).Inc()
	return len(subs)
}

// Count returns the number of subscribers on feed.
func (r *Registry) Count(feed Feed) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feeds[feed])
}

// Close closes every queue, which ends all streaming sessions, and rejects
// further registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for feed, subs := range r.feeds {
		for id, q := range subs {
			q.Close()
			delete(subs, id)
		}
		metrics.Subscribers.WithLabelValues(string(feed)).Set(0)
	}
}
