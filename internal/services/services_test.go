package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/codejam/backend/internal/broker"
)

type published struct {
	feed    broker.Feed
	payload []byte
}

// recordingPublisher captures every published payload as JSON.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, feed broker.Feed, v any) error {
	if p.err != nil {
		return p.err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{feed: feed, payload: payload})
	return nil
}

func (p *recordingPublisher) count(feed broker.Feed) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.feed == feed {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) last(t *testing.T, v any) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		t.Fatal("nothing was published")
	}
	if err := json.Unmarshal(p.events[len(p.events)-1].payload, v); err != nil {
		t.Fatalf("decode published payload: %v", err)
	}
}
