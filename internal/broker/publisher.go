package broker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Relay forwards serialized payloads to every backend instance. The relay is
// responsible for handing received payloads back to Registry.Broadcast.
type Relay interface {
	Publish(ctx context.Context, feed Feed, payload []byte) error
}

// Publisher serializes payloads once and fans them out on a feed.
type Publisher struct {
	registry *Registry
	relay    Relay
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithRelay routes broadcasts through relay instead of the local registry.
func WithRelay(relay Relay) PublisherOption {
	return func(p *Publisher) {
		p.relay = relay
	}
}

// NewPublisher creates a Publisher broadcasting to registry.
func NewPublisher(registry *Registry, opts ...PublisherOption) *Publisher {
	p := &Publisher{registry: registry}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish serializes v as JSON and delivers an identical copy to every
// subscriber of feed.
func (p *Publisher) Publish(ctx context.Context, feed Feed, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", feed, err)
	}
	if p.relay != nil {
		if err := p.relay.Publish(ctx, feed, payload); err != nil {
			return fmt.Errorf("relay %s payload: %w", feed, err)
		}
		return nil
	}
	p.registry.Broadcast(feed, payload)
	return nil
}
