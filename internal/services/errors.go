package services

import (
	"context"
	"errors"

	"github.com/codejam/backend/internal/broker"
)

// Sentinel errors returned by the services. Handlers map them to status codes.
var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrConflict         = errors.New("conflict")
	ErrInvalid          = errors.New("invalid request")
)

// Publisher delivers a payload to every subscriber of a feed.
type Publisher interface {
	Publish(ctx context.Context, feed broker.Feed, v any) error
}
