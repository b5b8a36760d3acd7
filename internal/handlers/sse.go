package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codejam/backend/internal/broker"
	"github.com/codejam/backend/internal/logging"
	"github.com/codejam/backend/internal/models"
)

// RosterSource builds the current roster snapshot.
type RosterSource interface {
	Build(ctx context.Context) (*models.Roster, error)
}

// SSEHandler serves the commit and roster feeds as Server-Sent Events.
type SSEHandler struct {
	registry  *broker.Registry
	roster    RosterSource
	heartbeat time.Duration
}

// NewSSEHandler creates an SSEHandler. A comment line is written every
// heartbeat so proxies keep the connection open and dead peers are noticed.
func NewSSEHandler(registry *broker.Registry, roster RosterSource, heartbeat time.Duration) *SSEHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &SSEHandler{registry: registry, roster: roster, heartbeat: heartbeat}
}

// CommitFeed streams every commit event published after the client connects.
func (h *SSEHandler) CommitFeed(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, broker.FeedCommit, nil)
}

// RosterFeed streams roster snapshots. The client first receives the
// current roster, then every snapshot published afterwards. The subscriber
// is registered before the first snapshot is built, so a broadcast landing
// during the build is queued behind it rather than lost or overtaken.
func (h *SSEHandler) RosterFeed(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, broker.FeedRoster, h.seedRoster)
}

func (h *SSEHandler) seedRoster(ctx context.Context, q *broker.Queue) {
	roster, err := h.roster.Build(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build initial roster", slog.Any("error", err))
		return
	}
	payload, err := json.Marshal(roster)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode initial roster", slog.Any("error", err))
		return
	}
	q.PushFront(payload)
}

// stream registers a subscriber on feed and writes its queue to the client
// until the client goes away or the registry shuts down. The subscriber is
// unregistered on every exit path.
func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, feed broker.Feed, seed func(context.Context, *broker.Queue)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := logging.UpdateRequestAttrs(r.Context(), "", string(feed))

	id, q := h.registry.Register(feed)
	defer h.registry.Unregister(feed, id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if seed != nil {
		seed(ctx, q)
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		for {
			payload, ok := q.Pop()
			if !ok {
				break
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				slog.DebugContext(ctx, "subscriber write failed", slog.Any("error", err))
				return
			}
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		case <-q.Done():
			return
		case <-q.Ready():
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
