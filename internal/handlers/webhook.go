package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codejam/backend/internal/logging"
	"github.com/codejam/backend/internal/metrics"
	"github.com/codejam/backend/internal/services"
)

// CommitIngestor accepts GitHub push webhooks for a team.
type CommitIngestor interface {
	HandleCommitWebhook(ctx context.Context, teamID int64, token string, body []byte) (bool, error)
}

// WebhookHandler receives GitHub webhooks at /github/{team_id}/{team_token}.
type WebhookHandler struct {
	ingestor CommitIngestor
}

func NewWebhookHandler(ingestor CommitIngestor) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor}
}

// Receive authenticates the team and republishes push events on the commit
// feed. Other event types are acknowledged with 200.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "team_id")
	ctx := logging.UpdateRequestAttrs(r.Context(), rawID, "")

	// A non-numeric id cannot name a team.
	teamID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("not_found").Inc()
		logging.LogSecurityEvent(ctx, logging.SecurityEventUnknownTeam, "webhook for unknown team")
		writeError(w, http.StatusNotFound, "team not found")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, services.MaxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.WebhooksTotal.WithLabelValues("malformed").Inc()
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	published, err := h.ingestor.HandleCommitWebhook(ctx, teamID, chi.URLParam(r, "team_token"), body)
	switch {
	case errors.Is(err, services.ErrNotFound):
		metrics.WebhooksTotal.WithLabelValues("not_found").Inc()
		logging.LogSecurityEvent(ctx, logging.SecurityEventUnknownTeam, "webhook for unknown team")
		writeError(w, http.StatusNotFound, "team not found")
	case errors.Is(err, services.ErrUnauthorized):
		metrics.WebhooksTotal.WithLabelValues("unauthorized").Inc()
		logging.LogSecurityEvent(ctx, logging.SecurityEventBadWebhookToken, "invalid webhook token")
		writeError(w, http.StatusUnauthorized, "invalid team token")
	case errors.Is(err, services.ErrMalformedPayload):
		metrics.WebhooksTotal.WithLabelValues("malformed").Inc()
		writeError(w, http.StatusBadRequest, "malformed payload")
	case err != nil:
		metrics.WebhooksTotal.WithLabelValues("error").Inc()
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "failed to process webhook", err)
	case published:
		metrics.WebhooksTotal.WithLabelValues("published").Inc()
		w.WriteHeader(http.StatusOK)
	default:
		metrics.WebhooksTotal.WithLabelValues("ignored").Inc()
		w.WriteHeader(http.StatusOK)
	}
}
