package router

import (
	"database/sql"
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codejam/backend/internal/broker"
	"github.com/codejam/backend/internal/chat"
	"github.com/codejam/backend/internal/config"
	"github.com/codejam/backend/internal/db"
	"github.com/codejam/backend/internal/handlers"
	"github.com/codejam/backend/internal/middleware"
	"github.com/codejam/backend/internal/services"
)

// Deps are the long-lived components shared by every request. main owns
// their lifecycle.
type Deps struct {
	DB         *sql.DB
	Queries    *db.Queries
	Registry   *broker.Registry
	Publisher  *broker.Publisher
	Identities chat.Resolver
}

func New(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewRealIPMiddleware(cfg.TrustedProxies).Handler)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	if cfg.SentryDSN != "" {
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Services
	webhookService := services.NewWebhookService(deps.Queries, deps.Publisher)
	rosterService := services.NewRosterService(deps.Queries, deps.Identities, deps.Publisher)
	teamOpts := []services.TeamServiceOption{services.WithTeamInvalidation(webhookService.ForgetTeam)}
	if cache, ok := deps.Identities.(*chat.Cache); ok {
		teamOpts = append(teamOpts, services.WithIdentityInvalidation(cache.Forget))
	}
	teamService := services.NewTeamService(deps.DB, deps.Queries, rosterService, teamOpts...)

	// Handlers
	sseHandler := handlers.NewSSEHandler(deps.Registry, rosterService, cfg.SSEHeartbeat)
	webhookHandler := handlers.NewWebhookHandler(webhookService)
	rosterHandler := handlers.NewRosterHandler(rosterService)
	teamHandler := handlers.NewTeamHandler(teamService)

	// Rate limiter for webhook deliveries
	webhookRateLimiter := middleware.NewRateLimiter(cfg.WebhookRateLimitPerMinute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Commit feed
	r.Get("/commit_feed", sseHandler.CommitFeed)
	r.Route("/github", func(r chi.Router) {
		r.Get("/commit_feed", sseHandler.CommitFeed)
		r.With(webhookRateLimiter.Middleware).Post("/{team_id}/{team_token}", webhookHandler.Receive)
	})

	// Roster feed
	r.Get("/teams/feed", rosterHandler.Feed)
	r.Get("/teams/feed_event", sseHandler.RosterFeed)

	// Chat bot routes, authenticated by the shared backend secret
	r.Group(func(r chi.Router) {
		r.Use(middleware.BackendAuth(cfg.BackendToken))

		r.Post("/teams/update", rosterHandler.Update)
		r.Post("/teams", teamHandler.CreateTeam)
		r.Put("/teams/{team_id}/name", teamHandler.RenameTeam)
		r.Delete("/teams/{team_id}", teamHandler.DeleteTeam)
		r.Post("/members", teamHandler.RegisterMember)
		r.Put("/members/{member_id}/team", teamHandler.SetMemberTeam)
	})

	return r
}
