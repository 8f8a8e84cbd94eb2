// Package server exposes the registry, the ingestion gateway, the inbox and
// the disclosure machine over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"DecideInbox/internal/activity"
	"DecideInbox/internal/api"
	"DecideInbox/internal/disclosure"
	"DecideInbox/internal/gateway"
	"DecideInbox/internal/inbox"
	"DecideInbox/internal/registry"
)

// Services are the coordinator components behind the API.
type Services struct {
	Registry   *registry.Service
	Gateway    *gateway.Gateway
	Inbox      *inbox.Service
	Disclosure *disclosure.Machine
	Feed       *activity.Feed
}

// Options tune authentication and rate limiting of worker-facing routes.
type Options struct {
	WorkerToken   string
	RatePerSecond float64
	Burst         int
	Version       string
	Logger        *slog.Logger
}

// Server is the coordinator HTTP API.
type Server struct {
	svc     Services
	opts    Options
	limiter *keyedLimiter
	router  chi.Router
}

// New builds the router.
func New(svc Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		svc:     svc,
		opts:    opts,
		limiter: newKeyedLimiter(opts.RatePerSecond, opts.Burst),
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get(api.PathHealth, s.handleHealth)

	// Routes called by collection daemons.
	daemon := r.With(s.requireToken, s.rateLimit)
	daemon.Post(api.PathWorkers, s.handleRegister)
	daemon.Post("/api/workers/{id}/heartbeat", s.handleHeartbeat)
	daemon.Post(api.PathIngest, s.handleIngest)

	r.Get(api.PathWorkers, s.handleListWorkers)
	r.Get("/api/workers/{id}", s.handleGetWorker)
	r.Delete("/api/workers/{id}", s.handleRemoveWorker)
	r.Post("/api/workers/{id}/config-version", s.handleBumpConfig)

	r.Get("/api/operators/{id}/inbox", s.handleInbox)
	r.Get("/api/operators/{id}/feed", s.handleFeed)
	r.Get("/api/operators/{id}/disclosure", s.handleDisclosure)
	r.Post("/api/operators/{id}/onboarding", s.handleOnboarding)
	r.Post("/api/operators/{id}/celebration/ack", s.handleCelebrationAck)

	r.Post("/api/inbox/{itemID}/decision", s.handleDecision)
	r.Get(api.PathSignals, s.handleSignals)

	return r
}
