package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/walmartlabs/concord-sub001/internal/agent"
	"github.com/walmartlabs/concord-sub001/internal/auth"
	"github.com/walmartlabs/concord-sub001/internal/events"
	"github.com/walmartlabs/concord-sub001/internal/orchestrator"
	"github.com/walmartlabs/concord-sub001/internal/process"
)

// Submitter defines the submission/query operations offered to callers.
type Submitter interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (string, error)
	Status(ctx context.Context, id string) (*orchestrator.StatusResult, error)
	Cancel(ctx context.Context, id string) error
}

// LifecycleReporter defines the transitions agents report back.
type LifecycleReporter interface {
	Acknowledge(ctx context.Context, id string) error
	Suspend(ctx context.Context, id string, cond process.WaitCondition) error
	ResumeEvent(ctx context.Context, id, name string, payload map[string]any) error
	ResumeForm(ctx context.Context, id, formID string, values map[string]any) error
	Finish(ctx context.Context, id string, outVars map[string]any) error
	Fail(ctx context.Context, id, reason string) error
}

// AgentRegistry defines the agent-facing registry operations.
type AgentRegistry interface {
	Heartbeat(id string, capabilities map[string]string) bool
	Take(agentID string) (agent.Assignment, bool)
	Len() int
}

// StoreStats exposes queue observability for /healthz.
type StoreStats interface {
	Depth(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[process.Status]int, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the legacy single bearer token (admin/full access).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server is the HTTP surface: submission/query API, agent protocol, and the
// SSE event stream.
type Server struct {
	config    Config
	submitter Submitter
	lifecycle LifecycleReporter
	registry  AgentRegistry
	stats     StoreStats
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

func New(config Config, submitter Submitter, lc LifecycleReporter, registry AgentRegistry, stats StoreStats, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		submitter: submitter,
		lifecycle: lc,
		registry:  registry,
		stats:     stats,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // /events streams indefinitely
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/api/v1/process", func(r chi.Router) {
			r.With(s.requireScopes("process:rw", "*")).Post("/", s.handleSubmit)
			r.With(s.requireScopes("process:ro", "process:rw", "*")).Get("/{instanceID}", s.handleStatus)
			r.With(s.requireScopes("process:rw", "*")).Post("/{instanceID}/cancel", s.handleCancel)
			r.With(s.requireScopes("process:rw", "*")).Post("/{instanceID}/event/{eventName}", s.handleResumeEvent)
			r.With(s.requireScopes("process:rw", "*")).Post("/{instanceID}/form/{formID}", s.handleSubmitForm)
		})

		r.Route("/api/v1/agent", func(r chi.Router) {
			r.Use(s.requireScopes("agent:rw", "*"))
			r.Post("/poll", s.handleAgentPoll)
			r.Post("/process/{instanceID}/ack", s.handleAgentAck)
			r.Post("/process/{instanceID}/suspend", s.handleAgentSuspend)
			r.Post("/process/{instanceID}/finish", s.handleAgentFinish)
			r.Post("/process/{instanceID}/fail", s.handleAgentFail)
		})

		r.With(s.requireScopes("events:ro", "events:rw", "*")).Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// authMiddleware enforces bearer token authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, ok := auth.Authenticate(token, s.config.APIKey, s.config.Tokens)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		s.logger.Debug("authenticated request", "principal", principal.Name, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// requireScopes returns middleware enforcing that the principal carries at
// least one of the given scopes.
func (s *Server) requireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok || !auth.HasAnyScope(principal, scopes...) {
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
