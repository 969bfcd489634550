package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/handler"
	"github.com/wardenhq/warden/internal/server/middleware"
	"github.com/wardenhq/warden/internal/service"
	"github.com/wardenhq/warden/internal/stream"
	"github.com/wardenhq/warden/internal/webhook"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	// CORSOrigins is an exact origin allowlist shared by the CORS layer
	// and the WebSocket origin check. A "*" entry is not honored:
	// credentialed responses always echo a specific allowlisted origin.
	CORSOrigins []string
	// RatePerMin caps requests per client IP across the whole API; 0
	// disables the global limiter. WebhookRatePerMin applies per
	// (IP, ingress path) on top of it.
	RatePerMin        int
	WebhookRatePerMin int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       []string{"http://localhost:3000"},
		RatePerMin:        1200,
		WebhookRatePerMin: 600,
	}
}

// Server is the top-level HTTP server for Warden. It owns the Chi router,
// the gatekeeping services, the registry store, and the event hub.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *config.Store
	authSvc    *service.AuthService
	verifier   *webhook.Verifier
	dedup      webhook.IdempotencyStore
	events     *stream.Hub
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, store *config.Store, authSvc *service.AuthService, verifier *webhook.Verifier, dedup webhook.IdempotencyStore, events *stream.Hub, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		authSvc:  authSvc,
		verifier: verifier,
		dedup:    dedup,
		events:   events,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	if s.cfg.RatePerMin > 0 {
		r.Use(middleware.RateLimit(s.cfg.RatePerMin))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// The gatekeeper runs before every handler. Public and webhook paths
	// pass through; everything else needs a valid token and role.
	r.Use(middleware.Gatekeeper(s.authSvc))

	// --- Public routes ---
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	// --- Webhook ingress (signature-authenticated) ---
	webhookHandler := handler.NewWebhookHandler(s.verifier, s.dedup, s.store, s.events, s.logger)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByPath(s.cfg.WebhookRatePerMin))
		r.Post("/webhooks/shopify", webhookHandler.Ingress("shopify"))
		r.Post("/webhooks/stripe", webhookHandler.Ingress("stripe"))
		r.Post("/webhooks/printful", webhookHandler.Ingress("printful"))
	})

	// --- Gated routes ---
	agentHandler := handler.NewAgentHandler(s.store, s.events, s.logger)
	schedulerHandler := handler.NewSchedulerHandler(s.store)
	workflowHandler := handler.NewWorkflowHandler(s.store, s.events)

	r.Get("/agents", agentHandler.List)
	r.Post("/agents", agentHandler.Create)
	r.Get("/agents/{agent_id}", agentHandler.Get)
	r.Put("/agents/{agent_id}", agentHandler.Update)
	r.Delete("/agents/{agent_id}", agentHandler.Delete)

	r.Post("/agent/invoke", agentHandler.Invoke)
	r.Post("/agent/batch", agentHandler.Batch)

	r.Get("/scheduler/triggers", schedulerHandler.List)
	r.Post("/scheduler/triggers", schedulerHandler.Create)
	r.Delete("/scheduler/triggers/{trigger_id}", schedulerHandler.Delete)

	r.Get("/workflows", workflowHandler.List)
	r.Post("/workflows/{workflow_id}/run", workflowHandler.Run)

	r.Get("/webhooks/status", webhookHandler.Status)

	// --- Event stream (token via query parameter) ---
	r.Get("/ws", s.handleWebSocket)

	s.router = r
}

// allowedOrigins returns the configured origin allowlist with any wildcard
// entries removed.
func (s *Server) allowedOrigins() []string {
	out := make([]string, 0, len(s.cfg.CORSOrigins))
	for _, origin := range s.cfg.CORSOrigins {
		if origin == "*" {
			s.logger.Warn("ignoring wildcard CORS origin; credentialed responses require exact origins")
			continue
		}
		out = append(out, origin)
	}
	return out
}

// originAllowed checks a request Origin against the allowlist. An absent
// Origin (non-browser client) is allowed; browsers always send one.
func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins() {
		if origin == allowed {
			return true
		}
	}
	return false
}

// handleRoot identifies the service. Public.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"service":"warden"}`))
}

// handleHealth is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
