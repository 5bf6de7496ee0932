package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Navneet-55/msmesolut/internal/agent"
	"github.com/Navneet-55/msmesolut/internal/otel"
	"github.com/Navneet-55/msmesolut/internal/secrets"
	"github.com/Navneet-55/msmesolut/internal/store"
	"github.com/Navneet-55/msmesolut/internal/tenant"
)

const defaultTimeout = 60 * time.Second

// runTimeout bounds a synchronous agent run started over HTTP.
const runTimeout = 30 * time.Minute

// Server holds all dependencies for the HTTP API.
type Server struct {
	router        *chi.Mux
	dispatcher    *agent.Dispatcher
	store         *store.Store
	tenantManager *tenant.Manager
	sealer        *secrets.Sealer
	apiKeys       map[string]string
	corsOrigins   []string
	sessionTTL    time.Duration
	environment   string
	version       string
	startTime     time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithTenantManager sets the tenant manager for rate limiting, run quotas and plans.
func WithTenantManager(tm *tenant.Manager) Option {
	return func(s *Server) { s.tenantManager = tm }
}

// WithSealer encrypts credential fields of integration configs before they
// are stored.
func WithSealer(sealer *secrets.Sealer) Option {
	return func(s *Server) { s.sealer = sealer }
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithSessionTTL sets the lifetime of tokens issued by login and register.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Server) { s.sessionTTL = ttl }
}

// WithBuildInfo sets the version and environment reported by /health.
func WithBuildInfo(version, environment string) Option {
	return func(s *Server) {
		s.version = version
		s.environment = environment
	}
}

// NewServer builds a Server. apiKeys maps API key to organization id.
func NewServer(dispatcher *agent.Dispatcher, st *store.Store, apiKeys map[string]string, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		dispatcher:  dispatcher,
		store:       st,
		apiKeys:     apiKeys,
		corsOrigins: []string{"*"},
		sessionTTL:  7 * 24 * time.Hour,
		environment: "development",
		version:     "dev",
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKeys == nil {
		s.apiKeys = make(map[string]string)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware and routes).
// POST /v1/agents/run is registered without the default request timeout so the
// handler's 30-minute deadline applies.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLive)
	r.Get("/health/ready", s.handleReady)
	r.Get("/health/version", s.handleVersion)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(defaultTimeout))
		r.Post("/v1/auth/register", s.handleRegister)
		r.Post("/v1/auth/login", s.handleLogin)
		r.Post("/v1/auth/refresh", s.handleRefresh)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys, s.store))
		r.Use(RateLimitMiddleware(s.tenantManager))

		r.Post("/v1/agents/run", s.handleAgentRun)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultTimeout))
			r.Get("/v1/auth/me", s.handleMe)
			r.Post("/v1/auth/logout", s.handleLogout)

			r.Get("/v1/agents", s.handleAgentsDescribe)
			r.Get("/v1/agents/runs", s.handleRunsList)
			r.Get("/v1/agents/runs/{id}", s.handleRunGet)

			r.Get("/v1/data/dashboard", s.handleDashboard)
			r.Get("/v1/data/activity", s.handleActivity)

			r.Get("/v1/notifications", s.handleNotificationsList)
			r.Post("/v1/notifications/{id}/read", s.handleNotificationRead)

			r.Get("/v1/integrations", s.handleIntegrationsList)
			r.Post("/v1/integrations", s.handleIntegrationCreate)
		})
	})

	return r
}
