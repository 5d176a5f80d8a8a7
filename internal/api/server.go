package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripwise/tripwise/internal/orchestrator"
	"github.com/tripwise/tripwise/internal/session"
	"github.com/tripwise/tripwise/internal/tools"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger       *slog.Logger
	Orchestrator *orchestrator.Orchestrator // Required
	SessionStore *session.Store             // Required
	Registry     *tools.Registry            // Required
	Pool         *pgxpool.Pool              // Optional: nil disables pool stats in /ready
	CORSOrigins  []string                   // Allowed origins for CORS
	IsDev        bool                       // Disables HSTS for plain-HTTP local runs
	TrustProxy   bool                       // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst    int                        // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON/SSE API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.SessionStore == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("capability registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{orch: cfg.Orchestrator, logger: logger}
	sh := &sessionHandler{store: cfg.SessionStore, logger: logger}
	caps := &capabilitiesHandler{registry: cfg.Registry, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/chat/stream", ch.stream)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.getSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.deleteSession)
	mux.HandleFunc("GET /api/v1/capabilities", caps.list)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Top-level mux keeps health probes outside the middleware stack so
	// rate limiting never starves a load balancer.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
