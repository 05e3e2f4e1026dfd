package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wesm/chatpulse/internal/analytics"
	"github.com/wesm/chatpulse/internal/config"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Server is the HTTP server that serves the analytics REST API.
type Server struct {
	mu      sync.RWMutex
	cfg     config.Config
	store   analytics.EventReader
	engine  *analytics.Engine
	log     zerolog.Logger
	mux     *http.ServeMux
	httpSrv *http.Server
	version VersionInfo

	// handlerDelay is injected before each timeout-wrapped
	// handler, used only by tests to guarantee handlers
	// exceed a short timeout. Zero in production.
	handlerDelay time.Duration
}

// New creates a new Server reading from store.
func New(
	cfg config.Config, store analytics.EventReader, opts ...Option,
) *Server {
	s := &Server{
		cfg:   cfg,
		store: store,
		log:   zerolog.Nop(),
		mux:   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = analytics.New(store, cfg.AnalyticsOptions(s.log))
	s.routes()
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build-time version metadata.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithLogger sets the request and engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func (s *Server) routes() {
	s.mux.Handle("GET /api/v1/version", s.withTimeout(s.handleGetVersion))
	s.mux.Handle(
		"GET /api/v1/tenants/{tenant}/agents",
		s.withTimeout(s.handleListAgents),
	)

	const base = "GET /api/v1/tenants/{tenant}/analytics/"
	s.mux.Handle(base+"days", s.withTimeout(s.handleDays))
	s.mux.Handle(base+"kpis", s.withTimeout(s.handleKPIs))
	s.mux.Handle(base+"funnel", s.withTimeout(s.handleFunnel))
	s.mux.Handle(base+"segments", s.withTimeout(s.handleSegments))
	s.mux.Handle(base+"leaderboard", s.withTimeout(s.handleLeaderboard))
	s.mux.Handle(base+"dashboard", s.withTimeout(s.handleDashboard))
}

func (s *Server) handleGetVersion(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, s.version)
}

// Reload swaps in a new configuration. The engine is rebuilt with
// the new analytics options; in-flight requests keep the engine
// they started with. Host, port and write timeout changes need a
// restart.
func (s *Server) Reload(cfg config.Config) {
	engine := analytics.New(s.store, cfg.AnalyticsOptions(s.log))
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.Host, cfg.Port = s.cfg.Host, s.cfg.Port
	cfg.WriteTimeout = s.cfg.WriteTimeout
	s.cfg = cfg
	s.engine = engine
}

// snapshot returns the current engine and default timezone.
func (s *Server) snapshot() (*analytics.Engine, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine, s.cfg.Timezone
}

func (s *Server) writeTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.WriteTimeout
}

// SetPort updates the listen port (for testing).
func (s *Server) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Port = port
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.logMiddleware(s.mux))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.mu.RLock()
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.mu.RUnlock()
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	s.log.Info().Str("addr", "http://"+addr).Msg("starting server")
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// FindAvailablePort finds an available port starting from the
// given port, binding to the specified host.
func FindAvailablePort(host string, start int) int {
	for port := start; port < start+100; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return port
		}
	}
	return start
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set(
				"Access-Control-Allow-Origin", "*",
			)
			w.Header().Set(
				"Access-Control-Allow-Methods",
				"GET, OPTIONS",
			)
			w.Header().Set(
				"Access-Control-Allow-Headers",
				"Content-Type, X-Request-ID",
			)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
