// Package server provides the HTTP surface for monkeypress: the /v1 REST
// API, the /ws event stream, health probes and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"monkeypress/internal/chunkstore"
	"monkeypress/internal/engine"
	"monkeypress/internal/logging"
	"monkeypress/internal/words"
)

// Version is stamped by the build; the default marks a source build.
var Version = "dev"

// DefaultPort is the HTTP port used when none is configured.
const DefaultPort = 5500

const (
	// charsRate limits /v1/chars per client IP. Slice reads can fan out
	// into backend fetches, so a modest sustained rate with a burst
	// allowance covers interactive scrollback without letting one client
	// hammer cold chunks.
	charsRate  = rate.Limit(10)
	charsBurst = 30

	limiterCleanupInterval = 5 * time.Minute
	limiterStaleAfter      = 15 * time.Minute
)

// Config holds server configuration.
type Config struct {
	// Engine is the running stream engine. Required.
	Engine *engine.Engine
	// Chunks serves /v1/chars reads. Required.
	Chunks *chunkstore.Store
	// Dictionary is reported in /v1/status. Required.
	Dictionary *words.Dictionary

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Server serves the REST API and the WebSocket stream.
type Server struct {
	engine  *engine.Engine
	chunks  *chunkstore.Store
	dict    *words.Dictionary
	logger  *slog.Logger
	limiter *rateLimiter
	started time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	inFlight sync.WaitGroup
	draining atomic.Bool
	shutdown chan struct{}

	cleanupCancel context.CancelFunc
	cleanupWG     sync.WaitGroup
}

// New creates a Server.
func New(cfg Config) *Server {
	return &Server{
		engine:   cfg.Engine,
		chunks:   cfg.Chunks,
		dict:     cfg.Dictionary,
		logger:   logging.Default(cfg.Logger).With("component", "server"),
		limiter:  newRateLimiter(charsRate, charsBurst),
		started:  time.Now(),
		shutdown: make(chan struct{}),
	}
}

// buildMux registers every endpoint.
func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.Handle("GET /v1/chars", rateLimitMiddleware(s.limiter, http.HandlerFunc(s.handleChars)))
	mux.HandleFunc("GET /ws", s.handleWS)

	s.registerProbes(mux)
	s.registerMetrics(mux)

	return mux
}

// registerProbes adds Kubernetes liveness and readiness probe endpoints.
func (s *Server) registerProbes(mux *http.ServeMux) {
	// Liveness probe - returns 200 if the process is alive
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Readiness probe - a halted engine must drop out of rotation
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.engine.Healthy() && !s.draining.Load() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
}

// trackingMiddleware wraps an http.Handler to track in-flight requests.
func (s *Server) trackingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			http.Error(w, "server is draining", http.StatusServiceUnavailable)
			return
		}
		s.inFlight.Add(1)
		defer s.inFlight.Done()
		next.ServeHTTP(w, r)
	})
}

// Serve starts the server on the given listener and blocks until the server
// is stopped or fails.
func (s *Server) Serve(listener net.Listener) error {
	handler := s.trackingMiddleware(s.buildMux())

	cleanupCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{Handler: handler}
	s.cleanupCancel = cancel
	s.mu.Unlock()

	s.limiter.startCleanup(cleanupCtx, &s.cleanupWG, limiterCleanupInterval, limiterStaleAfter)

	s.logger.Info("server starting", "addr", listener.Addr().String())

	err := s.server.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// ServeTCP starts the server on a TCP address.
func (s *Server) ServeTCP(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Stop gracefully stops the server: new requests are rejected, in-flight
// requests drain, then the HTTP server shuts down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	cancel := s.cleanupCancel
	s.server = nil
	s.cleanupCancel = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	s.logger.Info("server stopping")
	s.draining.Store(true)
	// Long-lived /ws handlers watch the shutdown channel; closing it lets
	// the in-flight drain below complete.
	close(s.shutdown)
	s.inFlight.Wait()

	if cancel != nil {
		cancel()
		s.cleanupWG.Wait()
	}

	return server.Shutdown(ctx)
}

// Handler returns the server's http.Handler for testing or embedding.
func (s *Server) Handler() http.Handler {
	return s.trackingMiddleware(s.buildMux())
}

// apiError is the JSON shape of an error response.
type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}
