// Package server exposes the session registry over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/christopherjohns/blanc/internal/ipfs"
	"github.com/christopherjohns/blanc/internal/metrics"
	"github.com/christopherjohns/blanc/internal/ratelimit"
	"github.com/christopherjohns/blanc/internal/session"
	"github.com/christopherjohns/blanc/internal/ws"
)

const (
	defaultMaxUpload       = 32 << 20
	defaultShutdownTimeout = 10 * time.Second
	maxJSONBody            = 64 << 10

	// DefaultPublicOrigin prefixes verification links when no origin is set.
	DefaultPublicOrigin = "http://localhost:3000"
)

// Server is the HTTP server for the session API.
type Server struct {
	addr    string
	mux     *http.ServeMux
	handler http.Handler

	store   session.Store
	hub     *ws.Hub
	metrics *metrics.Metrics
	limiter *ratelimit.Limiter
	pinner  *ipfs.Pinner
	log     *slog.Logger

	origin          string
	maxUpload       int64
	maxWatchers     int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithStore sets the session store. The default is a fresh MemoryStore.
// The caller keeps ownership and closes it after the server stops.
func WithStore(store session.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithRateLimit limits POST requests to max per window per client IP.
func WithRateLimit(max int, window time.Duration, opts ...ratelimit.Option) Option {
	return func(s *Server) {
		s.limiter = ratelimit.New(max, window, opts...)
	}
}

// WithPinner enables POST /api/media, accepting uploads up to maxUpload
// bytes.
func WithPinner(p *ipfs.Pinner, maxUpload int64) Option {
	return func(s *Server) {
		s.pinner = p
		if maxUpload > 0 {
			s.maxUpload = maxUpload
		}
	}
}

// WithPublicOrigin sets the front-end origin used in verification links.
// An empty origin keeps DefaultPublicOrigin.
func WithPublicOrigin(origin string) Option {
	return func(s *Server) {
		if origin != "" {
			s.origin = origin
		}
	}
}

// WithMaxWatchers caps concurrent websocket watchers.
func WithMaxWatchers(n int) Option {
	return func(s *Server) {
		s.maxWatchers = n
	}
}

func WithTimeouts(read, write, shutdown time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		if shutdown > 0 {
			s.shutdownTimeout = shutdown
		}
	}
}

// New creates a new Server listening on addr.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		mux:             http.NewServeMux(),
		origin:          DefaultPublicOrigin,
		maxUpload:       defaultMaxUpload,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.store == nil {
		s.store = session.NewMemoryStore(session.WithLogger(s.log))
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(0, time.Minute)
	}
	s.hub = ws.NewHub(s.log, func(delta int) {
		s.metrics.WatchersActive.Add(float64(delta))
	}, ws.WithMaxConns(s.maxWatchers))

	s.routes()
	s.handler = s.logRequests(cors(s.mux))
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go s.pruneLimiter(pruneCtx)

	s.log.Info("server listening", "addr", s.addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	s.log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Prune()
		}
	}
}

func (s *Server) routes() {
	limit := s.limiter.Middleware(func(r *http.Request) {
		s.metrics.RateLimited.Inc()
		s.log.Warn("rate limited", "ip", s.limiter.Key(r), "path", r.URL.Path)
	})

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	s.mux.Handle("POST /api/sessions", limit(http.HandlerFunc(s.handleCreateSession)))
	s.mux.HandleFunc("GET /api/sessions", s.handleGetSession)
	s.mux.Handle("POST /api/sessions/{sessionId}/participants", limit(http.HandlerFunc(s.handleAddParticipant)))
	s.mux.HandleFunc("GET /api/sessions/{sessionId}/qr", s.handleSessionQR)
	s.mux.Handle("GET /api/sessions/{sessionId}/ws", ws.NewHandler(s.hub, s.store, s.log))

	s.mux.HandleFunc("GET /api/qr", s.handleQR)
	s.mux.Handle("POST /api/media", limit(http.HandlerFunc(s.handleUploadMedia)))
}
