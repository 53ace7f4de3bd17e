// Package httpapi is the HTTP transport of the relay: uploads, object serving,
// metadata lookups, health probes and metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"refile-go/internal/metrics"
	"refile-go/internal/refile"
	"refile-go/internal/staging"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "refile-server"

// multipartOverhead is the allowance for form boundaries and part headers on top
// of the file size limit.
const multipartOverhead = 1 << 20

type Config struct {
	ListenAddr string
	// APIKey enables bearer authentication on uploads when set.
	APIKey          string
	MaxUploadSize   int64
	ShutdownTimeout time.Duration
	Version         string
}

type Server struct {
	cfg     Config
	svc     *refile.RelayService
	scratch *staging.Area
	metrics *metrics.Metrics
	log     *slog.Logger
	isReady atomic.Bool

	srv *http.Server
}

// New creates the server. Uploads are staged in scratch before they reach the service.
// m may be nil, in which case /metrics is not mounted.
func New(cfg Config, svc *refile.RelayService, scratch *staging.Area, m *metrics.Metrics, log *slog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		scratch: scratch,
		metrics: m,
		log:     log,
	}
	s.isReady.Store(true)
	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(cors)
	if s.metrics != nil {
		mux.Use(s.metrics.Middleware)
	}

	mux.With(s.httpLogger, s.requireAPIKey).Post("/upload", s.handleUpload)
	mux.With(s.httpLogger).Get("/f/{id}/{filename}", s.handleServe)
	mux.With(s.httpLogger).Head("/f/{id}/{filename}", s.handleServe)
	mux.With(s.httpLogger).Get("/meta/{id}", s.handleMeta)

	mux.Get("/health", s.handleHealth)
	mux.Get("/livez", s.handleLivenessCheck)
	mux.Get("/readyz", s.handleReadinessCheck)
	if s.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	return mux
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully. Readiness
// flips to false before in-flight requests are drained.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", "listenAddress", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.isReady.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	s.log.Info("HTTP server gracefully stopped")
	return nil
}

// Ready reports whether the server accepts traffic.
func (s *Server) Ready() bool {
	return s.isReady.Load()
}
