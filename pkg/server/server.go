package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/rampart/pkg/config"
	"mercator-hq/rampart/pkg/policy/engine"
	"mercator-hq/rampart/pkg/policy/evaluator"
	"mercator-hq/rampart/pkg/policy/merger"
	"mercator-hq/rampart/pkg/telemetry/health"
	"mercator-hq/rampart/pkg/telemetry/metrics"
	"mercator-hq/rampart/pkg/telemetry/tracing"
)

// Engine is the evaluation surface the server needs.
type Engine interface {
	Evaluate(ctx context.Context, artifact *evaluator.Artifact) (*engine.Result, error)
	Resolve(ctx context.Context, identifier string) (*merger.EffectivePolicy, error)
}

// Options holds the optional collaborators of a Server.
type Options struct {
	Health  *health.Checker
	Metrics *metrics.Collector

	// MetricsPath defaults to config.DefaultMetricsPath.
	MetricsPath string

	Version   string
	Commit    string
	BuildTime string

	Logger *slog.Logger
}

// Server serves the evaluation API.
type Server struct {
	cfg    config.ServerConfig
	engine Engine
	opts   Options
	logger *slog.Logger

	mu         sync.RWMutex
	httpServer *http.Server
	listener   net.Listener
	running    bool
}

// New creates a server. Zero timeouts fall back to the config defaults.
func New(cfg config.ServerConfig, eng Engine, opts Options) *Server {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = config.DefaultListenAddress
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = config.DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultWriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.DefaultMaxBodyBytes
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = config.DefaultMetricsPath
	}
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:    cfg,
		engine: eng,
		opts:   opts,
		logger: logger.With("component", "server"),
	}
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	var tlsConfig *tls.Config
	if s.cfg.TLS.Enabled {
		var err error
		if tlsConfig, err = buildTLS(ctx, s.cfg.TLS, s.logger); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.running = true
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting evaluation server", "address", ln.Addr().String(), "tls", tlsConfig != nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown stops accepting requests and waits for in-flight ones within
// the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	s.logger.Info("Initiating graceful shutdown", "timeout", s.cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.running = false
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("Evaluation server stopped")
	return nil
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	var limiter *rateLimiter
	if s.cfg.RateLimit.Enabled {
		limiter = newRateLimiter(s.cfg.RateLimit)
	}
	var keys *apiKeys
	if s.cfg.Auth.Enabled {
		keys = &apiKeys{keys: s.cfg.Auth.Keys}
	}
	api := func(h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		if limiter != nil {
			handler = s.limit(limiter, handler)
		}
		if keys != nil {
			handler = s.authenticate(keys, handler)
		}
		return handler
	}
	mux.Handle("POST /v1/evaluate", api(s.handleEvaluate))
	mux.Handle("POST /v1/resolve", api(s.handleResolve))
	mux.Handle("/healthz", s.opts.Health.LivenessHandler())
	mux.Handle("/readyz", s.opts.Health.ReadinessHandler())
	mux.Handle("/version", health.VersionHandler(s.opts.Version, s.opts.Commit, s.opts.BuildTime))
	if s.opts.Metrics != nil {
		mux.Handle(s.opts.MetricsPath, s.opts.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = s.logging(handler)
	handler = tracing.Middleware(handler)
	handler = requestID(handler)
	handler = s.recovery(handler)
	return handler
}
