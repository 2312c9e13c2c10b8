// Package server runs the data and admin HTTP listeners of the content API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config holds configuration for creating a Server.
type Config struct {
	DataAddress     string
	AdminAddress    string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Handler serves the content routes on the data listener.
	Handler http.Handler
	Metrics *Metrics
	Logger  *slog.Logger
}

// Server owns both listeners and the readiness flag.
type Server struct {
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
	ready   atomic.Bool

	data  *http.Server
	admin *http.Server
}

// New constructs a server. It is not ready until Serve has bound both listeners.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	handler := cfg.Handler
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s := &Server{cfg: cfg, metrics: metrics, logger: logger}
	s.data = &http.Server{
		Handler:      metrics.Middleware(handler),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	s.admin = &http.Server{
		Handler:           s.AdminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Metrics returns the collectors served on /metrics.
func (s *Server) Metrics() *Metrics { return s.metrics }

// SetReady flips the /readyz answer.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

// AdminHandler serves /metrics, /healthz and /readyz.
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

// Run binds the configured addresses and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	dataLn, err := net.Listen("tcp", s.cfg.DataAddress)
	if err != nil {
		return fmt.Errorf("bind data listener %s: %w", s.cfg.DataAddress, err)
	}
	adminLn, err := net.Listen("tcp", s.cfg.AdminAddress)
	if err != nil {
		_ = dataLn.Close()
		return fmt.Errorf("bind admin listener %s: %w", s.cfg.AdminAddress, err)
	}
	return s.Serve(ctx, dataLn, adminLn)
}

// Serve serves on the given listeners until ctx is canceled, then shuts both
// servers down within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, dataLn, adminLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	serve := func(name string, srv *http.Server, ln net.Listener) {
		g.Go(func() error {
			s.logger.Info("server listening", "listener", name, "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
	}
	serve("data", s.data, dataLn)
	serve("admin", s.admin, adminLn)
	s.SetReady(true)

	g.Go(func() error {
		<-gctx.Done()
		s.SetReady(false)
		s.logger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(s.data.Shutdown(shutdownCtx), s.admin.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
