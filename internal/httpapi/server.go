// Package httpapi serves synthesis over HTTP for clients that cannot speak
// MCP. Every route except /health requires the configured API key.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/metrics"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/orchestrator"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/tts"
)

// ErrNoAPIKey is returned by New when no key is configured and
// unauthenticated access was not explicitly allowed.
var ErrNoAPIKey = errors.New("http.api_key is not set; set it or enable http.allow_unauthenticated")

// Defaults for Config.
const (
	DefaultAddr            = "127.0.0.1:59125"
	DefaultRateLimit       = 2
	DefaultRateBurst       = 5
	DefaultShutdownTimeout = 10 * time.Second
	DefaultWriteTimeout    = 6 * time.Minute
	DefaultMaxBodyBytes    = 1 << 20
)

// StatusReporter reports engine readiness. *tts.Selector satisfies it.
type StatusReporter interface {
	Status(ctx context.Context) tts.EngineStatus
}

// Config holds the HTTP settings.
type Config struct {
	Addr   string
	APIKey string

	// AllowUnauthenticated permits starting without an API key.
	AllowUnauthenticated bool

	// RateLimit is the sustained number of synthesis requests per second.
	RateLimit float64
	RateBurst int

	ShutdownTimeout time.Duration

	// WriteTimeout must leave room for a full synthesis.
	WriteTimeout time.Duration

	MaxBodyBytes int64
}

// Server is the HTTP transport.
type Server struct {
	cfg     Config
	svc     *orchestrator.Service
	engine  StatusReporter
	router  *gin.Engine
	limiter *rate.Limiter
}

// New validates cfg and builds the router.
func New(cfg Config, svc *orchestrator.Service, engine StatusReporter) (*Server, error) {
	if cfg.APIKey == "" {
		if !cfg.AllowUnauthenticated {
			return nil, ErrNoAPIKey
		}
		log.Warn("HTTP API is running without authentication")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		engine:  engine,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}

	r := gin.New()
	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}
	r.Use(requestID(), accessLog(), gin.Recovery(), apiKeyAuth(cfg.APIKey))

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/tts", rateLimit(s.limiter), s.synthesize)

	s.router = r
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.cfg.Addr }

// Run listens until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	return nil
}
