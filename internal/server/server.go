package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/jsbench/internal/api/http"
	"github.com/GriffinCanCode/jsbench/internal/api/middleware"
	"github.com/GriffinCanCode/jsbench/internal/api/ws"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/config"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/logging"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsbench/internal/providers/publish"
	"github.com/GriffinCanCode/jsbench/internal/providers/registry"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	engine  *Engine
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return New(cfg, logger)
}

// New creates a server that logs to logger
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger.Info("Initializing jsbench server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("public_url", cfg.Server.PublicURL),
	)

	metrics := monitoring.NewMetrics()

	engine, err := NewEngine(cfg, metrics, logger.Logger)
	if err != nil {
		return nil, err
	}

	// Collaborator calls are user-initiated; failures surface immediately.
	proxyOpts := httpclient.DefaultOptions()
	proxyOpts.Retries = 0
	proxyOpts.Timeout = cfg.Loader.FetchTimeout
	proxyClient := httpclient.New(proxyOpts)

	search := registry.New(proxyClient, cfg.Proxy.RegistryURL, cfg.Proxy.CDNURL)
	publisher := publish.New(proxyClient, cfg.Proxy.PublishURL)
	if !publisher.Enabled() {
		logger.Info("Publishing disabled, no worker URL configured")
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery(logger.Logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Named("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	var proxyLimit gin.HandlerFunc
	if rps := cfg.RateLimit.ProxyRequestsPerSecond; rps > 0 {
		proxyLimit = middleware.GlobalRateLimit(middleware.RateLimitConfig{RequestsPerSecond: rps, Burst: rps})
	}

	handlers := apihttp.NewHandlers(apihttp.Options{
		Controller: engine.Controller,
		Harness:    engine.Harness,
		Search:     search,
		Publisher:  publisher,
		Metrics:    metrics,
		Logger:     logger.Named("api"),
		PublicURL:  cfg.Server.PublicURL,
		TypeScript: cfg.Preferences.TypeScript,
		ProxyLimit: proxyLimit,
	})
	handlers.Register(router)

	wsHandler := ws.NewHandler(engine.Controller, metrics, logger.Named("ws"), cfg.Preferences.TypeScript)
	router.GET("/stream", wsHandler.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine:  engine,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}

// Engine returns the execution engine behind the API
func (s *Server) Engine() *Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until it stops. A graceful
// Shutdown is not an error.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for active ones until ctx ends,
// then closes the engine
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	err := s.http.Shutdown(ctx)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the engine and flushes the logger
func (s *Server) Close() error {
	err := s.engine.Close()
	if err != nil {
		s.logger.Error("Failed to close engine", zap.Error(err))
	}
	_ = s.logger.Sync()
	return err
}
