package server

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/channel"
	"github.com/GriffinCanCode/jsbench/internal/engine/controller"
	"github.com/GriffinCanCode/jsbench/internal/engine/loader"
	"github.com/GriffinCanCode/jsbench/internal/engine/sandbox"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/config"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/monitoring"
)

// Engine is the execution side of jsbench: loader, context pool, harness
// and controller, wired from one configuration
type Engine struct {
	Loader     *loader.HTTP
	Harness    *channel.Harness
	Controller *controller.Controller

	logger    *zap.Logger
	stop      chan struct{}
	closeOnce sync.Once
}

// SandboxConfig derives execution context limits from cfg
func SandboxConfig(cfg *config.Config) sandbox.Config {
	h := cfg.Harness
	return sandbox.Config{
		Timeout:           h.Timeout,
		MaxCallStackSize:  h.MaxCallStackSize,
		WarmupIterations:  h.WarmupIterations,
		WarmupDuration:    h.WarmupDuration,
		MinSampleDuration: h.MinSampleDuration,
		MinBatchDuration:  h.MinBatchDuration,
		MaxLogEntries:     h.MaxLogEntries,
		CDNURL:            cfg.Proxy.CDNURL,
	}
}

// LoaderClient builds the outbound client used to fetch dependencies
func LoaderClient(cfg *config.Config) *httpclient.Client {
	opts := httpclient.DefaultOptions()
	opts.Timeout = cfg.Loader.FetchTimeout
	opts.Retries = cfg.Loader.FetchRetries
	opts.RateLimit = cfg.Loader.RateLimit
	return httpclient.New(opts)
}

// AllowedHosts is the loader allow-list with the configured CDN's host added.
// Nil when any host is allowed.
func AllowedHosts(cfg *config.Config) []string {
	hosts := cfg.Loader.AllowedHosts
	if len(hosts) == 0 {
		return nil
	}
	for _, h := range hosts {
		if strings.TrimSpace(h) == "*" {
			return nil
		}
	}
	out := append([]string(nil), hosts...)
	if u, err := url.Parse(cfg.Proxy.CDNURL); err == nil && u.Hostname() != "" {
		out = append(out, u.Hostname())
	}
	return out
}

// NewEngine creates the engine. metrics may be nil.
func NewEngine(cfg *config.Config, metrics *monitoring.Metrics, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fetcher := loader.NewHTTP(LoaderClient(cfg), cfg.Loader.CacheTTL, logger.Named("loader")).
		WithAllowedHosts(AllowedHosts(cfg)...)
	if metrics != nil {
		fetcher = fetcher.WithMetrics(metrics)
	}

	pool, err := sandbox.NewPool(SandboxConfig(cfg), cfg.Harness.PoolSize, fetcher, logger.Named("sandbox"))
	if err != nil {
		return nil, fmt.Errorf("failed to create context pool: %w", err)
	}

	harness := channel.NewHarness(pool, logger.Named("harness"))
	ctrl := controller.New(harness, logger.Named("controller"))
	if metrics != nil {
		harness = harness.WithMetrics(metrics)
		ctrl = ctrl.WithMetrics(metrics)
	}

	e := &Engine{
		Loader:     fetcher,
		Harness:    harness,
		Controller: ctrl,
		logger:     logger,
		stop:       make(chan struct{}),
	}
	if cfg.Loader.CacheTTL > 0 {
		go e.purgeLoop(cfg.Loader.CacheTTL)
	}

	logger.Info("Engine initialized",
		zap.Int("pool_size", cfg.Harness.PoolSize),
		zap.Duration("timeout", cfg.Harness.Timeout),
		zap.String("cdn", cfg.Proxy.CDNURL),
	)
	return e, nil
}

// purgeLoop drops expired dependency sources every ttl
func (e *Engine) purgeLoop(ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if n := e.Loader.Purge(); n > 0 {
				e.logger.Debug("Purged dependency cache", zap.Int("entries", n))
			}
		}
	}
}

// Close stops the controller, then the harness and its contexts
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.stop)
		e.Controller.Close()
		err = e.Harness.Close()
	})
	return err
}
