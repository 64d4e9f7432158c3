package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/controller"
	"github.com/GriffinCanCode/jsbench/internal/engine/sandbox"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsbench/internal/providers/publish"
	"github.com/GriffinCanCode/jsbench/internal/providers/registry"
	"github.com/GriffinCanCode/jsbench/internal/shared/utils"
)

// PackageSearcher finds npm packages
type PackageSearcher interface {
	Search(ctx context.Context, query string) (*registry.SearchResponse, error)
}

// Publisher forwards benchmarks to the shortcode worker
type Publisher interface {
	Enabled() bool
	Publish(ctx context.Context, body []byte) (*publish.Response, error)
}

// HarnessStats reports execution context usage
type HarnessStats interface {
	Stats() sandbox.PoolStats
	InFlight() int
}

// Options wires the handlers to the engine and collaborators
type Options struct {
	Controller *controller.Controller
	Harness    HarnessStats
	Search     PackageSearcher
	Publisher  Publisher
	Metrics    *monitoring.Metrics
	Logger     *zap.Logger
	PublicURL  string // base of share links
	TypeScript bool   // default when a request does not say
	// ProxyLimit guards the routes that call upstream services; nil means none
	ProxyLimit gin.HandlerFunc
}

// Handlers contains all HTTP handlers
type Handlers struct {
	controller *controller.Controller
	harness    HarnessStats
	search     PackageSearcher
	publisher  Publisher
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	publicURL  string
	typescript bool
	proxyLimit gin.HandlerFunc
	started    time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		controller: opts.Controller,
		harness:    opts.Harness,
		search:     opts.Search,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     logger,
		publicURL:  opts.PublicURL,
		typescript: opts.TypeScript,
		proxyLimit: opts.ProxyLimit,
		started:    time.Now(),
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.POST("/bench", h.Bench)
	api.POST("/repl", h.Repl)
	api.GET("/cases", h.ListCases)
	api.GET("/cases/:id", h.GetCase)
	api.DELETE("/cases/:id", h.CancelCase)
	api.POST("/suites/run", h.RunSuite)
	api.POST("/share", h.Share)
	api.GET("/share/:encoded", h.Unshare)
	api.GET("/search-package", h.proxied(h.SearchPackage)...)
	api.POST("/publish", h.proxied(h.Publish)...)
	api.GET("/stats", h.Stats)

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}

// proxied prepends the upstream rate limit, when configured
func (h *Handlers) proxied(handler gin.HandlerFunc) []gin.HandlerFunc {
	if h.proxyLimit == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{h.proxyLimit, handler}
}

// Health handles the liveness check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":         "healthy",
		"service":        "jsbench",
		"uptime_seconds": time.Since(h.started).Seconds(),
	}
	if h.harness != nil {
		body["pool"] = h.harness.Stats()
		body["in_flight"] = h.harness.InFlight()
	}
	c.JSON(http.StatusOK, body)
}

// statusFor maps engine and validation errors to HTTP statuses
func statusFor(err error) int {
	var ve *utils.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, controller.ErrInvalidCase):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrUnknownCase):
		return http.StatusNotFound
	case errors.Is(err, controller.ErrAlreadyRunning), errors.Is(err, controller.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, controller.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
