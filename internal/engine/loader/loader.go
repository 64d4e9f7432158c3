// Package loader fetches dependency sources for the execution harness.
package loader

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// Fetcher returns the source text at a URL
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// HTTP fetches sources over http(s) with an in-memory TTL cache.
// The cache holds source text only; every execution context evaluates it afresh.
type HTTP struct {
	client  *httpclient.Client
	ttl     time.Duration
	logger  *zap.Logger
	metrics *monitoring.Metrics

	allowed map[string]bool // nil allows any host

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	body    []byte
	expires time.Time
}

// NewHTTP creates an HTTP fetcher; ttl <= 0 disables caching
func NewHTTP(client *httpclient.Client, ttl time.Duration, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{
		client: client,
		ttl:    ttl,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// WithAllowedHosts restricts fetching to the given hosts and their
// subdomains. "*" or an empty list allows any host.
func (h *HTTP) WithAllowedHosts(hosts ...string) *HTTP {
	h.allowed = nil
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "*" {
			h.allowed = nil
			return h
		}
		if host == "" {
			continue
		}
		if h.allowed == nil {
			h.allowed = make(map[string]bool)
		}
		h.allowed[host] = true
	}
	return h
}

// hostAllowed matches host or any parent domain against the allow-list
func (h *HTTP) hostAllowed(host string) bool {
	if h.allowed == nil {
		return true
	}
	host = strings.ToLower(host)
	for {
		if h.allowed[host] {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
}

// WithMetrics counts fetches by result
func (h *HTTP) WithMetrics(metrics *monitoring.Metrics) *HTTP {
	h.metrics = metrics
	return h
}

func (h *HTTP) record(result string) {
	if h.metrics != nil {
		h.metrics.RecordDependencyFetch(result)
	}
}

// Fetch downloads rawURL, failing with DependencyLoadError on any problem
func (h *HTTP) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := checkURL(rawURL)
	if err != nil {
		return nil, err
	}
	if !h.hostAllowed(u.Hostname()) {
		h.record("blocked")
		return nil, types.NewDependencyLoadError(nil, "failed to load %s: host %q is not allowed", rawURL, u.Hostname())
	}

	if body, ok := h.cached(rawURL); ok {
		h.record("cached")
		return body, nil
	}

	start := time.Now()
	resp, err := h.client.Get(ctx, rawURL)
	if err != nil {
		h.logger.Warn("Dependency fetch failed", zap.String("url", rawURL), zap.Error(err))
		h.record("error")
		return nil, types.NewDependencyLoadError(err, "failed to load %s: %v", rawURL, err)
	}

	body := resp.Body()
	if err := checkBody(rawURL, body); err != nil {
		h.record("error")
		return nil, err
	}
	h.record("ok")

	h.logger.Debug("Dependency fetched",
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if h.ttl > 0 {
		h.mu.Lock()
		h.cache[rawURL] = cacheEntry{body: body, expires: time.Now().Add(h.ttl)}
		h.mu.Unlock()
	}
	return body, nil
}

func (h *HTTP) cached(rawURL string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entry, ok := h.cache[rawURL]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.body, true
}

// Purge drops expired cache entries
func (h *HTTP) Purge() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range h.cache {
		if now.After(e.expires) {
			delete(h.cache, k)
			removed++
		}
	}
	return removed
}

// Static serves sources from a map; used for tests and offline runs
type Static map[string]string

// Fetch returns the mapped source or a DependencyLoadError
func (s Static) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	src, ok := s[rawURL]
	if !ok {
		return nil, types.NewDependencyLoadError(nil, "failed to load %s: not found", rawURL)
	}
	return []byte(src), nil
}

func checkURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, types.NewDependencyLoadError(err, "invalid dependency url %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, types.NewDependencyLoadError(nil, "unsupported scheme %q in %s", u.Scheme, rawURL)
	}
	return u, nil
}

// checkBody rejects HTML error pages served with a 200 status
func checkBody(rawURL string, body []byte) error {
	mt := mimetype.Detect(body)
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/html") || m.Is("application/xml") {
			return types.NewDependencyLoadError(nil, "failed to load %s: got %s instead of a script", rawURL, mt.String())
		}
	}
	if strings.HasPrefix(mt.String(), "image/") || strings.HasPrefix(mt.String(), "application/zip") {
		return types.NewDependencyLoadError(nil, "failed to load %s: got %s instead of a script", rawURL, mt.String())
	}
	return nil
}

// Resolve resolves spec against base. Bare specifiers map to cdn as <cdn>/<spec>/+esm.
func Resolve(base, spec, cdn string) (string, error) {
	switch {
	case strings.HasPrefix(spec, "http://"), strings.HasPrefix(spec, "https://"):
		return spec, nil
	case strings.HasPrefix(spec, "/"), strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"):
		if base == "" {
			return "", fmt.Errorf("cannot resolve relative specifier %q without a base url", spec)
		}
		b, err := url.Parse(base)
		if err != nil {
			return "", err
		}
		ref, err := url.Parse(spec)
		if err != nil {
			return "", err
		}
		return b.ResolveReference(ref).String(), nil
	default:
		if cdn == "" {
			return "", fmt.Errorf("cannot resolve bare specifier %q", spec)
		}
		return strings.TrimRight(cdn, "/") + "/" + spec + "/+esm", nil
	}
}
