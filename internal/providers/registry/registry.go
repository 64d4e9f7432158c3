// Package registry proxies npm package search and maps each hit to an
// importable CDN module URL.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/GriffinCanCode/jsbench/internal/infrastructure/httpclient"
)

const defaultSize = 10

// Package is one search hit
type Package struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// SearchResponse is returned to callers of Search
type SearchResponse struct {
	Results []Package `json:"results"`
}

// npm registry search payload, trimmed to what is used
type npmSearch struct {
	Objects []struct {
		Package struct {
			Name        string `json:"name"`
			Version     string `json:"version"`
			Description string `json:"description"`
		} `json:"package"`
	} `json:"objects"`
}

// Client searches the npm registry
type Client struct {
	http        *httpclient.Client
	registryURL string
	cdnURL      string
	size        int
	sanitizer   *bluemonday.Policy
}

// New creates a registry client
func New(http *httpclient.Client, registryURL, cdnURL string) *Client {
	return &Client{
		http:        http,
		registryURL: strings.TrimRight(registryURL, "/"),
		cdnURL:      strings.TrimRight(cdnURL, "/"),
		size:        defaultSize,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// Search queries the registry. An empty query returns no results without a
// network call. Transport and upstream errors are returned unchanged.
func (c *Client) Search(ctx context.Context, query string) (*SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &SearchResponse{Results: []Package{}}, nil
	}

	endpoint := c.registryURL + "/-/v1/search"
	resp, err := c.http.Do(ctx, endpoint, func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetQueryParam("text", query).
			SetQueryParam("size", strconv.Itoa(c.size)).
			SetHeader("Accept", "application/json").
			Get(endpoint)
	})
	if err != nil {
		return nil, err
	}

	var payload npmSearch
	if err := sonic.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}

	results := make([]Package, 0, len(payload.Objects))
	for _, obj := range payload.Objects {
		p := obj.Package
		if p.Name == "" {
			continue
		}
		results = append(results, Package{
			Name:        p.Name,
			Version:     p.Version,
			URL:         c.ModuleURL(p.Name, p.Version),
			Description: strings.TrimSpace(c.sanitizer.Sanitize(p.Description)),
		})
	}
	return &SearchResponse{Results: results}, nil
}

// ModuleURL returns the CDN ESM entry for name at version
func (c *Client) ModuleURL(name, version string) string {
	spec := name
	if version != "" {
		spec += "@" + version
	}
	return c.cdnURL + "/" + escapePackage(spec) + "/+esm"
}

// escapePackage escapes each path segment, keeping the scope separator
func escapePackage(spec string) string {
	parts := strings.Split(spec, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
