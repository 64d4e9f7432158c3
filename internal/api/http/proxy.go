package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/jsbench/internal/providers/publish"
	"github.com/GriffinCanCode/jsbench/internal/shared/utils"
)

// upstreamStatus reports upstream failures as 502, keeping the upstream's
// client errors visible
func upstreamStatus(err error) int {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status < 500 {
		return statusErr.Status
	}
	return http.StatusBadGateway
}

// SearchPackage proxies an npm search
func (h *Handlers) SearchPackage(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "package search is not configured"})
		return
	}
	resp, err := h.search.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.logger.Warn("Package search failed", zap.String("query", c.Query("q")), zap.Error(err))
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Publish forwards the request body to the shortcode worker
func (h *Handlers) Publish(c *gin.Context) {
	if h.publisher == nil || !h.publisher.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": publish.ErrNotConfigured.Error()})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := utils.ValidateJSON(body); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.publisher.Publish(c.Request.Context(), body)
	if err != nil {
		h.logger.Warn("Publish failed", zap.Error(err))
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
