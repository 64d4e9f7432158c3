package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/jsbench/internal/shared/codec"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
	"github.com/GriffinCanCode/jsbench/internal/shared/utils"
)

// ShareRequest asks for a share link
type ShareRequest struct {
	Config  types.Config `json:"config"`
	Compact bool         `json:"compact"`
}

// ShareResponse holds the encoded config and a link carrying it
type ShareResponse struct {
	Encoded string `json:"encoded"`
	URL     string `json:"url"`
}

// Share encodes a config into a share link
func (h *Handlers) Share(c *gin.Context) {
	var req ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := utils.ValidateConfig(req.Config); err != nil {
		badRequest(c, err)
		return
	}

	encode := codec.Serialize
	if req.Compact {
		encode = codec.SerializeCompact
	}
	encoded, err := encode(req.Config)
	if err != nil {
		h.fail(c, err)
		return
	}
	link, err := codec.ShareURL(h.publicURL, req.Config, req.Compact)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ShareResponse{Encoded: encoded, URL: link})
}

// Unshare decodes a shared config
func (h *Handlers) Unshare(c *gin.Context) {
	cfg, err := codec.Deserialize(c.Param("encoded"))
	if err != nil {
		if errors.Is(err, types.ErrDeserialize) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": types.KindDeserialize})
			return
		}
		h.fail(c, err)
		return
	}
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no configuration"})
		return
	}

	// plain and compact links to the same config share an ETag
	if sum, err := utils.FingerprintJSON(cfg); err == nil {
		etag := `"` + sum + `"`
		c.Header("ETag", etag)
		c.Header("Cache-Control", "public, max-age=86400, immutable")
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}
	c.JSON(http.StatusOK, cfg)
}
