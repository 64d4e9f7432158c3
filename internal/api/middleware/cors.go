package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig lists what cross-origin browser clients may do
type CORSConfig struct {
	// AllowOrigins holds exact origins; "*" allows any origin
	AllowOrigins  []string
	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
	MaxAge        time.Duration
}

// DefaultCORSConfig opens the API to browser front ends on any origin.
// Credentials are never allowed.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Cache-Control", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
}

// WithOrigins returns a copy of cfg limited to origins; an empty list keeps cfg's
func (cfg CORSConfig) WithOrigins(origins []string) CORSConfig {
	if len(origins) > 0 {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (cfg CORSConfig) anyOrigin() bool {
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// CORS answers preflights and tags responses per cfg. WebSocket upgrades on
// /stream are covered too.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:    cfg.AllowMethods,
		AllowHeaders:    cfg.AllowHeaders,
		ExposeHeaders:   cfg.ExposeHeaders,
		AllowWebSockets: true,
		MaxAge:          cfg.MaxAge,
	}
	if cfg.anyOrigin() {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}
	return cors.New(c)
}
