package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route templates keep label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures one run
type Timer struct {
	start   time.Time
	metrics *Metrics
	mode    string
}

// NewTimer marks a run as started and begins timing it
func NewTimer(metrics *Metrics, mode string) *Timer {
	metrics.RunStarted()
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		mode:    mode,
	}
}

// Stop records the run's terminal status
func (t *Timer) Stop(status, errorKind string) {
	t.metrics.RunFinished(t.mode, status, errorKind, time.Since(t.start))
}
