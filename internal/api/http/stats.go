package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/jsbench/internal/engine/sandbox"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// StatsSnapshot is the JSON view of server activity
type StatsSnapshot struct {
	Timestamp time.Time            `json:"timestamp"`
	Metrics   *monitoring.Snapshot `json:"metrics,omitempty"`
	Pool      *sandbox.PoolStats   `json:"pool,omitempty"`
	InFlight  int                  `json:"in_flight"`
	Cases     map[types.Status]int `json:"cases"`
	Summary   StatsSummary         `json:"summary"`
}

// StatsSummary provides high-level figures
type StatsSummary struct {
	ErrorRate     float64 `json:"error_rate"`
	RunFailRate   float64 `json:"run_fail_rate"`
	Utilization   float64 `json:"utilization"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Stats returns a snapshot of server activity
func (h *Handlers) Stats(c *gin.Context) {
	snapshot := StatsSnapshot{
		Timestamp: time.Now(),
		Cases:     make(map[types.Status]int),
	}
	for _, ev := range h.controller.List() {
		snapshot.Cases[ev.Status()]++
	}

	if h.harness != nil {
		pool := h.harness.Stats()
		snapshot.Pool = &pool
		snapshot.InFlight = h.harness.InFlight()
		if pool.Size > 0 {
			snapshot.Summary.Utilization = float64(pool.InUse) / float64(pool.Size)
		}
	}

	snapshot.Summary.UptimeSeconds = time.Since(h.started).Seconds()
	if h.metrics != nil {
		m := h.metrics.Snapshot()
		snapshot.Metrics = &m
		if m.TotalRequests > 0 {
			snapshot.Summary.ErrorRate = float64(m.TotalErrors) / float64(m.TotalRequests)
		}
		if finished := m.RunsSucceeded + m.RunsFailed; finished > 0 {
			snapshot.Summary.RunFailRate = float64(m.RunsFailed) / float64(finished)
		}
		snapshot.Summary.UptimeSeconds = m.UptimeSeconds
	}

	c.JSON(http.StatusOK, snapshot)
}
