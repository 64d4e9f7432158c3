/*
Package monitoring provides Prometheus metrics for the benchmark server.

Collectors are registered on a private registry owned by Metrics and exposed
through Metrics.Handler. Tracked:

  - HTTP requests by route template and status
  - Runs by mode, terminal status and error kind, with wall time
  - Benchmark throughput
  - Pool occupancy and dependency fetches
  - WebSocket connections and messages

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "benchmark")
	// ... run ...
	timer.Stop("success", "")
*/
package monitoring
