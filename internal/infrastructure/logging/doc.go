// Package logging provides structured logging using uber/zap.
//
// Two encodings are supported:
//   - Production: unsampled JSON lines for log collectors
//   - Development: colored console output
//
// Run lifecycle events carry a stable field set so a single case can be
// followed across the controller, harness and loader:
//
//	logger.Info("Run finished", logging.Run(id, string(mode), attempt)...)
package logging
