// Package http exposes the benchmark engine over a JSON HTTP API.
//
// Routes:
//   - GET    /health                 liveness and pool usage
//   - POST   /api/bench              run a test case in benchmark mode
//   - POST   /api/repl               run a test case in REPL mode
//   - GET    /api/cases              all known cases
//   - GET    /api/cases/:id          one case's state
//   - DELETE /api/cases/:id          cancel a running case (?forget=true drops a finished one)
//   - POST   /api/suites/run         run a suite and wait for every case
//   - POST   /api/share              encode a config into a share link
//   - GET    /api/share/:encoded     decode a shared config
//   - GET    /api/search-package?q=  npm search mapped to CDN module URLs
//   - POST   /api/publish            forward a benchmark to the shortcode worker
//   - GET    /api/stats              metrics snapshot
//
// Errors are returned as {"error": message}; run failures are not HTTP
// errors and are reported inside the case state.
package http
