// Package server assembles jsbench: configuration, logging, metrics, the
// execution engine, the npm collaborators and the HTTP/WebSocket API.
//
// Server Lifecycle:
//  1. Load configuration from the environment
//  2. Initialize logger (production or development)
//  3. Build the engine: dependency loader, context pool, harness, controller
//  4. Create the package-search and publish clients
//  5. Setup HTTP routes and middleware
//  6. Start HTTP server
//  7. Graceful shutdown on signal
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Run()
//	<-ctx.Done()
//	srv.Shutdown(context.Background())
package server
