// Package server provides HTTP server setup and initialization for the
// console backend.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (recovery, tracing, metrics, CORS, rate limiting)
//   - Platform REST client and per-channel realtime streams
//   - Rate limit retry scheduler and events polling fallback
//   - Degradation aggregator fed by streams and health probes
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger (production or development)
//  3. Build platform client, scheduler, fetcher, aggregator, streams
//  4. Setup HTTP routes and middleware
//  5. Run: connect streams, start the health probe, serve HTTP
//  6. Graceful shutdown on signal
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
