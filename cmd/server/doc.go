// Package main is the entry point for the Sentinel console backend.
//
// The backend sits between the operator console UI and the monitoring
// platform, absorbing platform flakiness so the console stays
// responsive while cameras, streams, or the platform itself misbehave.
//
// Architecture:
//
//	Console UI (browser) → Go Backend → Platform REST API
//	                                  → Platform event streams (WebSocket)
//
// The server provides:
//   - Connection state tracking per realtime channel, with bounded
//     automatic reconnection and manual retry
//   - A process-wide registry of pending rate limit retries the
//     operator can inspect and cancel
//   - REST polling fallback while the realtime transport is down
//   - Degraded mode signalling from transport and platform health
//   - Worker status aggregation from platform stream events
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional YAML file overlay (-config)
//   - Defaults for development
//
// Usage:
//
//	# Environment configuration
//	./server
//
//	# With a config file and port override
//	./server -config console.yaml -port 9000
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
