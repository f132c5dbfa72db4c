// Package ws streams live console status to UI clients over WebSocket.
//
// One connection serves two flows:
//   - push: retry registry snapshots after every change and once per
//     countdown tick while entries are pending
//   - request/reply: "status" returns connection, worker, and
//     degradation state; "ping" answers "pong"
//
// Clients that only poll the REST surface see countdowns advance once
// per request; a WebSocket client sees every tick.
//
// Example Usage:
//
//	handler := ws.NewHandler(scheduler, channels, workers, aggregator, log)
//	router.GET("/stream", handler.HandleConnection)
package ws
