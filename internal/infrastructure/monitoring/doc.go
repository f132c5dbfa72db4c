/*
Package monitoring provides Prometheus metrics for the console backend.

# Overview

The collector tracks the HTTP surface, the retry scheduler, per-channel
connection state, degradation mode, worker counts and inbound stream
traffic. It satisfies the recorder interfaces of the retry and
transport packages so domain code stays free of Prometheus types.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Wire into the scheduler and streams
	sched := retry.NewScheduler(retry.Config{Recorder: metrics}, log)

	// Time upstream calls
	timer := monitoring.NewTimer(metrics, "list_events")
	// ... perform call ...
	timer.Stop("success")

# Endpoints

Expose Prometheus exposition via promhttp and the JSON view for the UI:

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/metrics/json", func(c *gin.Context) { c.JSON(200, metrics.GetSnapshot()) })
*/
package monitoring
