// Package logging provides structured logging using uber/zap.
//
// Production mode emits JSON for machine parsing; development mode
// emits colored console output. Components receive child loggers via
// Component so every line carries its origin.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("console starting", zap.String("port", "8000"))
//	logger.Error("stream dial failed", zap.Error(err))
package logging
