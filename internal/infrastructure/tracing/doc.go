/*
Package tracing correlates operator actions with the platform calls they
cause.

The UI sends X-Trace-ID and X-Span-ID headers with each request; the
middleware adopts them (or mints fresh ones), tags the request span, and
echoes the headers back. Outbound platform requests carry the same
headers, so one trace ID links a dashboard click, the console log lines
it produced, and the platform's own logs.

# Usage

	tracer := tracing.New("console", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Spans are collected on a buffered channel and written to the log
asynchronously; when the buffer is full, spans are dropped rather than
blocking a request.
*/
package tracing
