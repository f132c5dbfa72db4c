package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartSpanMintsTraceID(t *testing.T) {
	tracer := New("console", zap.NewNop())
	defer tracer.Close()

	span, ctx := tracer.StartSpan(context.Background(), "list-events")
	require.NotEmpty(t, span.TraceID)
	require.NotEmpty(t, span.SpanID)
	assert.Empty(t, span.ParentID)
	assert.Equal(t, "console", span.Service)

	child, _ := tracer.StartSpan(ctx, "page-two")
	assert.Equal(t, span.TraceID, child.TraceID)
	assert.Equal(t, span.SpanID, child.ParentID)
	assert.NotEqual(t, span.SpanID, child.SpanID)
}

func TestInjectExtractRoundTrip(t *testing.T) {
	tracer := New("console", zap.NewNop())
	defer tracer.Close()

	span, ctx := tracer.StartSpan(context.Background(), "probe")

	headers := make(map[string]string)
	InjectTraceContext(ctx, headers)
	assert.Equal(t, string(span.TraceID), headers["X-Trace-ID"])
	assert.Equal(t, string(span.SpanID), headers["X-Span-ID"])

	traceID, spanID := ExtractTraceContext(headers)
	assert.Equal(t, span.TraceID, traceID)
	assert.Equal(t, span.SpanID, spanID)
}

func TestSubmitAfterClose(t *testing.T) {
	tracer := New("console", zap.NewNop())
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	span.Finish()
	tracer.Submit(span) // must not panic or block
}

func TestHTTPMiddlewarePropagatesInboundTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := New("console", zap.NewNop())
	defer tracer.Close()

	var seen TraceID
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/probe", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Trace-ID", "trace-from-ui")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, TraceID("trace-from-ui"), seen)
	assert.Equal(t, "trace-from-ui", w.Header().Get("X-Trace-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Span-ID"))
}

func TestHTTPMiddlewareMintsTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := New("console", zap.NewNop())
	defer tracer.Close()

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/probe", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	traceID := w.Header().Get("X-Trace-ID")
	require.NotEmpty(t, traceID)
	assert.True(t, strings.HasPrefix(traceID, "req_"))
}
