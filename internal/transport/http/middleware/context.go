package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TraceIDHeader carries the trace id back to the client.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the gin context key of the trace id.
	TraceIDKey = "trace_id"
	// UserSubKey is the gin context key of the authenticated user sub.
	UserSubKey = "user_sub"
)

// EnrichContext assigns a trace id to every request. An active OpenTelemetry span wins over the header.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := ""
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = c.GetHeader(TraceIDHeader)
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// GetTraceID returns the trace id assigned by EnrichContext.
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetAuthenticatedUserSub returns the user sub stored by RequireAuth.
func GetAuthenticatedUserSub(c *gin.Context) (string, bool) {
	value, exists := c.Get(UserSubKey)
	if !exists {
		return "", false
	}
	sub, ok := value.(string)
	return sub, ok && sub != ""
}
