package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/ArsPalazzz/memora-api-sub000/internal/infra/logger"
)

// Logger emits one access log line per request.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		reqLog := appLogger.WithContext(log, c.Request.Context())
		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
		}
		if sub, ok := GetAuthenticatedUserSub(c); ok {
			fields = append(fields, zap.String("user_sub", sub))
		}

		switch {
		case len(c.Errors) > 0:
			reqLog.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
		case c.Writer.Status() >= 500:
			reqLog.Error("request failed", fields...)
		default:
			reqLog.Info("request completed", fields...)
		}
	}
}
