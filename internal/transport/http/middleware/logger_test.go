package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_CarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(RequestID(), Logger(zap.New(core)))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("store unavailable"))
		c.Status(http.StatusInternalServerError)
	})

	for _, path := range []string{"/ok", "/boom"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(requestIDHeader, "req-"+path[1:])
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected 2 access log entries, got %d", len(entries))
	}

	ok := entries[0]
	if ok.Level != zapcore.InfoLevel || ok.ContextMap()["request_id"] != "req-ok" {
		t.Fatalf("unexpected success entry: level=%s fields=%v", ok.Level, ok.ContextMap())
	}

	failed := entries[1]
	if failed.Level != zapcore.ErrorLevel || failed.ContextMap()["request_id"] != "req-boom" {
		t.Fatalf("unexpected failure entry: level=%s fields=%v", failed.Level, failed.ContextMap())
	}
	if _, ok := failed.ContextMap()["errors"]; !ok {
		t.Fatalf("expected attached errors on failure entry")
	}
}
