package telemetry

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/config"
)

func TestSamplerBounds(t *testing.T) {
	cases := map[float64]string{
		1:   "ParentBased{root:AlwaysOnSampler",
		2:   "ParentBased{root:AlwaysOnSampler",
		0:   "ParentBased{root:AlwaysOffSampler",
		-1:  "ParentBased{root:AlwaysOffSampler",
		0.5: "ParentBased{root:TraceIDRatioBased{0.5}",
	}
	for rate, prefix := range cases {
		desc := sampler(rate).Description()
		if len(desc) < len(prefix) || desc[:len(prefix)] != prefix {
			t.Fatalf("rate %v: unexpected sampler %q", rate, desc)
		}
	}
}

func TestNewTracerProviderRequiresEndpoint(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), config.TelemetrySettings{TracingEnabled: true}, "test", zaptest.NewLogger(t))
	if err == nil {
		t.Fatalf("expected error without otlp endpoint")
	}
}
