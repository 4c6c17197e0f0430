package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetupDisabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if otel.GetTracerProvider() != prev {
		t.Error("disabled setup replaced the global provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Error(err)
	}
}

func TestSetupExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), Options{
		Enabled:     true,
		ServiceName: "agentkit-test",
		Writer:      &buf,
		Sync:        true,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, span := otel.Tracer("telemetry_test").Start(context.Background(), "probe-span")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.Contains(out, "probe-span") {
		t.Errorf("output missing span name: %s", out)
	}
	if !strings.Contains(out, "agentkit-test") {
		t.Errorf("output missing service name: %s", out)
	}
}
