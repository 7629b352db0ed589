package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/launchtrace/pkg/observability"
)

// TestAttributeFilter verifies only allow-listed namespaces are exported.
func TestAttributeFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	exporter := tracetest.NewInMemoryExporter()
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), logger)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	_, span := tp.Tracer("test").Start(context.Background(), "trace")
	span.SetAttributes(
		attribute.String("launch.app", "camera"),
		attribute.Int("batch.files", 12),
		attribute.Bool("error", true),
		attribute.String("file.path", "/home/lab/DEVICE_camera.log"),
	)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	attrs := spanAttrMap(spans[0])
	assert.Equal(t, "camera", attrs["launch.app"])
	assert.Equal(t, int64(12), attrs["batch.files"])
	assert.Equal(t, true, attrs["error"])
	assert.NotContains(t, attrs, "file.path")
	assert.Contains(t, buf.String(), "file.path")
}

func spanAttrMap(s tracetest.SpanStub) map[string]any {
	m := make(map[string]any, len(s.Attributes))
	for _, a := range s.Attributes {
		m[string(a.Key)] = a.Value.AsInterface()
	}

	return m
}
