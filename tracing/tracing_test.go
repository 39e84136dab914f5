package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	err := InitWithExporter("docuflow-test", "0.0.1", exporter)
	assert.Nil(t, err)

	ctx, span := StartSpan(context.Background(), "test.operation", "PRODUCER")
	assert.NotNil(t, ctx)
	span.WithAttributes(map[string]string{"document.id": "doc-1"})
	EndSpan(span, nil)

	_, failed := StartSpan(ctx, "test.failure", "")
	EndSpan(failed, errors.New("boom"))

	spans := exporter.GetSpans()
	assert.Equal(t, 2, len(spans))
	assert.Equal(t, "test.operation", spans[0].Name)
}

func TestEndSpan_NilSafe(t *testing.T) {
	EndSpan(nil, nil)
	var span *Span
	assert.Nil(t, span.WithAttributes(map[string]string{"k": "v"}))
}
