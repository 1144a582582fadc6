// internal/common/observability/observability_test.go
package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	obs := New("triage-test", "", sdktrace.WithSpanProcessor(recorder))
	defer obs.Shutdown()

	ctx, parent := obs.StartSpan(context.Background(), "triage", attribute.String("language", "en"))
	_, child := obs.StartSpan(ctx, "normalize")
	EndSpan(child, nil)
	EndSpan(parent, errors.New("retrieval failed"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "normalize", spans[0].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())

	assert.Equal(t, "triage", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("language", "en"))
}

func TestNilObservability(t *testing.T) {
	var obs *Observability
	ctx, span := obs.StartSpan(context.Background(), "noop")
	assert.NotNil(t, ctx)
	EndSpan(span, nil)
	obs.RecordStage(ctx, "rank", time.Millisecond, "ok")
	obs.Shutdown()
}

func TestRecordStage(t *testing.T) {
	obs := New("triage-test", "")
	defer obs.Shutdown()
	assert.NotPanics(t, func() {
		obs.RecordStage(context.Background(), "retrieve", 12*time.Millisecond, "ok")
	})
}
