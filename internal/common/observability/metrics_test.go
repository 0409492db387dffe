package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestStartSpan_CarriesTraceID(t *testing.T) {
	o := New("fms-alerts-test", TracingConfig{})
	defer o.Shutdown()

	ctx, span := o.StartSpan(context.Background(), "whatsapp.deliver", attribute.Int64("message.id", 1))
	defer span.End()

	assert.Len(t, TraceID(ctx), 32)
	o.RecordJobProcessed(ctx, "template", "sent")
	o.RecordJobDuration(ctx, 20*time.Millisecond, "template", "sent")
}

func TestNew_ExportsSpansToCollector(t *testing.T) {
	var (
		posts       int32
		contentType atomic.Value
	)
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
		contentType.Store(r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer collector.Close()

	o := New("fms-alerts-test", TracingConfig{Endpoint: collector.URL + "/api/traces"})
	_, span := o.StartSpan(context.Background(), "whatsapp.deliver", attribute.String("message.kind", "text"))
	span.End()

	// Shutdown flushes the batch.
	o.Shutdown()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&posts), int32(1))
	assert.Equal(t, "application/x-thrift", contentType.Load())
}

func TestNew_SampleRatioKeepsTraceID(t *testing.T) {
	o := New("fms-alerts-test", TracingConfig{SampleRatio: 0.01})
	defer o.Shutdown()

	ctx, span := o.StartSpan(context.Background(), "whatsapp.deliver")
	defer span.End()
	assert.Len(t, TraceID(ctx), 32)
}

func TestNoop(t *testing.T) {
	o := NewNoop()
	ctx, span := o.StartSpan(context.Background(), "noop")
	span.End()

	assert.Empty(t, TraceID(ctx))
	o.RecordJobProcessed(ctx, "text", "retry")
	o.Shutdown()

	var nilObs *Observability
	_, span = nilObs.StartSpan(context.Background(), "nil")
	span.End()
}
