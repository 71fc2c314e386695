package context

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Origins of a ledger command.
const (
	OriginHTTP   = "http"
	OriginWorker = "worker"
	OriginCLI    = "cli"
)

// Trace identifies one command for log correlation.
type Trace struct {
	TraceID   string
	RequestID string
	Origin    string
}

type traceKey struct{}

// WithTrace adds Trace to context.
func WithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// GetTrace returns the Trace of ctx. When none was attached but an OpenTelemetry
// span is active, a Trace carrying the span's trace id is returned.
func GetTrace(ctx context.Context) *Trace {
	if v, ok := ctx.Value(traceKey{}).(*Trace); ok {
		return v
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return &Trace{TraceID: sc.TraceID().String()}
	}
	return nil
}

// GetRequestID returns the request id of ctx or "".
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTrace starts a trace for a command from origin. An empty requestID gets a fresh one.
func NewTrace(origin, requestID string) *Trace {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &Trace{
		TraceID:   uuid.NewString(),
		RequestID: requestID,
		Origin:    origin,
	}
}
