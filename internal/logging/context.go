package logging

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "campusfix"

type contextKey string

const fieldsKey contextKey = "log_fields"

// Fields are request-scoped values added to every record logged with the context.
type Fields struct {
	RequestID string
	UserID    string
}

// WithFields merges f into the fields already on ctx; empty values keep the existing ones.
func WithFields(ctx context.Context, f Fields) context.Context {
	cur := fieldsFrom(ctx)
	if f.RequestID != "" {
		cur.RequestID = f.RequestID
	}
	if f.UserID != "" {
		cur.UserID = f.UserID
	}
	return context.WithValue(ctx, fieldsKey, cur)
}

func fieldsFrom(ctx context.Context) Fields {
	if f, ok := ctx.Value(fieldsKey).(Fields); ok {
		return f
	}
	return Fields{}
}

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}
