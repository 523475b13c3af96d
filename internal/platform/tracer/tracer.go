// Package tracer is a small tracing abstraction over OpenTelemetry used around
// outbound calls (issuance backend, issuer registry). Services depend on the
// Tracer interface; tests use NoopTracer.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span, marking it failed when err is non-nil.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanIssuanceCreate   = "issuance.backend.create"
	SpanIssuanceFetch    = "issuance.backend.fetch"
	SpanRegistryCheck    = "registry.is_authorized"
	SpanRegistryInfo     = "registry.info"
	SpanRegistryList     = "registry.list"
	SpanRegistryAdd      = "registry.add"
	SpanVerificationSave = "verification.resolve"
)

// Attribute keys.
const (
	AttrClaimID       = "claim.id"
	AttrRequestID     = "verification.request_id"
	AttrIssuerAddress = "issuer.address"
	AttrAuthorized    = "issuer.authorized"
	AttrAttempt       = "attempt"
	AttrFallback      = "fallback"
	AttrStatusCode    = "http.status_code"
)
