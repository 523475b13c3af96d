package issuance

import (
	"context"
	"log/slog"
	"time"

	"zkcred/pkg/platform/circuit"
	"zkcred/pkg/requestcontext"
)

const defaultTimeout = 5 * time.Second

// Fallback reasons reported to metrics.
const (
	FallbackNotConfigured = "not_configured"
	FallbackCircuitOpen   = "circuit_open"
)

// Metrics is the subset of platform metrics the issuer reports to.
type Metrics interface {
	IncrementIssuanceFallback(reason string)
	ObserveBackendLatency(operation string, seconds float64)
}

// Issuer issues credentials through the backend, falling back to the mock
// signer on any backend failure.
type Issuer struct {
	backend Backend
	mock    *MockSigner
	breaker *circuit.Breaker
	timeout time.Duration
	logger  *slog.Logger
	metrics Metrics
}

type Option func(*Issuer)

// WithBackend enables the external backend. Without it every credential is mock-signed.
func WithBackend(b Backend) Option {
	return func(i *Issuer) {
		i.backend = b
	}
}

// WithTimeout bounds the whole create-and-fetch backend exchange.
func WithTimeout(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(i *Issuer) {
		if b != nil {
			i.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

func WithMetrics(m Metrics) Option {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// NewIssuer creates an Issuer.
func NewIssuer(mock *MockSigner, opts ...Option) *Issuer {
	i := &Issuer{
		mock:    mock,
		breaker: circuit.New("issuance-backend"),
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns a credential for req. It only fails if the mock signer fails.
func (i *Issuer) Issue(ctx context.Context, req CredentialRequest) (*Result, error) {
	if i.backend == nil {
		return i.fallback(ctx, req, FallbackNotConfigured)
	}
	if !i.breaker.Allow() {
		return i.fallback(ctx, req, FallbackCircuitOpen)
	}

	result, err := i.fromBackend(ctx, req)
	if err != nil {
		_, change := i.breaker.RecordFailure()
		if change.Opened {
			i.logger.WarnContext(ctx, "issuance backend circuit opened", "breaker", i.breaker.Name())
		}
		i.logger.WarnContext(ctx, "issuance backend failed, using mock credential",
			"claim_id", req.ClaimID,
			"category", string(CategoryOf(err)),
			"error", err,
		)
		return i.fallback(ctx, req, string(CategoryOf(err)))
	}

	if _, change := i.breaker.RecordSuccess(); change.Closed {
		i.logger.InfoContext(ctx, "issuance backend circuit closed", "breaker", i.breaker.Name())
	}
	return result, nil
}

// BackendState reports "disabled", "ok", or "degraded" for health checks.
func (i *Issuer) BackendState() string {
	switch {
	case i.backend == nil:
		return "disabled"
	case i.breaker.IsOpen():
		return "degraded"
	default:
		return "ok"
	}
}

func (i *Issuer) fromBackend(ctx context.Context, req CredentialRequest) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	id, err := i.backend.CreateCredential(ctx, req)
	i.observe(opCreate, start)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	credential, err := i.backend.FetchCredential(ctx, id)
	i.observe(opFetch, start)
	if err != nil {
		return nil, err
	}
	return &Result{Source: SourceBackend, BackendCredentialID: id, Credential: credential}, nil
}

func (i *Issuer) fallback(ctx context.Context, req CredentialRequest, reason string) (*Result, error) {
	if i.metrics != nil {
		i.metrics.IncrementIssuanceFallback(reason)
	}
	credential, err := i.mock.Sign(req, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	return &Result{Source: SourceMock, Credential: credential}, nil
}

func (i *Issuer) observe(op string, start time.Time) {
	if i.metrics != nil {
		i.metrics.ObserveBackendLatency(op, time.Since(start).Seconds())
	}
}
