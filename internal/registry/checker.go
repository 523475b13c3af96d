package registry

import (
	"context"
	"log/slog"
	"time"
)

const defaultCheckTimeout = 3 * time.Second

// Check outcomes reported to metrics.
const (
	OutcomeAuthorized   = "authorized"
	OutcomeUnauthorized = "unauthorized"
	OutcomeUnknown      = "unknown"
)

// Metrics is the subset of platform metrics the checker reports to.
type Metrics interface {
	IncrementRegistryCheck(outcome string)
	ObserveRegistryLatency(seconds float64)
}

// Authorization is the result of a bounded registry check. Unknown is set when
// the registry failed or timed out; Authorized is then always false.
type Authorization struct {
	Authorized bool
	Unknown    bool
}

// Checker bounds IsAuthorized with a timeout and fails closed.
type Checker struct {
	registry Registry
	timeout  time.Duration
	logger   *slog.Logger
	metrics  Metrics
}

type CheckerOption func(*Checker)

func WithCheckTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithCheckerLogger(logger *slog.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

func WithCheckerMetrics(m Metrics) CheckerOption {
	return func(c *Checker) {
		c.metrics = m
	}
}

func NewChecker(registry Registry, opts ...CheckerOption) *Checker {
	c := &Checker{
		registry: registry,
		timeout:  defaultCheckTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check asks the registry whether address may issue credentials. It never
// returns an error: a failed or slow registry yields Unknown.
func (c *Checker) Check(ctx context.Context, address string) Authorization {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	authorized, err := c.registry.IsAuthorized(ctx, address)
	if c.metrics != nil {
		c.metrics.ObserveRegistryLatency(time.Since(start).Seconds())
	}

	var result Authorization
	outcome := OutcomeUnauthorized
	switch {
	case err != nil:
		c.logger.WarnContext(ctx, "issuer registry check failed, treating issuer as unauthorized",
			"issuer_address", address,
			"error", err,
		)
		result = Authorization{Unknown: true}
		outcome = OutcomeUnknown
	case authorized:
		result = Authorization{Authorized: true}
		outcome = OutcomeAuthorized
	}
	if c.metrics != nil {
		c.metrics.IncrementRegistryCheck(outcome)
	}
	return result
}

// Ping reports whether the registry answers within the check timeout. Used by
// the readiness endpoint.
func (c *Checker) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.registry.List(ctx, true)
	return err
}
