// Package sweeper expires pending verification sessions on a cron schedule.
// Reads already expire sessions lazily; the sweep keeps the stored state and
// the expiry metric current for sessions nobody polls again.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	defaultSchedule = "@every 1m"
	defaultTimeout  = 30 * time.Second
)

// Expirer flips overdue pending sessions to expired and reports how many changed.
type Expirer interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper runs Expirer on a schedule. Overlapping runs are skipped.
type Sweeper struct {
	expirer  Expirer
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
}

type Option func(*Sweeper)

// WithSchedule sets a standard cron expression or descriptor such as "@every 30s".
func WithSchedule(expr string) Option {
	return func(s *Sweeper) {
		if expr != "" {
			s.schedule = expr
		}
	}
}

// WithTimeout bounds a single sweep.
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New validates the schedule and returns a Sweeper.
func New(expirer Expirer, opts ...Option) (*Sweeper, error) {
	if expirer == nil {
		return nil, fmt.Errorf("expirer is required")
	}
	s := &Sweeper{
		expirer:  expirer,
		schedule: defaultSchedule,
		timeout:  defaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	return s, nil
}

// Start runs sweeps until ctx is cancelled, then waits for a running sweep
// to finish.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.logger.InfoContext(ctx, "verification sweeper started", "schedule", s.schedule)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (s *Sweeper) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.ErrorContext(ctx, "verification sweep failed", "error", err)
	}
}

// RunOnce performs a single bounded sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	expired, err := s.expirer.SweepExpired(ctx)
	if err != nil {
		return expired, err
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "verification sessions expired by sweep", "count", expired)
	}
	return expired, nil
}
