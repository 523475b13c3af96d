package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"zkcred/pkg/requestcontext"
)

// Publisher stamps lifecycle events with request metadata and hands them to a
// Store, either inline or through a bounded queue drained by one worker.
type Publisher struct {
	store  Store
	logger *slog.Logger

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer queues up to size events. A full queue drops the event
// rather than stall the request that emitted it.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan Event, size)
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records event, filling the timestamp, request id and actor from ctx
// when the caller left them empty.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Actor == "" {
		event.Actor = requestcontext.Actor(ctx)
	}

	if p.queue == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.queue <- event:
	default:
		p.dropped.Add(1)
		p.logger.WarnContext(ctx, "audit queue full, event dropped",
			"action", string(event.Action),
			"subject_id", event.SubjectID,
		)
	}
	return nil
}

// Dropped is the number of events lost to a full queue.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting queued events and waits until the backlog is stored.
// It is safe to call more than once.
func (p *Publisher) Close() {
	if p.queue == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.queue)
		<-p.done
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.queue {
		// The emitting request may be gone; the store gets a fresh context.
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to store audit event",
				"error", err,
				"action", string(event.Action),
				"subject_id", event.SubjectID,
			)
		}
	}
}
