package audit

import (
	"context"
	"log/slog"
	"time"
)

// AsyncPublisher buffers events and forwards them to a sink from a
// background worker so audit latency never delays a report. Events are
// dropped (and logged) when the buffer is full.
type AsyncPublisher struct {
	sink   Publisher
	inbox  chan Event
	logger *slog.Logger
	done   chan struct{}
}

// NewAsyncPublisher creates the publisher. Call Run in a goroutine.
func NewAsyncPublisher(sink Publisher, buffer int, logger *slog.Logger) *AsyncPublisher {
	if buffer < 1 {
		buffer = 1
	}
	return &AsyncPublisher{
		sink:   sink,
		inbox:  make(chan Event, buffer),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Emit enqueues without blocking.
func (p *AsyncPublisher) Emit(ctx context.Context, event Event) error {
	select {
	case p.inbox <- stamp(event):
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, dropping event",
				"action", event.Action,
				"investigation_id", event.InvestigationID,
			)
		}
	}
	return nil
}

// Run drains the buffer until ctx is cancelled, then flushes what is left
// with a short grace period.
func (p *AsyncPublisher) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case event := <-p.inbox:
			p.forward(ctx, event)
		}
	}
}

// Done is closed once Run has returned.
func (p *AsyncPublisher) Done() <-chan struct{} {
	return p.done
}

func (p *AsyncPublisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-p.inbox:
			p.forward(ctx, event)
		default:
			return
		}
	}
}

func (p *AsyncPublisher) forward(ctx context.Context, event Event) {
	if err := p.sink.Emit(ctx, event); err != nil && p.logger != nil {
		p.logger.ErrorContext(ctx, "failed to publish audit event",
			"action", event.Action,
			"investigation_id", event.InvestigationID,
			"error", err,
		)
	}
}
