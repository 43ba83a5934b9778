// Package fanout runs a batch of evidence tasks concurrently and joins them
// into an index-aligned slice of outcomes.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"diligence/internal/evidence/metrics"
	"diligence/internal/evidence/sources"
)

var tracer = otel.Tracer("diligence/evidence/fanout")

const (
	defaultConcurrency = 8
	defaultTaskTimeout = 20 * time.Second
	defaultBackoff     = 250 * time.Millisecond
	maxBackoff         = 2 * time.Second
)

// Task names one source and the parameters to query it with. It is consumed
// exactly once by Run.
type Task struct {
	Kind   sources.Kind
	Params sources.Params
}

// Executor fans tasks out to registered sources.
type Executor struct {
	registry    *sources.Registry
	concurrency int
	taskTimeout time.Duration
	retries     int
	backoff     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency bounds how many lookups run at once.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTaskTimeout bounds each task, retries included.
func WithTaskTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.taskTimeout = d
		}
	}
}

// WithRetries sets how many extra attempts a retryable failure gets.
func WithRetries(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.retries = n
		}
	}
}

// WithBackoff sets the initial retry interval.
func WithBackoff(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.backoff = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New builds an executor over a static registry.
func New(registry *sources.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry:    registry,
		concurrency: defaultConcurrency,
		taskTimeout: defaultTaskTimeout,
		backoff:     defaultBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every task and returns exactly len(tasks) outcomes, where
// outcomes[i] belongs to tasks[i]. A failing, panicking or hung task only
// affects its own slot. Run never returns early; it waits for every task or
// its deadline.
func (e *Executor) Run(ctx context.Context, tasks []Task) []sources.Outcome {
	outcomes := make([]sources.Outcome, len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	ctx, span := tracer.Start(ctx, "evidence.fanout", trace.WithAttributes(
		attribute.Int("tasks", len(tasks)),
		attribute.Int("concurrency", e.concurrency),
	))
	defer span.End()

	// A plain Group: one task's failure must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			outcomes[i] = e.runTask(ctx, task)
			return nil
		})
	}
	_ = g.Wait()

	found := 0
	for _, o := range outcomes {
		if o.Status == sources.StatusFound {
			found++
		}
	}
	span.SetAttributes(attribute.Int("found", found))
	return outcomes
}

func (e *Executor) runTask(ctx context.Context, task Task) (out sources.Outcome) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "evidence.lookup", trace.WithAttributes(
		attribute.String("source", string(task.Kind)),
	))
	defer func() {
		out.Duration = time.Since(start)
		e.record(ctx, span, out)
		span.End()
	}()

	src, ok := e.registry.Get(task.Kind)
	if !ok {
		return sources.Failed(task.Kind, fmt.Errorf("%w: %s", sources.ErrSourceNotRegistered, task.Kind))
	}

	taskCtx, cancel := context.WithTimeout(ctx, e.taskTimeout)
	defer cancel()

	attempts := 0
	op := func() (*sources.Evidence, error) {
		attempts++
		ev, err := e.lookupOnce(taskCtx, src, task.Params)
		if err != nil && !sources.IsRetryable(err) {
			return ev, backoff.Permanent(err)
		}
		return ev, err
	}
	notify := func(err error, wait time.Duration) {
		e.metrics.IncrementRetry(string(task.Kind))
		e.logger.DebugContext(ctx, "retrying evidence lookup",
			"source", task.Kind,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	}

	ev, err := backoff.RetryNotifyWithData(op, e.policy(taskCtx), notify)
	if err != nil {
		err = e.normalize(task.Kind, err)
	}

	out = sources.FromLookup(task.Kind, ev, err)
	out.Attempts = attempts
	return out
}

func (e *Executor) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.backoff
	eb.MaxInterval = maxBackoff
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(e.retries)), ctx)
}

// lookupOnce runs the adapter in its own goroutine so a source that ignores
// its context is abandoned at the deadline instead of blocking the join. The
// buffered channel lets the abandoned goroutine finish without leaking a
// blocked send.
func (e *Executor) lookupOnce(ctx context.Context, src sources.Source, params sources.Params) (*sources.Evidence, error) {
	type result struct {
		evidence *sources.Evidence
		err      error
	}
	kind := src.Kind()
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: sources.NewProviderError(sources.ErrorInternal, kind,
					fmt.Sprintf("panic: %v", r), sources.ErrSourcePanicked)}
			}
		}()
		ev, err := src.Lookup(ctx, params)
		done <- result{evidence: ev, err: err}
	}()

	select {
	case r := <-done:
		return r.evidence, r.err
	case <-ctx.Done():
		return nil, e.normalize(kind, ctx.Err())
	}
}

// normalize turns bare context errors, which the retry loop can surface
// directly, into categorised provider errors.
func (e *Executor) normalize(kind sources.Kind, err error) error {
	var pe *sources.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return sources.NewProviderError(sources.ErrorTimeout, kind,
			fmt.Sprintf("no response within %s", e.taskTimeout), err)
	case errors.Is(err, context.Canceled):
		return sources.NewProviderError(sources.ErrorInternal, kind, "lookup cancelled", err)
	default:
		return err
	}
}

func (e *Executor) record(ctx context.Context, span trace.Span, out sources.Outcome) {
	span.SetAttributes(
		attribute.String("status", string(out.Status)),
		attribute.Int("attempts", out.Attempts),
	)
	e.metrics.ObserveLookup(string(out.Kind), string(out.Status), out.Duration)

	switch out.Status {
	case sources.StatusError:
		category := out.Category()
		span.SetStatus(codes.Error, string(category))
		e.metrics.IncrementFailure(string(out.Kind), string(category))
		e.logger.WarnContext(ctx, "evidence source failed",
			"source", out.Kind,
			"category", category,
			"attempts", out.Attempts,
			"duration", out.Duration,
			"error", out.Err,
		)
	case sources.StatusNotFound:
		e.logger.DebugContext(ctx, "evidence source found nothing",
			"source", out.Kind,
			"reason", out.Reason,
		)
	}
}
