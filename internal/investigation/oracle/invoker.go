package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"diligence/internal/investigation/assembler"
	"diligence/internal/investigation/metrics"
	"diligence/internal/sector"
	"diligence/pkg/platform/circuit"
	"diligence/pkg/requestcontext"
)

var tracer = otel.Tracer("diligence/investigation/oracle")

const (
	defaultTimeout = 60 * time.Second
	defaultBackoff = 500 * time.Millisecond
	maxBackoff     = 5 * time.Second

	opAssess   = "assess"
	opClassify = "classify"
)

// Invoker calls an Oracle under a deadline, a retry policy and a circuit
// breaker.
type Invoker struct {
	oracle  Oracle
	timeout time.Duration
	retries int
	backoff time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithTimeout bounds each call, retries included.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithRetries sets how many extra attempts a transient failure gets.
func WithRetries(n int) Option {
	return func(i *Invoker) {
		if n >= 0 {
			i.retries = n
		}
	}
}

// WithBackoff sets the initial retry interval.
func WithBackoff(d time.Duration) Option {
	return func(i *Invoker) {
		if d > 0 {
			i.backoff = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(i *Invoker) { i.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Invoker) { i.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Invoker) { i.metrics = m }
}

// WithClock overrides the date written into prompts. By default the request
// time from the context is used.
func WithClock(now func() time.Time) Option {
	return func(i *Invoker) { i.now = now }
}

// NewInvoker wraps an oracle.
func NewInvoker(o Oracle, opts ...Option) *Invoker {
	i := &Invoker{
		oracle:  o,
		timeout: defaultTimeout,
		backoff: defaultBackoff,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Assess renders the assessment prompt and returns the oracle's raw text.
// Every failure is an *UnavailableError.
func (i *Invoker) Assess(ctx context.Context, ec assembler.EvidenceContext, res sector.Resolution) (string, error) {
	today := requestcontext.Now(ctx)
	if i.now != nil {
		today = i.now()
	}
	prompt, err := AssessPrompt(ec, res, today)
	if err != nil {
		return "", &UnavailableError{Reason: ReasonTransport, Err: err}
	}
	return i.call(ctx, opAssess, prompt)
}

func (i *Invoker) call(ctx context.Context, op, prompt string) (string, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "oracle."+op, trace.WithAttributes(
		attribute.Int("prompt_chars", len(prompt)),
	))
	defer span.End()

	if i.breaker != nil && !i.breaker.Allow() {
		err := &UnavailableError{Reason: ReasonCircuitOpen, Err: ErrCircuitOpen}
		i.fail(ctx, span, op, err, start)
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	attempts := 0
	operation := func() (string, error) {
		attempts++
		out, err := i.completeOnce(callCtx, prompt)
		if err != nil {
			ue := i.unavailable(err)
			if !ue.Reason.Retryable() {
				return "", backoff.Permanent(ue)
			}
			return "", ue
		}
		return out, nil
	}
	notify := func(err error, wait time.Duration) {
		i.metrics.IncrementOracleRetry()
		i.logger.WarnContext(ctx, "retrying oracle call",
			"operation", op,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	}

	out, err := backoff.RetryNotifyWithData(operation, i.policy(callCtx), notify)
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		ue := i.unavailable(err)
		i.fail(ctx, span, op, ue, start)
		// A caller that went away says nothing about the oracle's health.
		if i.breaker != nil && ue.Reason != ReasonCancelled && ctx.Err() == nil {
			if _, change := i.breaker.RecordFailure(); change.Opened {
				i.metrics.SetBreakerOpen(true)
				i.logger.WarnContext(ctx, "oracle circuit breaker opened", "breaker", i.breaker.Name())
			}
		}
		return "", ue
	}

	if i.breaker != nil {
		if _, change := i.breaker.RecordSuccess(); change.Closed {
			i.metrics.SetBreakerOpen(false)
			i.logger.InfoContext(ctx, "oracle circuit breaker closed", "breaker", i.breaker.Name())
		}
	}
	i.metrics.ObserveOracle(op, "ok", time.Since(start))
	span.SetAttributes(attribute.Int("response_chars", len(out)))
	return out, nil
}

func (i *Invoker) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = i.backoff
	eb.MaxInterval = maxBackoff
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(i.retries)), ctx)
}

// completeOnce abandons an oracle that ignores its context at the deadline.
func (i *Invoker) completeOnce(ctx context.Context, prompt string) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("oracle panicked: %v", r)}
			}
		}()
		text, err := i.oracle.Complete(ctx, prompt)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil && strings.TrimSpace(r.text) == "" {
			return "", ErrEmptyResponse
		}
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// unavailable classifies an error, including the bare context errors the
// retry loop can return.
func (i *Invoker) unavailable(err error) *UnavailableError {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &UnavailableError{Reason: ReasonTimeout, Err: fmt.Errorf("no response within %s: %w", i.timeout, err)}
	}
	return Unavailable(err)
}

func (i *Invoker) fail(ctx context.Context, span trace.Span, op string, err *UnavailableError, start time.Time) {
	span.SetStatus(codes.Error, string(err.Reason))
	span.RecordError(err)
	i.metrics.IncrementOracleFailure(op, string(err.Reason))
	i.metrics.ObserveOracle(op, "error", time.Since(start))
	i.logger.WarnContext(ctx, "oracle unavailable",
		"operation", op,
		"reason", err.Reason,
		"error", err.Err,
	)
}
