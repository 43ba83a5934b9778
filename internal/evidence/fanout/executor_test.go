package fanout

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diligence/internal/evidence/metrics"
	"diligence/internal/evidence/sources"
)

type lookupFunc func(ctx context.Context, params sources.Params) (*sources.Evidence, error)

type funcSource struct {
	kind sources.Kind
	fn   lookupFunc
}

func (f funcSource) Kind() sources.Kind { return f.kind }
func (f funcSource) Capabilities() sources.Capabilities {
	return sources.Capabilities{Protocol: sources.ProtocolHTTP, Kind: f.kind}
}
func (f funcSource) Lookup(ctx context.Context, params sources.Params) (*sources.Evidence, error) {
	return f.fn(ctx, params)
}

func found(kind sources.Kind) lookupFunc {
	return func(_ context.Context, params sources.Params) (*sources.Evidence, error) {
		return &sources.Evidence{Kind: kind, Facts: map[string]any{"name": params.Get("name")}, CheckedAt: time.Now()}, nil
	}
}

func failing(kind sources.Kind, category sources.ErrorCategory) lookupFunc {
	return func(context.Context, sources.Params) (*sources.Evidence, error) {
		return nil, sources.NewProviderError(category, kind, "boom", nil)
	}
}

func newRegistry(t *testing.T, srcs ...sources.Source) *sources.Registry {
	t.Helper()
	reg, err := sources.NewRegistry(srcs...)
	require.NoError(t, err)
	return reg
}

func TestRun_ReturnsOneOutcomePerTaskInOrder(t *testing.T) {
	// Later tasks finish first; alignment must not depend on completion order.
	sleepy := func(ctx context.Context, params sources.Params) (*sources.Evidence, error) {
		d, _ := strconv.Atoi(params.Get("sleep_ms"))
		select {
		case <-time.After(time.Duration(d) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &sources.Evidence{Kind: sources.KindWebSearch, Facts: map[string]any{"slot": params.Get("slot")}}, nil
	}
	exec := New(newRegistry(t, funcSource{sources.KindWebSearch, sleepy}), WithConcurrency(10))

	var tasks []Task
	for i := 0; i < 10; i++ {
		tasks = append(tasks, Task{Kind: sources.KindWebSearch, Params: sources.Params{
			"slot":     strconv.Itoa(i),
			"sleep_ms": strconv.Itoa((10 - i) * 5),
		}})
	}

	outcomes := exec.Run(context.Background(), tasks)
	require.Len(t, outcomes, len(tasks))
	for i, o := range outcomes {
		assert.Equal(t, sources.StatusFound, o.Status)
		assert.Equal(t, strconv.Itoa(i), o.Facts()["slot"])
	}
}

func TestRun_Completeness(t *testing.T) {
	exec := New(newRegistry(t,
		funcSource{sources.KindCompaniesHouse, found(sources.KindCompaniesHouse)},
		funcSource{sources.KindSanctions, func(context.Context, sources.Params) (*sources.Evidence, error) {
			return nil, sources.NotFoundError(sources.KindSanctions, "clean")
		}},
		funcSource{sources.KindWebSearch, failing(sources.KindWebSearch, sources.ErrorAuthentication)},
		funcSource{sources.KindOpenCorporates, func(context.Context, sources.Params) (*sources.Evidence, error) {
			panic("adapter bug")
		}},
	), WithTaskTimeout(time.Second))

	tasks := []Task{
		{Kind: sources.KindCompaniesHouse},
		{Kind: sources.KindSanctions},
		{Kind: sources.KindWebSearch},
		{Kind: sources.KindOpenCorporates},
		{Kind: sources.KindAviationRegistry},
	}
	outcomes := exec.Run(context.Background(), tasks)

	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		assert.Equal(t, tasks[i].Kind, o.Kind)
	}
	assert.Equal(t, sources.StatusFound, outcomes[0].Status)
	assert.Equal(t, sources.StatusNotFound, outcomes[1].Status)
	assert.Equal(t, "clean", outcomes[1].Reason)
	assert.Equal(t, sources.StatusError, outcomes[2].Status)
	assert.Equal(t, sources.ErrorAuthentication, outcomes[2].Category())
	assert.Equal(t, sources.StatusError, outcomes[3].Status)
	assert.ErrorIs(t, outcomes[3].Err, sources.ErrSourcePanicked)
	assert.Equal(t, sources.StatusError, outcomes[4].Status)
	assert.ErrorIs(t, outcomes[4].Err, sources.ErrSourceNotRegistered)
}

func TestRun_FailureIsolation(t *testing.T) {
	exec := New(newRegistry(t,
		funcSource{sources.KindCompaniesHouse, found(sources.KindCompaniesHouse)},
		funcSource{sources.KindSanctions, failing(sources.KindSanctions, sources.ErrorProviderOutage)},
		funcSource{sources.KindWebSearch, found(sources.KindWebSearch)},
	), WithRetries(0))

	outcomes := exec.Run(context.Background(), []Task{
		{Kind: sources.KindCompaniesHouse, Params: sources.Params{"name": "Acme"}},
		{Kind: sources.KindSanctions, Params: sources.Params{"name": "Acme"}},
		{Kind: sources.KindWebSearch, Params: sources.Params{"name": "Acme"}},
	})

	assert.Equal(t, sources.StatusFound, outcomes[0].Status)
	assert.Equal(t, "Acme", outcomes[0].Facts()["name"])
	assert.Equal(t, sources.StatusError, outcomes[1].Status)
	assert.Equal(t, sources.StatusFound, outcomes[2].Status)
	assert.Equal(t, "Acme", outcomes[2].Facts()["name"])
}

func TestRun_AllSourcesFail(t *testing.T) {
	var srcs []sources.Source
	var tasks []Task
	for _, kind := range sources.AllKinds() {
		srcs = append(srcs, funcSource{kind, failing(kind, sources.ErrorProviderOutage)})
		tasks = append(tasks, Task{Kind: kind})
	}
	exec := New(newRegistry(t, srcs...), WithRetries(1), WithBackoff(time.Millisecond))

	outcomes := exec.Run(context.Background(), tasks)

	require.Len(t, outcomes, len(tasks))
	for _, o := range outcomes {
		assert.Equal(t, sources.StatusError, o.Status)
		assert.Equal(t, sources.ErrorProviderOutage, o.Category())
		assert.Equal(t, 2, o.Attempts)
	}
}

func TestRun_AbandonsNonCooperativeSource(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stubborn := func(context.Context, sources.Params) (*sources.Evidence, error) {
		<-release
		return nil, nil
	}
	exec := New(newRegistry(t,
		funcSource{sources.KindAviationRegistry, stubborn},
		funcSource{sources.KindWebSearch, found(sources.KindWebSearch)},
	), WithTaskTimeout(50*time.Millisecond))

	start := time.Now()
	outcomes := exec.Run(context.Background(), []Task{
		{Kind: sources.KindAviationRegistry},
		{Kind: sources.KindWebSearch},
	})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, sources.StatusError, outcomes[0].Status)
	assert.Equal(t, sources.ErrorTimeout, outcomes[0].Category())
	assert.Equal(t, sources.StatusFound, outcomes[1].Status)
}

func TestRun_RetriesRetryableFailures(t *testing.T) {
	var calls atomic.Int32
	flaky := func(_ context.Context, _ sources.Params) (*sources.Evidence, error) {
		if calls.Add(1) < 3 {
			return nil, sources.NewProviderError(sources.ErrorRateLimited, sources.KindSanctions, "429", nil)
		}
		return &sources.Evidence{Kind: sources.KindSanctions, Facts: map[string]any{"ok": true}}, nil
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	exec := New(newRegistry(t, funcSource{sources.KindSanctions, flaky}),
		WithRetries(3), WithBackoff(time.Millisecond), WithMetrics(m))

	outcomes := exec.Run(context.Background(), []Task{{Kind: sources.KindSanctions}})

	assert.Equal(t, sources.StatusFound, outcomes[0].Status)
	assert.Equal(t, 3, outcomes[0].Attempts)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Retries.WithLabelValues("opensanctions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("opensanctions", "found")))
}

func TestRun_DoesNotRetryPermanentFailures(t *testing.T) {
	var calls atomic.Int32
	exec := New(newRegistry(t, funcSource{sources.KindWebSearch, func(context.Context, sources.Params) (*sources.Evidence, error) {
		calls.Add(1)
		return nil, sources.NewProviderError(sources.ErrorAuthentication, sources.KindWebSearch, "401", nil)
	}}), WithRetries(3), WithBackoff(time.Millisecond))

	outcomes := exec.Run(context.Background(), []Task{{Kind: sources.KindWebSearch}})

	assert.Equal(t, sources.StatusError, outcomes[0].Status)
	assert.Equal(t, 1, outcomes[0].Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(context.Context, sources.Params) (*sources.Evidence, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return &sources.Evidence{Kind: sources.KindWebSearch, Facts: map[string]any{}}, nil
	}
	exec := New(newRegistry(t, funcSource{sources.KindWebSearch, slow}), WithConcurrency(2))

	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{Kind: sources.KindWebSearch}
	}
	outcomes := exec.Run(context.Background(), tasks)

	assert.Len(t, outcomes, 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_NilEvidenceIsBadData(t *testing.T) {
	exec := New(newRegistry(t, funcSource{sources.KindWebSearch, func(context.Context, sources.Params) (*sources.Evidence, error) {
		return nil, nil
	}}))

	outcomes := exec.Run(context.Background(), []Task{{Kind: sources.KindWebSearch}})
	assert.Equal(t, sources.ErrorBadData, outcomes[0].Category())
}

func TestRun_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := New(newRegistry(t, funcSource{sources.KindWebSearch, func(ctx context.Context, _ sources.Params) (*sources.Evidence, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}))

	outcomes := exec.Run(ctx, []Task{{Kind: sources.KindWebSearch}})
	require.Len(t, outcomes, 1)
	assert.Equal(t, sources.StatusError, outcomes[0].Status)
	assert.True(t, errors.Is(outcomes[0].Err, context.Canceled))
}

func TestRun_Empty(t *testing.T) {
	exec := New(newRegistry(t))
	assert.Empty(t, exec.Run(context.Background(), nil))
}
