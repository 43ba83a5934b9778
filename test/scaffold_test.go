package test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"diligence/internal/evidence/fanout"
	"diligence/internal/evidence/sources"
	"diligence/internal/investigation/handler"
	invmetrics "diligence/internal/investigation/metrics"
	"diligence/internal/investigation/oracle"
	"diligence/internal/investigation/service"
	"diligence/internal/investigation/store"
	"diligence/internal/platform/metrics"
	"diligence/internal/ratelimit"
	httptransport "diligence/internal/transport/http"
	"diligence/pkg/platform/middleware/requestid"
	"diligence/pkg/testutil"
)

// newRouter builds the full stack. A positive limit throttles investigations
// per client address.
func newRouter(t *testing.T, o oracle.Oracle, limit int) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := metrics.NewRegistry()

	registry, err := sources.NewRegistry()
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	svc := service.New(
		store.NewInMemoryStore(),
		fanout.New(registry, fanout.WithLogger(logger)),
		service.NewPlanner(registry),
		oracle.NewInvoker(o, oracle.WithRetries(0)),
		service.WithLogger(logger),
		service.WithMetrics(invmetrics.New(reg)),
	)
	cfg := httptransport.RouterConfig{Logger: logger, Registry: reg}
	if limit > 0 {
		cfg.Throttle = ratelimit.NewMiddleware(ratelimit.NewMemoryStore(), limit, time.Minute, logger).Limit
	}
	return httptransport.NewRouter(cfg, handler.New(svc, logger))
}

func failingOracle() oracle.Oracle {
	return oracle.Func(func(context.Context, string) (string, error) {
		return "", oracle.ErrEmptyResponse
	})
}

func TestRouterScaffold(t *testing.T) {
	testutil.Given(t, "the HTTP router with no evidence sources and a failing oracle", func(t *testing.T) {
		router := newRouter(t, failingOracle(), 0)

		testutil.When(t, "calling GET /healthz", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))

			testutil.Then(t, "it responds ok with a request id", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				if rr.Header().Get(requestid.Header) == "" {
					t.Fatal("expected X-Request-ID header")
				}
			})
		})

		testutil.When(t, "calling GET /metrics", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))

			testutil.Then(t, "it exposes prometheus metrics", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
			})
		})

		testutil.When(t, "posting an investigation without a name", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/investigations", map[string]any{"name": ""})
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "it is rejected as a validation error", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
			})
		})

		testutil.When(t, "posting a body that is not JSON", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRawRequest(t, http.MethodPost, "/investigations", `{"name":`))

			testutil.Then(t, "it is rejected as a bad request", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
			})
		})

		testutil.When(t, "posting a valid investigation", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/investigations", map[string]any{"name": "Acme Holdings Ltd"})
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "it returns the fallback report", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusCreated)
				body := testutil.UnmarshalResponse[handler.InvestigationResponse](t, rr)
				if body.Report == nil || !body.Report.Fallback || body.Report.RiskScore != 50 {
					t.Fatalf("expected fallback report, got %+v", body.Report)
				}

				get := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/investigations/"+body.ID))
				testutil.AssertStatusOK(t, get)
			})
		})

		testutil.When(t, "fetching an unknown investigation", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/investigations/8d0a2f8e-5b1c-4e0a-9a53-1b6c3f0d2e11"))

			testutil.Then(t, "it responds not found", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
			})
		})
	})
}

func TestRouterScaffold_Throttled(t *testing.T) {
	testutil.Given(t, "a router that admits one investigation per minute", func(t *testing.T) {
		router := newRouter(t, failingOracle(), 1)
		post := func() *http.Request {
			return testutil.NewJSONRequest(t, http.MethodPost, "/investigations", map[string]any{"name": "Acme Holdings Ltd"})
		}

		testutil.When(t, "the same address posts twice", func(t *testing.T) {
			first := testutil.DoRequest(router, post())
			second := testutil.DoRequest(router, post())

			testutil.Then(t, "only the first is accepted", func(t *testing.T) {
				testutil.AssertStatus(t, first, http.StatusCreated)
				testutil.AssertRateLimited(t, second)
			})

			testutil.Then(t, "reads are not throttled", func(t *testing.T) {
				testutil.AssertStatusOK(t, testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/investigations")))
			})
		})
	})
}
