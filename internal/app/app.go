// Package app builds the investigation pipeline from configuration. The
// server and the CLI share it so both run the same wiring.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"diligence/internal/audit"
	"diligence/internal/evidence/cache"
	"diligence/internal/evidence/fanout"
	evmetrics "diligence/internal/evidence/metrics"
	"diligence/internal/evidence/sources"
	"diligence/internal/evidence/sources/aviation"
	"diligence/internal/evidence/sources/companieshouse"
	"diligence/internal/evidence/sources/opencorporates"
	"diligence/internal/evidence/sources/opensanctions"
	"diligence/internal/evidence/sources/websearch"
	"diligence/internal/investigation/assembler"
	invmetrics "diligence/internal/investigation/metrics"
	"diligence/internal/investigation/oracle"
	"diligence/internal/investigation/service"
	"diligence/internal/investigation/store"
	"diligence/internal/platform/config"
	"diligence/internal/platform/kafka"
	"diligence/internal/platform/postgres"
	"diligence/internal/platform/redis"
	"diligence/internal/ratelimit"
	"diligence/pkg/platform/circuit"
)

const (
	auditBuffer   = 256
	sweepInterval = 10 * time.Minute
)

// App holds the assembled pipeline and the resources it owns.
type App struct {
	Service *service.Service
	Sources *sources.Registry
	// Limiter throttles investigation requests. Nil when disabled.
	Limiter *ratelimit.Middleware

	logger     *slog.Logger
	audit      *audit.AsyncPublisher
	memCache   *cache.MemoryStore
	memLimits  *ratelimit.MemoryStore
	db         *sql.DB
	redis      *redis.Client
	kafka      *kgo.Client
	background context.CancelFunc
}

// Options adjust Build for the CLI, which keeps everything in memory.
type Options struct {
	// Registerer receives module metrics. Nil uses a private registry.
	Registerer prometheus.Registerer
	// Ephemeral skips Postgres and Kafka even when configured.
	Ephemeral bool
	// Audit replaces the configured audit sink.
	Audit audit.Publisher
}

// Build connects the optional backends and wires the service. Call Close
// when done.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	evidenceMetrics := evmetrics.New(reg)
	investigationMetrics := invmetrics.New(reg)

	cacheStore, err := a.evidenceCache(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	registry, err := buildSources(cfg.Sources, cacheStore, logger, evidenceMetrics)
	if err != nil {
		return nil, err
	}
	a.Sources = registry

	invStore, err := a.investigationStore(ctx, cfg.Database, opts.Ephemeral)
	if err != nil {
		return nil, err
	}

	sink := opts.Audit
	if sink == nil {
		if sink, err = a.auditSink(ctx, cfg.Kafka, opts.Ephemeral); err != nil {
			return nil, err
		}
	}

	a.rateLimiter(cfg.Limits)

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.background = cancel
	a.audit = audit.NewAsyncPublisher(sink, auditBuffer, logger)
	go a.audit.Run(bgCtx)
	if a.memCache != nil || a.memLimits != nil {
		go a.sweep(bgCtx)
	}

	executor := fanout.New(registry,
		fanout.WithConcurrency(cfg.Pipeline.Concurrency),
		fanout.WithTaskTimeout(cfg.Pipeline.TaskTimeout),
		fanout.WithRetries(cfg.Pipeline.TaskRetries),
		fanout.WithLogger(logger),
		fanout.WithMetrics(evidenceMetrics),
	)

	model := newOracle(cfg.Oracle, logger)
	breaker := circuit.New("oracle",
		circuit.WithFailureThreshold(cfg.Oracle.FailureThreshold),
		circuit.WithCooldown(cfg.Oracle.BreakerCooldown),
	)
	invoker := oracle.NewInvoker(model,
		oracle.WithTimeout(cfg.Oracle.Timeout),
		oracle.WithRetries(cfg.Oracle.Retries),
		oracle.WithBreaker(breaker),
		oracle.WithLogger(logger),
		oracle.WithMetrics(investigationMetrics),
	)

	svcOpts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(investigationMetrics),
		service.WithAuditPublisher(a.audit),
		service.WithTimeout(cfg.Pipeline.InvestigationLimit),
		service.WithAssembler(assembler.New(assembler.Budget{
			Total:    cfg.Pipeline.ContextBudget,
			Document: cfg.Pipeline.DocumentBudget,
		})),
	}
	if cfg.Pipeline.PreclassifySector {
		classifyInvoker := oracle.NewInvoker(model,
			oracle.WithTimeout(cfg.Pipeline.ClassifierTimeout),
			oracle.WithRetries(0),
			oracle.WithBreaker(breaker),
			oracle.WithLogger(logger),
			oracle.WithMetrics(investigationMetrics),
		)
		svcOpts = append(svcOpts, service.WithClassifier(oracle.NewClassifier(classifyInvoker)))
	}

	a.Service = service.New(invStore, executor, service.NewPlanner(registry), invoker, svcOpts...)

	logger.InfoContext(ctx, "pipeline ready",
		"sources", registry.Kinds(),
		"store", storeName(a.db),
		"cache", cacheName(a.redis, cacheStore),
		"audit", auditName(a.kafka, opts.Audit),
		"preclassify_sector", cfg.Pipeline.PreclassifySector,
	)
	return a, nil
}

// Health pings the optional backends.
func (a *App) Health(ctx context.Context) error {
	var errs []error
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.kafka != nil {
		if err := a.kafka.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending audit events and releases connections.
func (a *App) Close() {
	if a.background != nil {
		a.background()
		select {
		case <-a.audit.Done():
		case <-time.After(10 * time.Second):
			a.logger.Warn("timed out flushing audit events")
		}
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) evidenceCache(ctx context.Context, cfg config.RedisConfig) (cache.Store, error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client != nil {
		a.redis = client
		return cache.NewRedisStore(client.Client), nil
	}
	a.memCache = cache.NewMemoryStore()
	return a.memCache, nil
}

func (a *App) investigationStore(ctx context.Context, cfg config.DatabaseConfig, ephemeral bool) (service.Store, error) {
	if ephemeral {
		return store.NewInMemoryStore(), nil
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return store.NewInMemoryStore(), nil
	}
	a.db = db
	pg := store.NewPostgres(db)
	if cfg.MigrateOnStart {
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return pg, nil
}

func (a *App) auditSink(ctx context.Context, cfg config.KafkaConfig, ephemeral bool) (audit.Publisher, error) {
	if ephemeral {
		return audit.NopPublisher{}, nil
	}
	client, err := kafka.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return audit.NopPublisher{}, nil
	}
	a.kafka = client
	if err := kafka.EnsureTopic(ctx, client, cfg.AuditTopic, cfg.Partitions); err != nil {
		return nil, err
	}
	return audit.NewKafkaPublisher(client, cfg.AuditTopic), nil
}

// rateLimiter shares windows through Redis when the cache uses it.
func (a *App) rateLimiter(cfg config.RateLimitConfig) {
	if cfg.Investigations <= 0 {
		return
	}
	var store ratelimit.Store
	if a.redis != nil {
		store = ratelimit.NewRedisStore(a.redis.Client)
	} else {
		a.memLimits = ratelimit.NewMemoryStore()
		store = a.memLimits
	}
	a.Limiter = ratelimit.NewMiddleware(store, cfg.Investigations, cfg.Window, a.logger)
}

func (a *App) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.memCache != nil {
				if n := a.memCache.Sweep(); n > 0 {
					a.logger.DebugContext(ctx, "swept expired evidence", "entries", n)
				}
			}
			if a.memLimits != nil {
				a.memLimits.Sweep()
			}
		}
	}
}

// buildSources registers every adapter whose credentials are configured,
// each behind the evidence cache.
func buildSources(cfg config.SourcesConfig, store cache.Store, logger *slog.Logger, m *evmetrics.Metrics) (*sources.Registry, error) {
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	common := func() []sources.ClientOption {
		return []sources.ClientOption{
			sources.WithHTTPClient(client),
			sources.WithRateLimit(cfg.RequestsPerSecond, 1),
		}
	}

	var srcs []sources.Source
	if cfg.CompaniesHouseKey != "" {
		srcs = append(srcs, companieshouse.New(cfg.CompaniesHouseURL, cfg.CompaniesHouseKey, common()...))
	}
	if cfg.OpenCorporatesURL != "" {
		srcs = append(srcs, opencorporates.New(cfg.OpenCorporatesURL, cfg.OpenCorporatesToken, common()...))
	}
	if cfg.AviationRegistryURL != "" {
		srcs = append(srcs, aviation.New(cfg.AviationRegistryURL, cfg.AviationRegistryKey, common()...))
	}
	if cfg.OpenSanctionsKey != "" {
		srcs = append(srcs, opensanctions.New(cfg.OpenSanctionsURL, cfg.OpenSanctionsKey, cfg.SanctionsMatchCutoff, common()...))
	}
	if cfg.WebSearchKey != "" {
		srcs = append(srcs, websearch.New(cfg.WebSearchURL, cfg.WebSearchKey, common()...))
	}

	for i, s := range srcs {
		srcs[i] = cache.Wrap(s, store, cfg.CacheTTL, cache.WithLogger(logger), cache.WithMetrics(m))
	}
	return sources.NewRegistry(srcs...)
}

// newOracle returns the OpenAI-backed oracle, or one that always reports an
// authentication failure when no key is configured so every investigation
// ends in the fallback report.
func newOracle(cfg config.OracleConfig, logger *slog.Logger) oracle.Oracle {
	if cfg.APIKey == "" {
		logger.Warn("ORACLE_API_KEY not set, every investigation will use the fallback report")
		return oracle.Func(func(context.Context, string) (string, error) {
			return "", &oracle.UnavailableError{Reason: oracle.ReasonAuthentication, Err: errors.New("no API key configured")}
		})
	}
	return oracle.NewOpenAI(oracle.OpenAIConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		JSONMode:    true,
	}, nil)
}

func storeName(db *sql.DB) string {
	if db != nil {
		return "postgres"
	}
	return "memory"
}

func cacheName(client *redis.Client, store cache.Store) string {
	switch {
	case client != nil:
		return "redis"
	case store != nil:
		return "memory"
	default:
		return "none"
	}
}

func auditName(client *kgo.Client, override audit.Publisher) string {
	switch {
	case override != nil:
		return "custom"
	case client != nil:
		return "kafka"
	default:
		return "none"
	}
}
