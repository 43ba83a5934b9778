// Package cache decorates evidence sources with a TTL cache so repeated
// investigations of the same subject do not re-query rate-limited registries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"diligence/internal/evidence/metrics"
	"diligence/internal/evidence/sources"
	"diligence/pkg/platform/sentinel"
)

const keyPrefix = "diligence:evidence:"

// Store is a TTL key-value store for evidence. Get returns sentinel.ErrNotFound
// on a miss or an expired entry.
type Store interface {
	Get(ctx context.Context, key string) (*sources.Evidence, error)
	Set(ctx context.Context, key string, evidence *sources.Evidence, ttl time.Duration) error
}

// Source wraps a sources.Source. Only Found evidence is cached; absences and
// failures always go to the upstream source. Cache errors never fail a lookup.
type Source struct {
	next    sources.Source
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the decorator.
type Option func(*Source)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Source) { s.metrics = m }
}

// Wrap decorates next. A non-positive ttl disables caching and returns next
// unchanged.
func Wrap(next sources.Source, store Store, ttl time.Duration, opts ...Option) sources.Source {
	if store == nil || ttl <= 0 {
		return next
	}
	s := &Source{next: next, store: store, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Kind() sources.Kind { return s.next.Kind() }

func (s *Source) Capabilities() sources.Capabilities { return s.next.Capabilities() }

func (s *Source) Lookup(ctx context.Context, params sources.Params) (*sources.Evidence, error) {
	kind := s.next.Kind()
	key := Key(kind, params)

	cached, err := s.store.Get(ctx, key)
	switch {
	case err == nil && cached != nil:
		s.metrics.IncrementCache(string(kind), "hit")
		return cached, nil
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncrementCache(string(kind), "error")
		s.logger.WarnContext(ctx, "evidence cache read failed", "source", kind, "error", err)
	default:
		s.metrics.IncrementCache(string(kind), "miss")
	}

	evidence, err := s.next.Lookup(ctx, params)
	if err != nil || evidence == nil {
		return evidence, err
	}
	if err := s.store.Set(ctx, key, evidence, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "evidence cache write failed", "source", kind, "error", err)
	}
	return evidence, nil
}

// Key derives the cache key from the source kind and normalised parameters.
func Key(kind sources.Kind, params sources.Params) string {
	sum := sha256.Sum256([]byte(params.CacheKey()))
	return keyPrefix + string(kind) + ":" + hex.EncodeToString(sum[:])
}
