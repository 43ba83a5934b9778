//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"diligence/internal/evidence/cache"
	"diligence/internal/evidence/sources"
	"diligence/pkg/platform/sentinel"
	"diligence/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *cache.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = cache.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	key := cache.Key(sources.KindCompaniesHouse, sources.Params{"name": "Acme"})
	ev := &sources.Evidence{
		Kind:       sources.KindCompaniesHouse,
		SourceID:   "01234567",
		Confidence: 1,
		Facts:      map[string]any{"company_status": "active"},
		CheckedAt:  time.Now().UTC().Truncate(time.Second),
	}

	s.Require().NoError(s.store.Set(ctx, key, ev, time.Minute))

	found, err := s.store.Get(ctx, key)
	s.Require().NoError(err)
	s.Equal(ev.SourceID, found.SourceID)
	s.Equal("active", found.Facts["company_status"])
	s.True(ev.CheckedAt.Equal(found.CheckedAt))
}

func (s *RedisStoreSuite) TestMiss() {
	_, err := s.store.Get(context.Background(), "diligence:evidence:missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestExpiry() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, "short", &sources.Evidence{SourceID: "x"}, 50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)

	_, err := s.store.Get(ctx, "short")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
