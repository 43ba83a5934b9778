package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"diligence/internal/evidence/sources"
	"diligence/pkg/platform/sentinel"
)

// RedisStore keeps evidence as JSON strings with a TTL.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (*sources.Evidence, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get evidence %s: %w", key, err)
	}
	var ev sources.Evidence
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode cached evidence: %w", err)
	}
	return &ev, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, evidence *sources.Evidence, ttl time.Duration) error {
	if evidence == nil {
		return nil
	}
	raw, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set evidence %s: %w", key, err)
	}
	return nil
}
