package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/horizonmkt/market-engine/internal/model"
)

// RedisStore persists the snapshot as one JSON value under a per-market
// key. Suitable when the deployment already runs Redis and accepts its
// durability semantics for the snapshot.
type RedisStore struct {
	rdb      *redis.Client
	marketID string
}

// NewRedisStore creates a Redis-backed snapshot store scoped to one
// market ID.
func NewRedisStore(rdb *redis.Client, marketID string) *RedisStore {
	return &RedisStore{rdb: rdb, marketID: marketID}
}

func snapshotKey(marketID string) string {
	return fmt.Sprintf("snapshot:%s", marketID)
}

func (s *RedisStore) Load(ctx context.Context) (*model.Snapshot, error) {
	data, err := s.rdb.Get(ctx, snapshotKey(s.marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot %s: %w", s.marketID, err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", s.marketID, err)
	}
	return &snap, nil
}

func (s *RedisStore) Save(ctx context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	// No TTL: the snapshot is authoritative state, not a cache entry.
	if err := s.rdb.Set(ctx, snapshotKey(s.marketID), data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", s.marketID, err)
	}
	return nil
}
