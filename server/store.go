package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/luansfranca/sopromocoes/models"
)

// SelectionStore persists visitor selections so a session evicted from
// memory can be rebuilt.
type SelectionStore interface {
	Load(ctx context.Context, sessionID string) (models.Selection, bool, error)
	Save(ctx context.Context, sessionID string, sel models.Selection) error
}

// MemoryStore keeps selections in process, bounded and expiring.
type MemoryStore struct {
	entries *expirable.LRU[string, models.Selection]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{entries: expirable.NewLRU[string, models.Selection](size, nil, ttl)}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (models.Selection, bool, error) {
	sel, ok := m.entries.Get(sessionID)
	return sel, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, sessionID string, sel models.Selection) error {
	m.entries.Add(sessionID, sel)
	return nil
}

// RedisStore keeps selections as JSON values with a sliding TTL.
type RedisStore struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisStore checks the connection before returning.
func NewRedisStore(ctx context.Context, rdb redis.UniversalClient, ttl time.Duration) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client must be non-nil")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: "sopromocoes:selection:"}, nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (models.Selection, bool, error) {
	data, err := s.rdb.GetEx(ctx, s.prefix+sessionID, s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Selection{}, false, nil
	}
	if err != nil {
		return models.Selection{}, false, fmt.Errorf("load selection: %w", err)
	}
	var sel models.Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return models.Selection{}, false, fmt.Errorf("decode selection: %w", err)
	}
	return sel, true, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, sel models.Selection) error {
	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	if err := s.rdb.Set(ctx, s.prefix+sessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}
