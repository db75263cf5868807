package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/em-ech/siftopsv1-sub000/internal/service"
)

// maxUpdateAttempts bounds optimistic retries when another writer touches the key.
const maxUpdateAttempts = 8

// RedisStore keeps bundles as JSON values so several API instances can share them.
// Updates use WATCH/MULTI, so a concurrent write on another instance aborts and retries.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. A zero ttl keeps bundles until deleted.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sift:bundle:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// NewRedisClient connects to url, which is either a redis:// URL or host:port.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) key(tenantID, id string) string {
	return s.prefix + tenantID + ":" + id
}

func (s *RedisStore) Create(ctx context.Context, b *Bundle) error {
	raw, err := json.Marshal(b.Clone())
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.key(b.TenantID, b.ID), raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store bundle: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, tenantID, id string) (*Bundle, error) {
	return s.load(ctx, s.rdb, s.key(tenantID, id))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, g getter, key string) (*Bundle, error) {
	raw, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, service.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if b.Members == nil {
		b.Members = []string{}
	}
	return &b, nil
}

// Update applies fn under WATCH. The transaction fails if the key changed
// between read and write, in which case it is retried from a fresh read.
func (s *RedisStore) Update(ctx context.Context, tenantID, id string, fn MutateFunc) (*Bundle, error) {
	key := s.key(tenantID, id)
	var out *Bundle

	txf := func(tx *redis.Tx) error {
		b, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		b.UpdatedAt = time.Now().UTC()
		raw, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to encode bundle: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		out = b
		return nil
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("failed to update bundle %s: too much contention", id)
}

func (s *RedisStore) Delete(ctx context.Context, tenantID, id string) error {
	n, err := s.rdb.Del(ctx, s.key(tenantID, id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete bundle: %w", err)
	}
	if n == 0 {
		return service.ErrNotFound
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
