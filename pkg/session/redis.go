package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph/metrics"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis so several instances can serve one user
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "concept-graph:"
	TTL      time.Duration // Session expiration, 0 keeps sessions forever
}

// NewRedisStore creates a new Redis session store
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "concept-graph:"
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

// Ping checks the connection
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) key(id string) string {
	return fmt.Sprintf("%ssession:%s", r.prefix, id)
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.SessionLookups.WithLabelValues(BackendRedis, "miss").Inc()
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to load session from redis")
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session")
	}

	metrics.SessionLookups.WithLabelValues(BackendRedis, "hit").Inc()
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now()

	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}

	if err := r.client.Set(ctx, r.key(s.ID), data, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save session to redis")
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return errors.Wrap(err, "failed to delete session from redis")
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
