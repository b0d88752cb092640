// Package redis provides Redis-backed adapters: a SagaStore, a DistributedLocker
// and a Router publishing envelopes to Redis Streams.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the adapters.
const DefaultPrefix = "sagaflow:saga:"

// Store implements ports.SagaStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for saga records.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for saga records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Records live under "<prefix>record:" so no saga id can name the index.
func (s *Store) key(sagaID string) string {
	return s.prefix + "record:" + sagaID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the record to Redis.
func (s *Store) Save(ctx context.Context, saga *domain.Saga) error {
	data, err := json.Marshal(saga)
	if err != nil {
		return fmt.Errorf("failed to marshal saga: %w", err)
	}

	pipe := s.client.TxPipeline()

	// 1. Save JSON with TTL (0 means no expiration)
	pipe.Set(ctx, s.key(saga.ID), data, s.ttl)

	// 2. Add to Index (ZSET). Score = expiry instant.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: saga.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}

	return nil
}

// Load retrieves the record from Redis.
func (s *Store) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	val, err := s.client.Get(ctx, s.key(sagaID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSagaNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var saga domain.Saga
	if err := json.Unmarshal(val, &saga); err != nil {
		return nil, fmt.Errorf("failed to unmarshal saga: %w", err)
	}

	return &saga, nil
}

// Delete removes the record and its index entry.
func (s *Store) Delete(ctx context.Context, sagaID string) error {
	pipe := s.client.TxPipeline()

	pipe.Del(ctx, s.key(sagaID))
	pipe.ZRem(ctx, s.indexKey(), sagaID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns stored sagas. Expired index entries are pruned lazily.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())

	// ZREMRANGEBYSCORE key -inf (now)
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired sagas: %w", err)
	}

	sagas, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sagas: %w", err)
	}

	return sagas, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
