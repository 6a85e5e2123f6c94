package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/database"
	apperrors "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/errors"
)

// Store implements repository.SnapshotStore using Redis. Keys expire after ttl
// so abandoned carts are reclaimed even if no client ever loads them again.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a new Redis-backed snapshot store. A zero ttl stores keys
// without expiry.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the raw snapshot stored under key.
func (s *Store) Get(ctx context.Context, key string) (data []byte, err error) {
	ctx, end := database.TraceCommand(ctx, "GET", key)
	defer func() { end(err) }()

	data, err = s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart snapshot", key)
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	return data, nil
}

// Set persists a snapshot with the configured TTL.
func (s *Store) Set(ctx context.Context, key string, data []byte) (err error) {
	ctx, end := database.TraceCommand(ctx, "SET", key)
	defer func() { end(err) }()

	if err = s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

// Delete removes a snapshot.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceCommand(ctx, "DEL", key)
	defer func() { end(err) }()

	if err = s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del snapshot: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
