package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the ChallengeStore interface
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis challenge store. A zero ttl means no expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) ports.ChallengeStore {
	return &RedisStore{
		client: client,
		prefix: "faucet:challenge:",
		ttl:    ttl,
	}
}

// Put stores the challenge, replacing any earlier one for the identity
func (s *RedisStore) Put(ctx context.Context, challenge core.PendingChallenge) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+challenge.Identity, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	return nil
}

// Take returns and removes the pending challenge in a single GETDEL
func (s *RedisStore) Take(ctx context.Context, identity string) (core.PendingChallenge, error) {
	raw, err := s.client.GetDel(ctx, s.prefix+identity).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.PendingChallenge{}, core.ErrNoPendingChallenge
		}
		return core.PendingChallenge{}, fmt.Errorf("failed to take challenge: %w", err)
	}

	var challenge core.PendingChallenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return core.PendingChallenge{}, fmt.Errorf("failed to decode challenge: %w", err)
	}

	return challenge, nil
}

// Delete drops the pending challenge for identity, if any
func (s *RedisStore) Delete(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, s.prefix+identity).Err(); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}
