package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// RedisLedger stores one hash per identity, wallet -> last claim seconds.
type RedisLedger struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisLedger creates a ledger on top of an existing client.
func NewRedisLedger(client *redis.Client, window time.Duration) *RedisLedger {
	return &RedisLedger{
		client: client,
		prefix: "faucet:ledger:",
		window: window,
	}
}

// Lookup returns the record for the pair, if one exists
func (l *RedisLedger) Lookup(ctx context.Context, identity, wallet string) (core.ClaimRecord, bool, error) {
	start := time.Now()
	defer func() { metrics.ObserveLedgerOperation("redis_lookup", time.Since(start)) }()

	raw, err := l.client.HGet(ctx, l.prefix+identity, wallet).Result()
	if errors.Is(err, redis.Nil) {
		return core.ClaimRecord{}, false, nil
	}
	if err != nil {
		return core.ClaimRecord{}, false, &core.PersistenceError{Op: "read", Err: err}
	}

	ts, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return core.ClaimRecord{}, false, &core.PersistenceError{Op: "decode", Err: err}
	}
	return core.ClaimRecord{Identity: identity, Wallet: wallet, LastClaimTimestamp: ts}, true, nil
}

// IsEligible reports whether the pair has no record or its window has elapsed
func (l *RedisLedger) IsEligible(ctx context.Context, identity, wallet string, now time.Time) (bool, error) {
	rec, ok, err := l.Lookup(ctx, identity, wallet)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return rec.EligibleAt(now, l.window), nil
}

// RecordClaim writes the timestamp; Redis acknowledges only after applying it
func (l *RedisLedger) RecordClaim(ctx context.Context, identity, wallet string, now time.Time) error {
	start := time.Now()
	defer func() { metrics.ObserveLedgerOperation("redis_record_claim", time.Since(start)) }()

	ts := strconv.FormatFloat(core.UnixSeconds(now), 'f', -1, 64)
	if err := l.client.HSet(ctx, l.prefix+identity, wallet, ts).Err(); err != nil {
		return &core.PersistenceError{Op: "write", Err: err}
	}
	return nil
}
