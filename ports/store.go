package ports

import (
	"context"
	"time"

	"github.com/layer-3/faucet/core"
)

// Ledger persists last-claim timestamps per (identity, wallet).
type Ledger interface {
	IsEligible(ctx context.Context, identity, wallet string, now time.Time) (bool, error)
	// RecordClaim must be durable before it returns.
	RecordClaim(ctx context.Context, identity, wallet string, now time.Time) error
	Lookup(ctx context.Context, identity, wallet string) (core.ClaimRecord, bool, error)
}

// ChallengeStore keeps at most one pending CAPTCHA per identity.
type ChallengeStore interface {
	// Put overwrites any challenge already pending for the identity.
	Put(ctx context.Context, challenge core.PendingChallenge) error
	// Take returns and clears the pending challenge, or core.ErrNoPendingChallenge.
	Take(ctx context.Context, identity string) (core.PendingChallenge, error)
	Delete(ctx context.Context, identity string) error
}

// Locker serializes work on a key across goroutines (and processes, for Redis).
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
