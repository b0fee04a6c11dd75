package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/ports"
)

// MemoryStore is an in-memory implementation of the ChallengeStore interface
type MemoryStore struct {
	challenges map[string]core.PendingChallenge
	ttl        time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

// NewMemoryStore creates a new in-memory challenge store. A zero ttl keeps
// challenges until they are taken or overwritten.
func NewMemoryStore(ttl time.Duration) ports.ChallengeStore {
	return &MemoryStore{
		challenges: make(map[string]core.PendingChallenge),
		ttl:        ttl,
		now:        time.Now,
	}
}

// Put stores the challenge, replacing any earlier one for the identity
func (s *MemoryStore) Put(ctx context.Context, challenge core.PendingChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challenge.Identity] = challenge
	return nil
}

// Take returns and removes the pending challenge for identity
func (s *MemoryStore) Take(ctx context.Context, identity string) (core.PendingChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[identity]
	if !ok {
		return core.PendingChallenge{}, core.ErrNoPendingChallenge
	}
	delete(s.challenges, identity)

	if s.ttl > 0 && s.now().Sub(challenge.IssuedAt) > s.ttl {
		return core.PendingChallenge{}, core.ErrNoPendingChallenge
	}
	return challenge, nil
}

// Delete drops the pending challenge for identity, if any
func (s *MemoryStore) Delete(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.challenges, identity)
	return nil
}
