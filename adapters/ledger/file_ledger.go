package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/internal/metrics"
)

// entry is the per-wallet value in the ledger document.
type entry struct {
	LastClaim float64 `json:"last_claim"`
}

// document mirrors the file layout: identity -> wallet -> entry.
type document map[string]map[string]entry

// FileLedger keeps the whole ledger in memory and rewrites the JSON document
// atomically on every mutation.
type FileLedger struct {
	path   string
	window time.Duration

	mu  sync.RWMutex
	doc document

	write func(path string, data []byte, perm os.FileMode) error
}

// OpenFile loads the ledger at path. A missing file is an empty ledger.
func OpenFile(path string, window time.Duration) (*FileLedger, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, &core.PersistenceError{Op: "load", Err: err}
	}

	return &FileLedger{
		path:   path,
		window: window,
		doc:    doc,
		write: func(path string, data []byte, perm os.FileMode) error {
			return renameio.WriteFile(path, data, perm)
		},
	}, nil
}

func readDocument(path string) (document, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return document{}, nil
	}

	doc := document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

// Lookup returns the record for the pair, if one exists
func (l *FileLedger) Lookup(ctx context.Context, identity, wallet string) (core.ClaimRecord, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.doc[identity][wallet]
	if !ok {
		return core.ClaimRecord{}, false, nil
	}
	return core.ClaimRecord{Identity: identity, Wallet: wallet, LastClaimTimestamp: e.LastClaim}, true, nil
}

// IsEligible reports whether the pair has no record or its window has elapsed
func (l *FileLedger) IsEligible(ctx context.Context, identity, wallet string, now time.Time) (bool, error) {
	rec, ok, err := l.Lookup(ctx, identity, wallet)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return rec.EligibleAt(now, l.window), nil
}

// RecordClaim upserts the pair and persists the full document before returning.
// The in-memory view only changes once the write has succeeded.
func (l *FileLedger) RecordClaim(ctx context.Context, identity, wallet string, now time.Time) error {
	start := time.Now()
	defer func() { metrics.ObserveLedgerOperation("file_record_claim", time.Since(start)) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	next := make(document, len(l.doc)+1)
	for id, wallets := range l.doc {
		next[id] = wallets
	}
	wallets := make(map[string]entry, len(l.doc[identity])+1)
	for w, e := range l.doc[identity] {
		wallets[w] = e
	}
	wallets[wallet] = entry{LastClaim: core.UnixSeconds(now)}
	next[identity] = wallets

	data, err := json.Marshal(next)
	if err != nil {
		return &core.PersistenceError{Op: "encode", Err: err}
	}
	if err := l.write(l.path, data, 0o600); err != nil {
		return &core.PersistenceError{Op: "write", Err: err}
	}

	l.doc = next
	return nil
}

// Len returns the number of recorded pairs.
func (l *FileLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, wallets := range l.doc {
		n += len(wallets)
	}
	return n
}
