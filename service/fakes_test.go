package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/ports"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

// fakeChain answers every call from its fields; errs is keyed by method name
type fakeChain struct {
	mu sync.Mutex

	tokenBalance  *big.Int
	nativeBalance *big.Int
	gasPrice      *big.Int
	chainID       *big.Int
	nonce         uint64
	status        uint64
	blockReceipt  bool
	stallBalance  bool
	errs          map[string]error

	submitted []*types.Transaction
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		tokenBalance:  core.TokenAmount(1000, 18),
		nativeBalance: core.TokenAmount(1, 18),
		gasPrice:      gwei(50),
		chainID:       big.NewInt(1516),
		nonce:         42,
		status:        types.ReceiptStatusSuccessful,
		errs:          map[string]error{},
	}
}

func (c *fakeChain) err(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs[op]
}

func (c *fakeChain) TokenBalance(ctx context.Context, _ common.Address) (*big.Int, error) {
	if c.stallBalance {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := c.err("TokenBalance"); err != nil {
		return nil, err
	}
	return c.tokenBalance, nil
}

func (c *fakeChain) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	if err := c.err("NativeBalance"); err != nil {
		return nil, err
	}
	return c.nativeBalance, nil
}

func (c *fakeChain) GasPrice(context.Context) (*big.Int, error) {
	if err := c.err("GasPrice"); err != nil {
		return nil, err
	}
	return c.gasPrice, nil
}

func (c *fakeChain) ChainID(context.Context) (*big.Int, error) {
	return c.chainID, nil
}

func (c *fakeChain) PendingNonce(context.Context, common.Address) (uint64, error) {
	if err := c.err("PendingNonce"); err != nil {
		return 0, err
	}
	return c.nonce, nil
}

func (c *fakeChain) BuildTransfer(to common.Address, amount, chainID *big.Int, gas uint64, gasPrice *big.Int, nonce uint64) (*types.Transaction, error) {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    new(big.Int),
		Data:     amount.Bytes(),
	}), nil
}

func (c *fakeChain) Submit(_ context.Context, tx *types.Transaction) error {
	if err := c.err("Submit"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = append(c.submitted, tx)
	return nil
}

func (c *fakeChain) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if c.blockReceipt {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &types.Receipt{Status: c.status, TxHash: hash}, nil
}

func (c *fakeChain) submittedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.submitted)
}

// scriptedCaptcha hands out codes in order
type scriptedCaptcha struct {
	mu    sync.Mutex
	codes []string
}

func (c *scriptedCaptcha) Issue() (string, core.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.codes) == 0 {
		return "", core.Image{}, errors.New("no more codes")
	}
	code := c.codes[0]
	c.codes = c.codes[1:]
	return code, core.Image{ContentType: "image/png", Data: []byte("png:" + code)}, nil
}

func (c *scriptedCaptcha) Verify(code, input string) bool {
	return code != "" && code == input
}

type disburseCall struct {
	recipient string
	amount    *big.Int
}

// countingDisburser records calls and optionally holds each one for delay
type countingDisburser struct {
	mu    sync.Mutex
	calls []disburseCall
	delay time.Duration
	err   error
}

func (d *countingDisburser) Disburse(ctx context.Context, recipient string, amount *big.Int) (string, error) {
	d.mu.Lock()
	d.calls = append(d.calls, disburseCall{recipient: recipient, amount: amount})
	n := len(d.calls)
	d.mu.Unlock()

	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return "", d.err
	}
	return common.BigToHash(big.NewInt(int64(n))).Hex(), nil
}

func (d *countingDisburser) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// failingRecordLedger reads through to the wrapped ledger but never records
type failingRecordLedger struct {
	ports.Ledger
}

func (l failingRecordLedger) RecordClaim(context.Context, string, string, time.Time) error {
	return &core.PersistenceError{Op: "write", Err: errors.New("disk full")}
}

// replayStore returns the same challenge to every Take, as two racing
// replicas would
type replayStore struct {
	challenge core.PendingChallenge
}

func (s *replayStore) Put(context.Context, core.PendingChallenge) error { return nil }

func (s *replayStore) Take(context.Context, string) (core.PendingChallenge, error) {
	return s.challenge, nil
}

func (s *replayStore) Delete(context.Context, string) error { return nil }

type busyLocker struct{}

func (busyLocker) Lock(context.Context, string) (func(), error) {
	return nil, core.ErrClaimInProgress
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.ClaimEvent
}

func (p *recordingPublisher) PublishClaim(_ context.Context, event core.ClaimEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
