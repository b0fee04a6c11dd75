package core

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimRecordEligibleAt(t *testing.T) {
	last := time.Unix(1700000000, 0)
	rec := ClaimRecord{Identity: "u1", Wallet: "0xabc", LastClaimTimestamp: UnixSeconds(last)}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"same instant", last, false},
		{"one second short", last.Add(DefaultClaimWindow - time.Second), false},
		{"exactly at window", last.Add(DefaultClaimWindow), true},
		{"after window", last.Add(DefaultClaimWindow + time.Hour), true},
		{"clock behind record", last.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rec.EligibleAt(tt.now, DefaultClaimWindow))
		})
	}
}

func TestClaimRecordNextClaimAt(t *testing.T) {
	rec := ClaimRecord{LastClaimTimestamp: 1700000000.5}

	assert.Equal(t, time.Unix(1700000000, 500000000), rec.LastClaimAt())
	assert.Equal(t, time.Unix(1700086400, 500000000), rec.NextClaimAt(DefaultClaimWindow))
}

func TestTokenAmount(t *testing.T) {
	want, ok := new(big.Int).SetString("10000000000000000000", 10)
	require.True(t, ok)

	assert.Equal(t, 0, TokenAmount(10, 18).Cmp(want))
	assert.Equal(t, int64(7), TokenAmount(7, 0).Int64())
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("connection refused")

	chainErr := fmt.Errorf("disburse: %w", &ChainError{Op: "submit", Err: cause})
	assert.ErrorIs(t, chainErr, ErrChain)
	assert.ErrorIs(t, chainErr, cause)
	assert.NotErrorIs(t, chainErr, ErrPersistence)

	var ce *ChainError
	require.ErrorAs(t, chainErr, &ce)
	assert.Equal(t, "submit", ce.Op)

	persistErr := &PersistenceError{Op: "write", Err: cause}
	assert.ErrorIs(t, persistErr, ErrPersistence)
	assert.EqualError(t, persistErr, "ledger write: connection refused")
}
