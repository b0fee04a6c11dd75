package core

import (
	"math/big"
	"time"
)

// DefaultClaimWindow is the cooldown between two successful claims of a pair.
const DefaultClaimWindow = 24 * time.Hour

// ClaimRecord is the last successful disbursement to an (identity, wallet) pair.
type ClaimRecord struct {
	Identity           string
	Wallet             string
	LastClaimTimestamp float64 // seconds since epoch
}

// LastClaimAt returns the record timestamp as a time.Time.
func (r ClaimRecord) LastClaimAt() time.Time {
	sec := int64(r.LastClaimTimestamp)
	nsec := int64((r.LastClaimTimestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// NextClaimAt returns when the pair becomes eligible again.
func (r ClaimRecord) NextClaimAt(window time.Duration) time.Time {
	return r.LastClaimAt().Add(window)
}

// EligibleAt reports whether the pair may claim again at now.
func (r ClaimRecord) EligibleAt(now time.Time, window time.Duration) bool {
	return UnixSeconds(now)-r.LastClaimTimestamp >= window.Seconds()
}

// UnixSeconds converts t to fractional seconds since epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// TransferRequest is a single disbursement order.
type TransferRequest struct {
	Recipient string
	Amount    *big.Int
}

// TokenAmount scales whole tokens by the token's decimal precision.
func TokenAmount(tokens int64, decimals int32) *big.Int {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return exp.Mul(exp, big.NewInt(tokens))
}
