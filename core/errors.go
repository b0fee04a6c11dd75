package core

import "errors"

var (
	ErrConfiguration      = errors.New("invalid configuration")
	ErrInvalidAddress     = errors.New("invalid wallet address")
	ErrInsufficientFunds  = errors.New("insufficient faucet funds")
	ErrGasPriceOutOfRange = errors.New("gas price outside accepted band")
	ErrChain              = errors.New("chain error")
	ErrPersistence        = errors.New("ledger persistence failed")
	ErrCaptchaMismatch    = errors.New("captcha mismatch")
	ErrAlreadyClaimed     = errors.New("already claimed within window")
	ErrNoPendingChallenge = errors.New("no pending challenge")
	ErrClaimInProgress    = errors.New("claim already in progress")
	ErrUnauthorized       = errors.New("unauthorized")
)

// ChainError wraps any failure returned by the chain client.
type ChainError struct {
	Op  string
	Err error
}

func (e *ChainError) Error() string {
	return "chain " + e.Op + ": " + e.Err.Error()
}

func (e *ChainError) Unwrap() error { return e.Err }

func (e *ChainError) Is(target error) bool { return target == ErrChain }

// PersistenceError wraps a ledger I/O failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "ledger " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
