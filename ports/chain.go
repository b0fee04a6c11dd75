package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Chain is the subset of the RPC node the faucet talks to.
type Chain interface {
	TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, owner common.Address) (uint64, error)
	BuildTransfer(to common.Address, amount, chainID *big.Int, gas uint64, gasPrice *big.Int, nonce uint64) (*types.Transaction, error)
	Submit(ctx context.Context, tx *types.Transaction) error
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Signer holds the faucet key in process memory.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}
