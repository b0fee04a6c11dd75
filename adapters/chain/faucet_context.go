package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/layer-3/faucet/ports"
)

// Backend is the part of *ethclient.Client the faucet uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// FaucetContext bundles the connected client, the token contract and the
// faucet account. It is built once at startup and injected where needed.
type FaucetContext struct {
	backend  Backend
	contract common.Address
	token    abi.ABI
	signer   *KeySigner

	// PollInterval is how often WaitForReceipt asks for the receipt.
	PollInterval time.Duration

	close func()
}

// Dial connects to rpcURL and builds the context for the token at contract
func Dial(ctx context.Context, rpcURL, contract string, signer *KeySigner) (*FaucetContext, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	fc, err := New(client, common.HexToAddress(contract), signer)
	if err != nil {
		client.Close()
		return nil, err
	}
	fc.close = client.Close
	return fc, nil
}

// New builds a context on top of any Backend
func New(backend Backend, contract common.Address, signer *KeySigner) (*FaucetContext, error) {
	token, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token abi: %w", err)
	}

	return &FaucetContext{
		backend:      backend,
		contract:     contract,
		token:        token,
		signer:       signer,
		PollInterval: time.Second,
	}, nil
}

// Signer returns the faucet account signer
func (f *FaucetContext) Signer() ports.Signer {
	return f.signer
}

// Contract returns the token contract address
func (f *FaucetContext) Contract() common.Address {
	return f.contract
}

// Close releases the RPC connection
func (f *FaucetContext) Close() {
	if f.close != nil {
		f.close()
	}
}

// TokenBalance calls balanceOf(owner) on the token contract
func (f *FaucetContext) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := f.token.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	out, err := f.backend.CallContract(ctx, ethereum.CallMsg{To: &f.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	values, err := f.token.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected balanceOf response: %v", values)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", values[0])
	}
	return balance, nil
}

// NativeBalance returns the account balance used to pay for gas
func (f *FaucetContext) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return f.backend.BalanceAt(ctx, owner, nil)
}

// GasPrice returns the node's suggested gas price in wei
func (f *FaucetContext) GasPrice(ctx context.Context) (*big.Int, error) {
	return f.backend.SuggestGasPrice(ctx)
}

// ChainID returns the id of the connected network
func (f *FaucetContext) ChainID(ctx context.Context) (*big.Int, error) {
	return f.backend.ChainID(ctx)
}

// PendingNonce returns the next nonce for owner, counting pending transactions
func (f *FaucetContext) PendingNonce(ctx context.Context, owner common.Address) (uint64, error) {
	return f.backend.PendingNonceAt(ctx, owner)
}

// BuildTransfer builds an unsigned legacy transfer(to, amount) call
func (f *FaucetContext) BuildTransfer(to common.Address, amount, chainID *big.Int, gas uint64, gasPrice *big.Int, nonce uint64) (*types.Transaction, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id is required")
	}

	data, err := f.token.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer: %w", err)
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &f.contract,
		Value:    new(big.Int),
		Data:     data,
	}), nil
}

// Submit broadcasts a signed transaction
func (f *FaucetContext) Submit(ctx context.Context, tx *types.Transaction) error {
	return f.backend.SendTransaction(ctx, tx)
}

// WaitForReceipt polls until the transaction is mined or ctx is done
func (f *FaucetContext) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(f.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := f.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ ports.Chain = (*FaucetContext)(nil)
