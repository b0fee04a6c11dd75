package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/internal/metrics"
	"github.com/layer-3/faucet/ports"
)

// DisburserConfig holds the fixed transaction parameters. CallTimeout bounds
// every RPC before the receipt wait, submit included.
type DisburserConfig struct {
	ChainID        *big.Int
	GasLimit       uint64
	GasMinGwei     decimal.Decimal
	GasMaxGwei     decimal.Decimal
	CallTimeout    time.Duration
	ConfirmTimeout time.Duration
}

// DefaultCallTimeout applies when DisburserConfig.CallTimeout is unset
const DefaultCallTimeout = 30 * time.Second

// Disburser performs ERC-20 transfers from the faucet account
type Disburser struct {
	chain  ports.Chain
	signer ports.Signer
	cfg    DisburserConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDisburser creates a new disburser
func NewDisburser(chain ports.Chain, signer ports.Signer, cfg DisburserConfig, logger zerolog.Logger) *Disburser {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Disburser{
		chain:  chain,
		signer: signer,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/layer-3/faucet/service"),
		logger: logger.With().Str("component", "disburser").Logger(),
	}
}

// Disburse validates the recipient and the faucet's funds, then sends amount
// and waits for one confirmation. The whole call takes at most CallTimeout
// plus ConfirmTimeout. The hash is returned whenever a transaction
// was submitted, even if confirmation failed.
func (d *Disburser) Disburse(ctx context.Context, recipient string, amount *big.Int) (txHash string, err error) {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "disburse", trace.WithAttributes(
		attribute.String("faucet.recipient", recipient),
		attribute.String("faucet.amount", amount.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.ObserveDisburse(resultLabel(err), time.Since(start))
	}()

	to, err := parseRecipient(recipient)
	if err != nil {
		return "", err
	}
	from := d.signer.Address()

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	balance, err := d.chain.TokenBalance(callCtx, from)
	if err != nil {
		return "", &core.ChainError{Op: "balance_of", Err: err}
	}
	if balance.Cmp(amount) < 0 {
		return "", fmt.Errorf("%w: token balance %s below %s", core.ErrInsufficientFunds, balance, amount)
	}

	gasPrice, err := d.chain.GasPrice(callCtx)
	if err != nil {
		return "", &core.ChainError{Op: "gas_price", Err: err}
	}
	gwei := decimal.NewFromBigInt(gasPrice, -9)
	metrics.SetGasPrice(gwei.InexactFloat64())
	span.SetAttributes(attribute.String("faucet.gas_price_gwei", gwei.String()))
	if gwei.LessThan(d.cfg.GasMinGwei) || gwei.GreaterThan(d.cfg.GasMaxGwei) {
		return "", fmt.Errorf("%w: %s gwei not in [%s, %s]", core.ErrGasPriceOutOfRange, gwei, d.cfg.GasMinGwei, d.cfg.GasMaxGwei)
	}

	native, err := d.chain.NativeBalance(callCtx, from)
	if err != nil {
		return "", &core.ChainError{Op: "balance", Err: err}
	}
	fee := new(big.Int).Mul(new(big.Int).SetUint64(d.cfg.GasLimit), gasPrice)
	if native.Cmp(fee) < 0 {
		return "", fmt.Errorf("%w: native balance %s below max fee %s", core.ErrInsufficientFunds, native, fee)
	}

	nonce, err := d.chain.PendingNonce(callCtx, from)
	if err != nil {
		return "", &core.ChainError{Op: "nonce", Err: err}
	}

	tx, err := d.chain.BuildTransfer(to, amount, d.cfg.ChainID, d.cfg.GasLimit, gasPrice, nonce)
	if err != nil {
		return "", &core.ChainError{Op: "build", Err: err}
	}
	signed, err := d.signer.SignTx(tx, d.cfg.ChainID)
	if err != nil {
		return "", &core.ChainError{Op: "sign", Err: err}
	}
	hash := signed.Hash()
	span.SetAttributes(attribute.String("faucet.tx_hash", hash.Hex()))

	if err := d.submit(callCtx, signed); err != nil {
		return "", &core.ChainError{Op: "submit", Err: err}
	}

	d.logger.Info().
		Str("to", to.Hex()).
		Str("tx", hash.Hex()).
		Uint64("nonce", nonce).
		Str("gas_price_gwei", gwei.String()).
		Msg("transfer submitted")

	receipt, err := d.confirm(ctx, hash)
	if err != nil {
		return hash.Hex(), &core.ChainError{Op: "wait_receipt", Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return hash.Hex(), &core.ChainError{Op: "receipt", Err: fmt.Errorf("transaction %s reverted", hash.Hex())}
	}

	return hash.Hex(), nil
}

func (d *Disburser) submit(ctx context.Context, tx *types.Transaction) error {
	ctx, span := d.tracer.Start(ctx, "disburse.submit")
	defer span.End()
	return d.chain.Submit(ctx, tx)
}

func (d *Disburser) confirm(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ConfirmTimeout)
	defer cancel()

	ctx, span := d.tracer.Start(ctx, "disburse.confirm")
	defer span.End()
	return d.chain.WaitForReceipt(ctx, hash)
}

// parseRecipient accepts 0x-prefixed, 40 hex digit, non-zero addresses
func parseRecipient(recipient string) (common.Address, error) {
	if !strings.HasPrefix(recipient, "0x") && !strings.HasPrefix(recipient, "0X") {
		return common.Address{}, fmt.Errorf("%w: %q", core.ErrInvalidAddress, recipient)
	}
	if !common.IsHexAddress(recipient) {
		return common.Address{}, fmt.Errorf("%w: %q", core.ErrInvalidAddress, recipient)
	}
	addr := common.HexToAddress(recipient)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", core.ErrInvalidAddress)
	}
	return addr, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, core.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, core.ErrGasPriceOutOfRange):
		return "gas_out_of_range"
	default:
		return "chain_error"
	}
}

var _ ports.Disburser = (*Disburser)(nil)
