package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	recipient = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fakeBackend struct {
	mu         sync.Mutex
	calls      []ethereum.CallMsg
	callOut    []byte
	receipts   int // NotFound answers before the receipt appears
	receipt    *types.Receipt
	receiptErr error
	sent       []*types.Transaction
}

func (b *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, msg)
	return b.callOut, nil
}

func (b *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(50_000_000_000), nil
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1516), nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.receiptErr != nil {
		return nil, b.receiptErr
	}
	if b.receipts > 0 {
		b.receipts--
		return nil, ethereum.NotFound
	}
	return b.receipt, nil
}

func newTestContext(t *testing.T, backend Backend) (*FaucetContext, *KeySigner) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewKeySignerFromKey(key)

	fc, err := New(backend, tokenAddr, signer)
	require.NoError(t, err)
	fc.PollInterval = time.Millisecond
	return fc, signer
}

func TestTokenBalance(t *testing.T) {
	backend := &fakeBackend{}
	fc, signer := newTestContext(t, backend)

	want := new(big.Int).Mul(big.NewInt(250), big.NewInt(1e18))
	out, err := fc.token.Methods["balanceOf"].Outputs.Pack(want)
	require.NoError(t, err)
	backend.callOut = out

	got, err := fc.TokenBalance(context.Background(), signer.Address())
	require.NoError(t, err)
	assert.Equal(t, 0, want.Cmp(got))

	require.Len(t, backend.calls, 1)
	assert.Equal(t, tokenAddr, *backend.calls[0].To)
	args, err := fc.token.Methods["balanceOf"].Inputs.Unpack(backend.calls[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), args[0])
}

func TestBuildAndSignTransfer(t *testing.T) {
	fc, signer := newTestContext(t, &fakeBackend{})
	chainID := big.NewInt(1516)
	amount := new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))
	gasPrice := big.NewInt(50_000_000_000)

	tx, err := fc.BuildTransfer(recipient, amount, chainID, 200000, gasPrice, 7)
	require.NoError(t, err)

	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, tokenAddr, *tx.To())
	assert.Equal(t, uint64(200000), tx.Gas())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, 0, tx.Value().Sign())

	method, err := fc.token.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "transfer", method.Name)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, recipient, args[0])
	assert.Equal(t, 0, amount.Cmp(args[1].(*big.Int)))

	signed, err := signer.SignTx(tx, chainID)
	require.NoError(t, err)
	assert.Equal(t, 0, chainID.Cmp(signed.ChainId()))

	from, err := types.Sender(types.NewEIP155Signer(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)
}

func TestBuildTransferRequiresChainID(t *testing.T) {
	fc, _ := newTestContext(t, &fakeBackend{})

	_, err := fc.BuildTransfer(recipient, big.NewInt(1), nil, 200000, big.NewInt(1), 0)
	assert.Error(t, err)
}

func TestWaitForReceiptPolls(t *testing.T) {
	backend := &fakeBackend{receipts: 3, receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	fc, _ := newTestContext(t, backend)

	receipt, err := fc.WaitForReceipt(context.Background(), common.Hash{1})
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
}

func TestWaitForReceiptTimeout(t *testing.T) {
	backend := &fakeBackend{receipts: 1 << 30}
	fc, _ := newTestContext(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := fc.WaitForReceipt(ctx, common.Hash{1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForReceiptRPCError(t *testing.T) {
	boom := errors.New("rpc down")
	fc, _ := newTestContext(t, &fakeBackend{receiptErr: boom})

	_, err := fc.WaitForReceipt(context.Background(), common.Hash{1})
	assert.ErrorIs(t, err, boom)
}

func TestNewKeySigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := common.Bytes2Hex(crypto.FromECDSA(key))

	s, err := NewKeySigner("0x" + hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())

	_, err = NewKeySigner("not-a-key")
	assert.Error(t, err)
}
