package ports

import (
	"context"
	"math/big"
)

// Disburser sends the claim amount to a recipient and waits for confirmation.
type Disburser interface {
	Disburse(ctx context.Context, recipient string, amount *big.Int) (txHash string, err error)
}
