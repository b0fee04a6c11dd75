package ports

import (
	"context"

	"github.com/layer-3/faucet/core"
)

// EventPublisher publishes claim outcomes for other services to reconcile against.
type EventPublisher interface {
	PublishClaim(ctx context.Context, event core.ClaimEvent) error
}
