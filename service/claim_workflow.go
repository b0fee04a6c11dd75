package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/internal/metrics"
	"github.com/layer-3/faucet/ports"
)

// User facing replies
const (
	MsgGreeting         = "Hi! I am a token faucet. Send /claim <wallet> to get started."
	MsgWalletPrompt     = "Please provide your wallet address. Example: /claim 0x123abc456def"
	MsgInvalidWallet    = "That is not a valid wallet address. Send /claim 0x followed by 40 hex characters."
	MsgCaptchaPrompt    = "Please enter the CAPTCHA code shown in the image:"
	MsgCaptchaCorrect   = "CAPTCHA answered correctly, your tokens are on the way!"
	MsgCaptchaIncorrect = "The CAPTCHA code is incorrect. Send /claim to try again."
	MsgAlreadyClaimed   = "You have already claimed tokens for this wallet in the last %s."
	MsgNextClaim        = "You have already claimed tokens for this wallet. Next claim opens at %s."
	MsgInProgress       = "A claim for this wallet is already being processed."
	MsgSendFailed       = "The tokens could not be sent right now. Please try again later."
	MsgSent             = "Tokens sent to %s! Come back in %s. Transaction: %s"
	MsgUnavailable      = "The faucet is unavailable right now. Please try again later."
)

// WorkflowConfig holds the per-claim parameters
type WorkflowConfig struct {
	Amount      *big.Int
	ClaimWindow time.Duration
	LockTimeout time.Duration
}

// ClaimWorkflow drives a claim from the /claim command to a confirmed,
// recorded transfer. It is safe for concurrent use.
type ClaimWorkflow struct {
	ledger     ports.Ledger
	challenges ports.ChallengeStore
	captcha    ports.Captcha
	disburser  ports.Disburser
	locker     ports.Locker
	events     ports.EventPublisher
	cfg        WorkflowConfig
	logger     zerolog.Logger

	// Now is the clock used for eligibility and records.
	Now func() time.Time
}

// NewClaimWorkflow creates a new claim workflow. events may be nil.
func NewClaimWorkflow(
	ledger ports.Ledger,
	challenges ports.ChallengeStore,
	captcha ports.Captcha,
	disburser ports.Disburser,
	locker ports.Locker,
	events ports.EventPublisher,
	cfg WorkflowConfig,
	logger zerolog.Logger,
) *ClaimWorkflow {
	if cfg.ClaimWindow <= 0 {
		cfg.ClaimWindow = core.DefaultClaimWindow
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Minute
	}
	return &ClaimWorkflow{
		ledger:     ledger,
		challenges: challenges,
		captcha:    captcha,
		disburser:  disburser,
		locker:     locker,
		events:     events,
		cfg:        cfg,
		logger:     logger.With().Str("component", "workflow").Logger(),
		Now:        time.Now,
	}
}

// Start greets the requester
func (w *ClaimWorkflow) Start(ctx context.Context, identity string) core.Outcome {
	return reply(core.StateIdle, MsgGreeting)
}

// Claim handles /claim <wallet>. An empty wallet only prompts for one. The
// wallet is keyed in its checksummed form, so case variants of one address
// share a claim window.
func (w *ClaimWorkflow) Claim(ctx context.Context, identity, wallet string) (core.Outcome, error) {
	if wallet == "" {
		return reply(core.StateIdle, MsgWalletPrompt), nil
	}
	addr, err := parseRecipient(wallet)
	if err != nil {
		metrics.IncClaim("invalid_address")
		out := reply(core.StateRejected, MsgInvalidWallet)
		out.Reason = err
		return out, nil
	}
	wallet = addr.Hex()

	record, found, err := w.ledger.Lookup(ctx, identity, wallet)
	if err != nil {
		w.logger.Error().Err(err).Str("identity", identity).Str("wallet", wallet).Msg("ledger lookup failed")
		return reply(core.StateRejected, MsgUnavailable), err
	}
	if found && !record.EligibleAt(w.Now(), w.cfg.ClaimWindow) {
		metrics.IncClaim("already_claimed")
		next := record.NextClaimAt(w.cfg.ClaimWindow).UTC().Format(time.RFC1123)
		out := reply(core.StateRejected, fmt.Sprintf(MsgNextClaim, next))
		out.Reason = core.ErrAlreadyClaimed
		// a rejected /claim still supersedes the previous challenge
		if err := w.challenges.Delete(ctx, identity); err != nil {
			w.logger.Warn().Err(err).Str("identity", identity).Msg("failed to clear stale challenge")
		}
		return out, nil
	}

	code, image, err := w.captcha.Issue()
	if err != nil {
		w.logger.Error().Err(err).Str("identity", identity).Msg("captcha issue failed")
		return reply(core.StateIdle, MsgUnavailable), err
	}

	challenge := core.PendingChallenge{
		ID:           uuid.NewString(),
		Identity:     identity,
		ExpectedCode: code,
		Wallet:       wallet,
		IssuedAt:     w.Now(),
	}
	if err := w.challenges.Put(ctx, challenge); err != nil {
		w.logger.Error().Err(err).Str("identity", identity).Msg("failed to store challenge")
		return reply(core.StateIdle, MsgUnavailable), err
	}
	metrics.IncClaim("captcha_issued")

	return core.Outcome{
		State: core.StateAwaitingCaptchaResponse,
		Replies: []core.Reply{
			{Text: MsgCaptchaPrompt},
			{Image: &image},
		},
	}, nil
}

// Answer treats text as the response to the identity's pending CAPTCHA.
// Without a pending challenge the text is ignored and no reply is produced.
func (w *ClaimWorkflow) Answer(ctx context.Context, identity, input string) (core.Outcome, error) {
	challenge, err := w.challenges.Take(ctx, identity)
	if errors.Is(err, core.ErrNoPendingChallenge) {
		return core.Outcome{State: core.StateIdle}, nil
	}
	if err != nil {
		w.logger.Error().Err(err).Str("identity", identity).Msg("failed to load challenge")
		return reply(core.StateIdle, MsgUnavailable), err
	}

	if !w.captcha.Verify(challenge.ExpectedCode, input) {
		metrics.IncClaim("captcha_mismatch")
		out := reply(core.StateRejected, MsgCaptchaIncorrect)
		out.Reason = core.ErrCaptchaMismatch
		return out, nil
	}

	out, err := w.disburse(ctx, challenge)
	out.Replies = append([]core.Reply{{Text: MsgCaptchaCorrect}}, out.Replies...)
	return out, err
}

// disburse runs eligibility, transfer and record under the pair lock
func (w *ClaimWorkflow) disburse(ctx context.Context, challenge core.PendingChallenge) (core.Outcome, error) {
	identity, wallet := challenge.Identity, challenge.Wallet
	logger := w.logger.With().Str("identity", identity).Str("wallet", wallet).Logger()

	lockCtx, cancel := context.WithTimeout(ctx, w.cfg.LockTimeout)
	unlock, err := w.locker.Lock(lockCtx, identity+"|"+wallet)
	cancel()
	if errors.Is(err, core.ErrClaimInProgress) {
		metrics.IncClaim("in_progress")
		logger.Warn().Err(err).Msg("claim lock not acquired")
		out := reply(core.StateRejected, MsgInProgress)
		out.Reason = err
		return out, nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("claim lock failed")
		return reply(core.StateRejected, MsgUnavailable), err
	}
	defer unlock()

	eligible, err := w.ledger.IsEligible(ctx, identity, wallet, w.Now())
	if err != nil {
		logger.Error().Err(err).Msg("eligibility check failed")
		return reply(core.StateRejected, MsgUnavailable), err
	}
	if !eligible {
		metrics.IncClaim("already_claimed")
		out := reply(core.StateRejected, fmt.Sprintf(MsgAlreadyClaimed, humanWindow(w.cfg.ClaimWindow)))
		out.Reason = core.ErrAlreadyClaimed
		w.publish(ctx, core.EventClaimRejected, challenge, out)
		return out, nil
	}

	req := core.TransferRequest{Recipient: wallet, Amount: w.cfg.Amount}
	logger.Info().Str("state", string(core.StateDisbursing)).Str("amount", req.Amount.String()).Msg("disbursing claim")

	txHash, err := w.disburser.Disburse(ctx, req.Recipient, req.Amount)
	if err != nil {
		metrics.IncClaim("disburse_failed")
		logger.Error().Err(err).Str("tx", txHash).Msg("disbursement failed")
		out := reply(core.StateRejected, MsgSendFailed)
		out.TxHash = txHash
		out.Reason = err
		w.publish(ctx, core.EventClaimRejected, challenge, out)
		return out, nil
	}

	if err := w.ledger.RecordClaim(ctx, identity, wallet, w.Now()); err != nil {
		metrics.IncClaim("unrecorded")
		logger.Error().Err(err).Str("tx", txHash).Msg("tokens sent but claim NOT recorded, ledger needs reconciliation")
		out := core.Outcome{State: core.StateDone, TxHash: txHash, Reason: err}
		w.publish(ctx, core.EventClaimUnrecorded, challenge, out)
		return out, err
	}

	metrics.IncClaim("disbursed")
	logger.Info().Str("tx", txHash).Msg("claim disbursed")
	out := reply(core.StateDone, fmt.Sprintf(MsgSent, wallet, humanWindow(w.cfg.ClaimWindow), txHash))
	out.TxHash = txHash
	w.publish(ctx, core.EventClaimDisbursed, challenge, out)
	return out, nil
}

func (w *ClaimWorkflow) publish(ctx context.Context, eventType string, challenge core.PendingChallenge, out core.Outcome) {
	if w.events == nil {
		return
	}

	event := core.ClaimEvent{
		ID:       uuid.NewString(),
		Type:     eventType,
		Identity: challenge.Identity,
		Wallet:   challenge.Wallet,
		TxHash:   out.TxHash,
		State:    out.State,
		At:       w.Now().Unix(),
	}
	if out.Reason != nil {
		event.Reason = out.Reason.Error()
	}

	// The claim outcome stands even if the event is lost
	if err := w.events.PublishClaim(ctx, event); err != nil {
		w.logger.Warn().Err(err).Str("event", eventType).Str("identity", challenge.Identity).Msg("failed to publish claim event")
	}
}

func reply(state core.ClaimState, text string) core.Outcome {
	return core.Outcome{State: state, Replies: []core.Reply{{Text: text}}}
}

func humanWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return d.String()
}
