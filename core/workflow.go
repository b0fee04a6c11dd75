package core

// ClaimState is a step of the claim state machine. AwaitingWalletArg and
// Disbursing are transient and never reported in an Outcome.
type ClaimState string

const (
	StateIdle                    ClaimState = "idle"
	StateAwaitingWalletArg       ClaimState = "awaiting_wallet_arg"
	StateAwaitingCaptchaResponse ClaimState = "awaiting_captcha_response"
	StateDisbursing              ClaimState = "disbursing"
	StateDone                    ClaimState = "done"
	StateRejected                ClaimState = "rejected"
)

// Reply is one outbound message for the requester.
type Reply struct {
	Text  string
	Image *Image
}

// Outcome is what a workflow step produced for the transport to deliver.
type Outcome struct {
	State   ClaimState
	Replies []Reply
	TxHash  string
	// Reason is set on rejection; it is for logs and events, never for users.
	Reason error
}

// ClaimEvent is published when a claim reaches a terminal state.
type ClaimEvent struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Identity string     `json:"identity"`
	Wallet   string     `json:"wallet"`
	TxHash   string     `json:"tx_hash,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	State    ClaimState `json:"state"`
	At       int64      `json:"at"`
}

const (
	EventClaimDisbursed  = "claim.disbursed"
	EventClaimRejected   = "claim.rejected"
	EventClaimUnrecorded = "claim.unrecorded"
)
