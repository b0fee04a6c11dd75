// Package stream serves the command surface over a message broker: chat
// messages arrive on one topic, workflow replies leave on another.
package stream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"

	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/transport/command"
)

const (
	MessagesTopic = "faucet.messages"
	RepliesTopic  = "faucet.replies"
)

// InboundMessage is a chat message relayed by a trusted gateway
type InboundMessage struct {
	Identity string `json:"identity"`
	Text     string `json:"text"`
}

// OutboundReply is published once per handled message that produced replies
type OutboundReply struct {
	Identity  string          `json:"identity"`
	InReplyTo string          `json:"in_reply_to"`
	State     core.ClaimState `json:"state"`
	Replies   []Reply         `json:"replies"`
	TxHash    string          `json:"tx_hash,omitempty"`
}

// Reply mirrors core.Reply; Image is base64 encoded by encoding/json.
type Reply struct {
	Text        string `json:"text,omitempty"`
	Image       []byte `json:"image,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// DefaultMaxInFlight bounds how many identities are served at once.
const DefaultMaxInFlight = 64

type job struct {
	ctx   context.Context
	msgID string
	in    InboundMessage
}

// Handler feeds broker messages through the command router. Messages are
// acked on receipt; each identity gets its own ordered queue so a slow
// disbursement only delays that identity.
type Handler struct {
	router *command.Router
	pub    message.Publisher
	logger zerolog.Logger

	mu     sync.Mutex
	queues map[string][]job
	slots  chan struct{}
	wg     sync.WaitGroup
}

// NewHandler creates a new stream handler publishing replies to pub
func NewHandler(router *command.Router, pub message.Publisher, maxInFlight int, logger zerolog.Logger) *Handler {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Handler{
		router: router,
		pub:    pub,
		logger: logger.With().Str("component", "stream").Logger(),
		queues: make(map[string][]job),
		slots:  make(chan struct{}, maxInFlight),
	}
}

// NewRouter wires the handler to sub
func NewRouter(h *Handler, sub message.Subscriber, logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}
	router.AddMiddleware(middleware.Recoverer)
	router.AddNoPublisherHandler("faucet_messages", MessagesTopic, sub, h.Consume)
	return router, nil
}

// Consume decodes msg and queues it behind earlier messages of the same
// identity. It never fails: a redelivered CAPTCHA answer must never start a
// second disbursement.
func (h *Handler) Consume(msg *message.Message) error {
	var in InboundMessage
	if err := json.Unmarshal(msg.Payload, &in); err != nil || in.Identity == "" {
		h.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed message")
		return nil
	}

	h.enqueue(job{
		ctx:   context.WithoutCancel(msg.Context()),
		msgID: msg.UUID,
		in:    in,
	})
	return nil
}

func (h *Handler) enqueue(j job) {
	identity := j.in.Identity

	h.mu.Lock()
	if q, busy := h.queues[identity]; busy {
		h.queues[identity] = append(q, j)
		h.mu.Unlock()
		return
	}
	h.queues[identity] = nil
	h.mu.Unlock()

	// Blocks the subscriber when every slot is taken.
	h.slots <- struct{}{}
	h.wg.Add(1)
	go h.drain(j)
}

func (h *Handler) drain(j job) {
	defer h.wg.Done()
	defer func() { <-h.slots }()

	identity := j.in.Identity
	for {
		h.process(j)

		h.mu.Lock()
		q := h.queues[identity]
		if len(q) == 0 {
			delete(h.queues, identity)
			h.mu.Unlock()
			return
		}
		j = q[0]
		h.queues[identity] = q[1:]
		h.mu.Unlock()
	}
}

func (h *Handler) process(j job) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Str("identity", j.in.Identity).Str("message_id", j.msgID).Msg("message handler panicked")
		}
	}()

	reply := h.Handle(j.ctx, j.msgID, j.in)
	if reply == nil {
		return
	}
	if err := h.pub.Publish(RepliesTopic, reply); err != nil {
		h.logger.Error().Err(err).Str("identity", j.in.Identity).Str("message_id", j.msgID).Msg("failed to publish reply")
	}
}

// Wait blocks until queued messages are handled or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle runs one inbound message through the command router and returns
// the reply message, or nil when nothing is to be sent.
func (h *Handler) Handle(ctx context.Context, msgID string, in InboundMessage) *message.Message {
	out, err := h.router.Handle(ctx, in.Identity, in.Text)
	if err != nil {
		h.logger.Error().Err(err).Str("identity", in.Identity).Str("message_id", msgID).Msg("message handling failed")
	}
	if len(out.Replies) == 0 {
		return nil
	}

	reply := OutboundReply{
		Identity:  in.Identity,
		InReplyTo: msgID,
		State:     out.State,
		Replies:   make([]Reply, 0, len(out.Replies)),
		TxHash:    out.TxHash,
	}
	for _, r := range out.Replies {
		rr := Reply{Text: r.Text}
		if r.Image != nil {
			rr.Image = r.Image.Data
			rr.ContentType = r.Image.ContentType
		}
		reply.Replies = append(reply.Replies, rr)
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error().Err(err).Str("identity", in.Identity).Msg("failed to encode reply")
		return nil
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return msg
}
