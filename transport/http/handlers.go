package http

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/transport/command"
)

// MessageHandlers contains HTTP handlers for the webhook endpoints
type MessageHandlers struct {
	router *command.Router
}

// NewMessageHandlers creates new message handlers
func NewMessageHandlers(router *command.Router) *MessageHandlers {
	return &MessageHandlers{router: router}
}

type messageRequest struct {
	Identity string `json:"identity"`
	Text     string `json:"text" binding:"required"`
}

type replyResponse struct {
	Text        string `json:"text,omitempty"`
	Image       string `json:"image,omitempty"` // base64
	ContentType string `json:"content_type,omitempty"`
}

type messageResponse struct {
	State   core.ClaimState `json:"state"`
	Replies []replyResponse `json:"replies"`
	TxHash  string          `json:"tx_hash,omitempty"`
}

// Message handles one inbound chat message for the authenticated identity
func (h *MessageHandlers) Message(c *gin.Context) {
	identity := c.GetString(identityKey)

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Identity != "" && req.Identity != identity {
		c.JSON(http.StatusForbidden, gin.H{"error": "Identity does not match token"})
		return
	}

	out, err := h.router.Handle(c.Request.Context(), identity, req.Text)
	status := http.StatusOK
	if err != nil {
		_ = c.Error(err)
		status = http.StatusInternalServerError
		if errors.Is(err, core.ErrPersistence) {
			// Tokens may have left the faucet, the caller must not retry blindly
			c.Header("X-Faucet-Reconcile", "true")
		}
	}

	c.JSON(status, toResponse(out))
}

// Health reports liveness
func (h *MessageHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func toResponse(out core.Outcome) messageResponse {
	resp := messageResponse{
		State:   out.State,
		Replies: make([]replyResponse, 0, len(out.Replies)),
		TxHash:  out.TxHash,
	}
	for _, r := range out.Replies {
		rr := replyResponse{Text: r.Text}
		if r.Image != nil {
			rr.Image = base64.StdEncoding.EncodeToString(r.Image.Data)
			rr.ContentType = r.Image.ContentType
		}
		resp.Replies = append(resp.Replies, rr)
	}
	return resp
}
