// Package command turns inbound chat text into claim workflow calls.
package command

import (
	"context"
	"strings"

	"github.com/layer-3/faucet/core"
)

// MsgHelp lists the supported commands
const MsgHelp = "Unknown command. Available commands: /start, /claim <wallet>"

// Workflow is the part of the claim workflow the router drives
type Workflow interface {
	Start(ctx context.Context, identity string) core.Outcome
	Claim(ctx context.Context, identity, wallet string) (core.Outcome, error)
	Answer(ctx context.Context, identity, input string) (core.Outcome, error)
}

// Router dispatches one message from one identity
type Router struct {
	workflow Workflow
}

// NewRouter creates a new command router
func NewRouter(workflow Workflow) *Router {
	return &Router{workflow: workflow}
}

// Handle routes /start, /claim and unknown commands. Any other text is a
// CAPTCHA answer.
func (r *Router) Handle(ctx context.Context, identity, text string) (core.Outcome, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return r.workflow.Answer(ctx, identity, text)
	}

	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	// Group chats address commands as /claim@BotName
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}

	switch cmd {
	case "/start":
		return r.workflow.Start(ctx, identity), nil
	case "/claim":
		wallet := ""
		if len(fields) > 1 {
			wallet = fields[1]
		}
		return r.workflow.Claim(ctx, identity, wallet)
	default:
		return core.Outcome{
			State:   core.StateIdle,
			Replies: []core.Reply{{Text: MsgHelp}},
		}, nil
	}
}
