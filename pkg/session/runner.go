package session

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/quarrylabs/quarry/pkg/models"
	"github.com/quarrylabs/quarry/pkg/provider"
)

// TurnRunner produces the model side of one conversation turn. The returned
// handle replaces the session's provider handle when non-empty.
type TurnRunner interface {
	RunTurn(ctx context.Context, sess *models.Session, message string) (reply, handle string, err error)
}

// conversationEnder is implemented by runners that hold provider-side
// conversation state worth releasing once a session reaches a terminal
// state.
type conversationEnder interface {
	EndConversation(handle string)
}

const conversationSystemPrompt = `You are a senior engineer working through a code reasoning session turn by turn.
Build on the conversation so far. When your confidence in the conclusion
changes, state it on its own line as "Confidence: NN%".`

// gatewayRunner routes turns through the provider gateway using each
// provider's conversation handle.
type gatewayRunner struct {
	gateway *provider.Gateway
}

// NewGatewayRunner creates the production turn runner.
func NewGatewayRunner(gateway *provider.Gateway) TurnRunner {
	return &gatewayRunner{gateway: gateway}
}

func (r *gatewayRunner) RunTurn(ctx context.Context, sess *models.Session, message string) (string, string, error) {
	p, err := r.gateway.Select()
	if err != nil {
		return "", "", err
	}
	res, err := p.Converse(ctx, sess.ProviderHandle, message, provider.CompleteOptions{
		SystemPrompt: conversationSystemPrompt,
	})
	if err != nil {
		return "", "", fmt.Errorf("model turn failed: %w", err)
	}
	return res.Reply, res.Handle, nil
}

// EndConversation releases provider-side history for handle.
func (r *gatewayRunner) EndConversation(handle string) {
	r.gateway.CloseConversation(handle)
}

var confidencePattern = regexp.MustCompile(`(?i)confidence:\s*([0-9]{1,3})\s*%`)

// extractConfidence pulls a self-reported "Confidence: NN%" line out of a
// model reply, returning a value in [0,1]. ok is false when the reply
// carries no such line.
func extractConfidence(reply string) (float64, bool) {
	m := confidencePattern.FindStringSubmatch(reply)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return float64(pct) / 100, true
}
