// Package llm wraps the Bedrock model runtime behind a single Chat call.
package llm

import (
	"strings"

	apperrors "github.com/coedaniel/aws-propuestas-v3/internal/errors"
)

// Role tags a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat completion request.
type Request struct {
	ModelID     string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Usage carries token counters. Estimated is set when the runtime reported
// no usage and the counters were computed locally.
type Usage struct {
	InputTokens  int  `json:"inputTokens"`
	OutputTokens int  `json:"outputTokens"`
	TotalTokens  int  `json:"totalTokens"`
	Estimated    bool `json:"-"`
}

// Response is the model's reply.
type Response struct {
	Text    string
	ModelID string
	Usage   Usage
}

// Normalize prepares history for the runtime: system messages are folded into
// the system prompt, leading assistant turns are dropped, blank turns are
// skipped, and consecutive turns of the same role are merged.
func Normalize(system string, msgs []Message) (string, []Message, error) {
	var sys []string
	if s := strings.TrimSpace(system); s != "" {
		sys = append(sys, s)
	}

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case RoleSystem:
			sys = append(sys, content)
			continue
		case RoleUser, RoleAssistant:
		default:
			return "", nil, apperrors.NewInvalidRequest("invalid message role: " + string(m.Role))
		}

		if len(out) == 0 && m.Role == RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + content
			continue
		}
		out = append(out, Message{Role: m.Role, Content: content})
	}

	if len(out) == 0 {
		return "", nil, apperrors.NewInvalidRequest("conversation has no user message")
	}
	return strings.Join(sys, "\n\n"), out, nil
}
