// Package session holds per-conversation state. A State travels with the
// request through its context; there is no process-wide session registry.
package session

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/coedaniel/aws-propuestas-v3/internal/llm"
)

// Message is one stored conversation turn.
type Message struct {
	ID           string    `json:"id"`
	Role         llm.Role  `json:"role"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	Capabilities []string  `json:"capabilities,omitempty"`
}

// State is a conversation and its history.
type State struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Model     string    `json:"model,omitempty"`
	ProjectID string    `json:"projectId,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// saved is the number of leading messages already persisted.
	saved int
}

// Append adds a turn to the in-memory history and returns it. Messages are
// never mutated after creation.
func (s *State) Append(role llm.Role, content string, capabilities []string) (Message, error) {
	id, err := NewID()
	if err != nil {
		return Message{}, err
	}
	m := Message{
		ID:           id,
		Role:         role,
		Content:      content,
		Timestamp:    time.Now().UTC(),
		Capabilities: capabilities,
	}
	s.Messages = append(s.Messages, m)
	if s.Title == "" && role == llm.RoleUser {
		s.Title = titleFrom(content)
	}
	return m, nil
}

// History returns the conversation as model messages.
func (s *State) History() []llm.Message {
	out := make([]llm.Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// Unsaved returns the messages appended since the last Save.
func (s *State) Unsaved() []Message {
	if s.saved >= len(s.Messages) {
		return nil
	}
	return s.Messages[s.saved:]
}

const maxTitleRunes = 60

func titleFrom(content string) string {
	line := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	runes := []rune(line)
	if len(runes) > maxTitleRunes {
		return strings.TrimSpace(string(runes[:maxTitleRunes])) + "..."
	}
	return line
}

// NewID generates a new ULID.
func NewID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type ctxKey struct{}

// WithState returns a copy of ctx carrying s.
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the State carried by ctx, if any.
func FromContext(ctx context.Context) (*State, bool) {
	s, ok := ctx.Value(ctxKey{}).(*State)
	return s, ok && s != nil
}
