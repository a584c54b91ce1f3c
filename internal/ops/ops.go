// Package ops implements the operations behind the HTTP API, the MCP tools
// and the CLI: the chat pass and transcript export.
package ops

import (
	"context"

	"github.com/coedaniel/aws-propuestas-v3/internal/capability"
	"github.com/coedaniel/aws-propuestas-v3/internal/config"
	"github.com/coedaniel/aws-propuestas-v3/internal/llm"
	"github.com/coedaniel/aws-propuestas-v3/internal/mcpclient"
)

// Input limits
const (
	MaxMessageChars = 20000
	MaxProjectKeys  = 50
)

// Model sends a completion request to the model runtime.
type Model interface {
	Chat(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// ToolCaller invokes a tool on an MCP service.
type ToolCaller interface {
	CallTool(ctx context.Context, svc mcpclient.Service, tool string, args map[string]any) (*mcpclient.ToolResult, error)
}

// Deps are the collaborators of a chat pass.
type Deps struct {
	Config     *config.Config
	Classifier *capability.Classifier
	Model      Model
	Tools      ToolCaller

	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string
}

func (d Deps) systemPrompt() string {
	if d.SystemPrompt != "" {
		return d.SystemPrompt
	}
	return DefaultSystemPrompt
}
