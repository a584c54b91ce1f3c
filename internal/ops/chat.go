package ops

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/coedaniel/aws-propuestas-v3/internal/capability"
	"github.com/coedaniel/aws-propuestas-v3/internal/errors"
	"github.com/coedaniel/aws-propuestas-v3/internal/llm"
	"github.com/coedaniel/aws-propuestas-v3/internal/mcpclient"
	"github.com/coedaniel/aws-propuestas-v3/internal/reply"
	"github.com/coedaniel/aws-propuestas-v3/internal/session"
	"github.com/coedaniel/aws-propuestas-v3/internal/telemetry"
)

// Tools invoked by the post-processing step.
const (
	toolGenerateDiagram  = "generate_diagram"
	toolGenerateTemplate = "generate_template"
	toolSearchDocs       = "search_documentation"
	docsSearchLimit      = 5
)

// ChatInput contains parameters for the Chat operation.
// Either Message or Messages must carry the user's turn; when only Messages is
// given, its last user entry is the turn and the rest is history.
type ChatInput struct {
	Message     string         `json:"message"`
	Messages    []llm.Message  `json:"messages,omitempty"`
	History     []llm.Message  `json:"conversationHistory,omitempty"`
	Model       string         `json:"selectedModel,omitempty"`
	Project     map[string]any `json:"projectData,omitempty"`
	PostProcess bool           `json:"-"`
}

// Validate normalizes the input and checks limits. maxHistory <= 0 disables
// the history bound.
func (in *ChatInput) Validate(maxHistory int) error {
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" && len(in.Messages) > 0 {
		last := len(in.Messages) - 1
		if in.Messages[last].Role == llm.RoleUser {
			in.Message = strings.TrimSpace(in.Messages[last].Content)
			if len(in.History) == 0 {
				in.History = in.Messages[:last]
			}
		}
	}
	in.Messages = nil

	if in.Message == "" {
		return errors.NewInvalidRequest("message is required")
	}
	if utf8.RuneCountInString(in.Message) > MaxMessageChars {
		return errors.NewInvalidRequest(fmt.Sprintf("message exceeds %d characters", MaxMessageChars))
	}
	if maxHistory > 0 && len(in.History) > maxHistory {
		return errors.NewInvalidRequest(fmt.Sprintf("conversationHistory exceeds %d messages", maxHistory))
	}
	for i, m := range in.History {
		if !m.Role.Valid() {
			return errors.NewInvalidRequest(fmt.Sprintf("conversationHistory[%d]: invalid role %q", i, m.Role))
		}
	}
	if len(in.Project) > MaxProjectKeys {
		return errors.NewInvalidRequest(fmt.Sprintf("projectData exceeds %d fields", MaxProjectKeys))
	}
	in.Model = strings.TrimSpace(in.Model)
	return nil
}

// GeneratedFiles holds the outputs of post-processing tool calls.
type GeneratedFiles struct {
	Diagram        json.RawMessage `json:"diagram,omitempty"`
	CloudFormation json.RawMessage `json:"cloudformation,omitempty"`
}

func (g *GeneratedFiles) empty() bool {
	return len(g.Diagram) == 0 && len(g.CloudFormation) == 0
}

// ChatOutput is the API response of a chat pass.
type ChatOutput struct {
	Response            string          `json:"response"`
	SelectedModel       string          `json:"selectedModel"`
	MCPServicesDetected []string        `json:"mcpServicesDetected"`
	Usage               llm.Usage       `json:"usage"`
	GeneratedFiles      *GeneratedFiles `json:"generatedFiles,omitempty"`
	AWSDocumentation    json.RawMessage `json:"awsDocumentation,omitempty"`
	SessionID           string          `json:"sessionId,omitempty"`
}

// Chat runs one classify, augment, model and post-process pass. Only the
// model call can fail the request; MCP follow-up calls are logged and dropped.
// When ctx carries a session, its history replaces the submitted history and
// both turns are appended to it (the caller saves).
func Chat(ctx context.Context, deps Deps, input ChatInput) (*ChatOutput, error) {
	maxHistory := 0
	if deps.Config != nil {
		maxHistory = deps.Config.MaxHistoryMessages
	}
	if err := input.Validate(maxHistory); err != nil {
		return nil, err
	}

	state, hasSession := session.FromContext(ctx)
	history := input.History
	if hasSession && len(state.Messages) > 0 {
		history = state.History()
		if maxHistory > 0 && len(history) > maxHistory {
			history = history[len(history)-maxHistory:]
		}
	}

	matches := deps.Classifier.Classify(input.Message)
	detected := capability.Names(matches)
	for _, name := range detected {
		telemetry.CapabilityDetected(ctx, name)
	}

	system := capability.Augment(deps.systemPrompt()+projectContext(input.Project), matches)

	model := input.Model
	if model == "" && hasSession {
		model = state.Model
	}
	if model == "" && deps.Config != nil {
		model = deps.Config.DefaultModel
	}

	req := llm.Request{
		ModelID:  model,
		System:   system,
		Messages: append(append([]llm.Message{}, history...), llm.Message{Role: llm.RoleUser, Content: input.Message}),
	}
	if deps.Config != nil {
		req.MaxTokens = deps.Config.MaxTokens
		req.Temperature = deps.Config.Temperature
		req.TopP = deps.Config.TopP
	}

	resp, err := deps.Model.Chat(ctx, req)
	if err != nil {
		if _, ok := err.(*errors.AppError); ok {
			return nil, err
		}
		return nil, errors.NewUpstreamUnavailable("bedrock", err)
	}

	out := &ChatOutput{
		Response:            resp.Text,
		SelectedModel:       model,
		MCPServicesDetected: detected,
		Usage:               resp.Usage,
	}

	log.Info().
		Str("model", model).
		Strs("capabilities", detected).
		Int("total_tokens", resp.Usage.TotalTokens).
		Bool("post_process", input.PostProcess).
		Msg("Chat completed")

	if input.PostProcess && deps.Tools != nil {
		postProcess(ctx, deps.Tools, input, matches, resp.Text, out)
	}

	if hasSession {
		if err := recordTurn(state, input.Message, resp.Text, detected, model); err != nil {
			return nil, err
		}
		out.SessionID = state.ID
	}
	return out, nil
}

// postProcess runs the follow-up MCP calls in sequence. Failures never reach
// the caller.
func postProcess(ctx context.Context, tools ToolCaller, input ChatInput, matches []capability.Match, text string, out *ChatOutput) {
	decision := reply.Analyze(text)
	files := &GeneratedFiles{}

	if decision.ShouldGenerateDiagram {
		args := map[string]any{
			"description": decision.Description,
			"services":    decision.Services,
		}
		if name, ok := input.Project["name"].(string); ok && name != "" {
			args["project_name"] = name
		}
		files.Diagram = callOptional(ctx, tools, mcpclient.ServiceDiagram, toolGenerateDiagram, args)
	}

	if decision.ShouldGenerateCloudFormation {
		args := map[string]any{
			"description": decision.Description,
			"services":    decision.Services,
		}
		files.CloudFormation = callOptional(ctx, tools, mcpclient.ServiceCFN, toolGenerateTemplate, args)
	}

	if !files.empty() {
		out.GeneratedFiles = files
	}

	if capability.Has(matches, "aws-documentation") {
		out.AWSDocumentation = callOptional(ctx, tools, mcpclient.ServiceDocs, toolSearchDocs, map[string]any{
			"search_phrase": input.Message,
			"limit":         docsSearchLimit,
		})
	}
}

// callOptional returns the tool's result, or nil when the call failed or
// produced nothing.
func callOptional(ctx context.Context, tools ToolCaller, svc mcpclient.Service, tool string, args map[string]any) json.RawMessage {
	res, err := tools.CallTool(ctx, svc, tool, args)
	if err != nil {
		log.Warn().Err(err).Str("service", string(svc)).Str("tool", tool).Msg("Follow-up MCP call failed")
		return nil
	}
	if res == nil || !res.Success || len(res.Result) == 0 || string(res.Result) == "null" {
		return nil
	}
	return res.Result
}

func recordTurn(state *session.State, userText, replyText string, capabilities []string, model string) error {
	if _, err := state.Append(llm.RoleUser, userText, nil); err != nil {
		return errors.NewInternal(err)
	}
	if _, err := state.Append(llm.RoleAssistant, replyText, capabilities); err != nil {
		return errors.NewInternal(err)
	}
	if state.Model == "" {
		state.Model = model
	}
	return nil
}
