package mcp

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/coedaniel/aws-propuestas-v3/internal/capability"
	"github.com/coedaniel/aws-propuestas-v3/internal/errors"
	"github.com/coedaniel/aws-propuestas-v3/internal/mcpclient"
	"github.com/coedaniel/aws-propuestas-v3/internal/reply"
)

// ToolCaller invokes a tool on an MCP service.
type ToolCaller interface {
	CallTool(ctx context.Context, svc mcpclient.Service, tool string, args map[string]any) (*mcpclient.ToolResult, error)
}

// HealthChecker probes every MCP service.
type HealthChecker interface {
	HealthAll(ctx context.Context) []mcpclient.ServiceHealth
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	classifier   *capability.Classifier
	client       ToolCaller
	health       HealthChecker
	systemPrompt string
}

// NewHandlers creates a new Handlers instance. client and health may be the
// same *mcpclient.Client.
func NewHandlers(classifier *capability.Classifier, client ToolCaller, health HealthChecker, systemPrompt string) *Handlers {
	return &Handlers{
		classifier:   classifier,
		client:       client,
		health:       health,
		systemPrompt: systemPrompt,
	}
}

// ClassifyRequest represents the arguments for classify_request.
type ClassifyRequest struct {
	Text          string `json:"text"`
	IncludePrompt bool   `json:"include_prompt,omitempty"`
}

// ClassifyResult is the output of classify_request.
type ClassifyResult struct {
	Capabilities []string           `json:"capabilities"`
	Matches      []capability.Match `json:"matches"`
	Prompt       string             `json:"prompt,omitempty"`
}

// AnalyzeRequest represents the arguments for analyze_reply.
type AnalyzeRequest struct {
	Text string `json:"text"`
}

// CallServiceToolRequest represents the arguments for call_service_tool.
type CallServiceToolRequest struct {
	Service   string         `json:"service"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CheckServicesResult is the output of check_services.
type CheckServicesResult struct {
	Services []mcpclient.ServiceHealth `json:"services"`
	Healthy  bool                      `json:"healthy"`
}

// HandleClassify handles the classify_request tool call.
func (h *Handlers) HandleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClassifyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Text) == "" {
		return errorResult(errors.NewInvalidRequest("text is required")), nil
	}

	matches := h.classifier.Classify(input.Text)
	result := ClassifyResult{
		Capabilities: capability.Names(matches),
		Matches:      matches,
	}
	if input.IncludePrompt {
		result.Prompt = capability.Augment(h.systemPrompt, matches)
	}
	return successResult(result)
}

// HandleAnalyze handles the analyze_reply tool call.
func (h *Handlers) HandleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnalyzeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Text) == "" {
		return errorResult(errors.NewInvalidRequest("text is required")), nil
	}
	return successResult(reply.Analyze(input.Text))
}

// HandleCallServiceTool handles the call_service_tool tool call.
func (h *Handlers) HandleCallServiceTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CallServiceToolRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	svc, ok := mcpclient.Lookup(input.Service)
	if !ok {
		return errorResult(errors.NewUnknownService(input.Service)), nil
	}
	if strings.TrimSpace(input.Tool) == "" {
		return errorResult(errors.NewInvalidRequest("tool is required")), nil
	}

	result, err := h.client.CallTool(ctx, svc, input.Tool, input.Arguments)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCheckServices handles the check_services tool call.
func (h *Handlers) HandleCheckServices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows := h.health.HealthAll(ctx)
	healthy := true
	for _, row := range rows {
		if !row.Healthy {
			healthy = false
		}
	}
	return successResult(CheckServicesResult{Services: rows, Healthy: healthy})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if appErr, ok := err.(*errors.AppError); ok {
		errorObj := map[string]any{
			"code":    appErr.Code,
			"message": appErr.Message,
			"status":  appErr.Status,
		}
		if appErr.Code != errors.ErrInternal && appErr.Details != nil {
			errorObj["details"] = appErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
