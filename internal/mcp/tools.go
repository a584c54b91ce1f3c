package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/coedaniel/aws-propuestas-v3/internal/mcpclient"
)

func serviceNames() []string {
	svcs := mcpclient.Services()
	names := make([]string, len(svcs))
	for i, s := range svcs {
		names[i] = string(s)
	}
	return names
}

var classifyToolDef = mcp.NewTool("classify_request",
	mcp.WithDescription("Detect which AWS capabilities a user message needs, ranked by keyword score. Optionally returns the system prompt augmented with the detected capabilities."),
	mcp.WithString("text", mcp.Required(), mcp.Description("The user message to classify")),
	mcp.WithBoolean("include_prompt", mcp.Description("Also return the augmented system prompt")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var analyzeToolDef = mcp.NewTool("analyze_reply",
	mcp.WithDescription("Decide whether an assistant reply calls for a diagram or a CloudFormation template, and extract the AWS services it mentions."),
	mcp.WithString("text", mcp.Required(), mcp.Description("The assistant reply to analyze")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var callServiceToolDef = mcp.NewTool("call_service_tool",
	mcp.WithDescription("Invoke a tool on one of the backing MCP services."),
	mcp.WithString("service", mcp.Required(), mcp.Enum(serviceNames()...), mcp.Description("Service name")),
	mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name on the service")),
	mcp.WithObject("arguments", mcp.Description("Tool arguments")),
)

var checkServicesToolDef = mcp.NewTool("check_services",
	mcp.WithDescription("Probe the health endpoint of every backing MCP service."),
	mcp.WithReadOnlyHintAnnotation(true),
)
