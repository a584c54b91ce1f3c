// Package mcpclient calls the fixed set of MCP microservices over HTTP.
package mcpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/coedaniel/aws-propuestas-v3/internal/errors"
	"github.com/coedaniel/aws-propuestas-v3/internal/telemetry"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// Doer is the subset of *http.Client used here.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the MCP services under a shared base URL.
type Client struct {
	baseURL string
	http    Doer
}

// ToolResult is the decoded reply of a call-tool request.
type ToolResult struct {
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMs int64           `json:"latencyMs"`
}

// ServiceHealth is one row of HealthAll.
type ServiceHealth struct {
	Service   Service `json:"service"`
	Healthy   bool    `json:"healthy"`
	LatencyMs int64   `json:"latencyMs"`
	Error     string  `json:"error,omitempty"`
}

type callToolRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// New returns a client with its own *http.Client bounded by timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return NewWithDoer(baseURL, &http.Client{Timeout: timeout})
}

// NewWithDoer returns a client that sends requests through d.
func NewWithDoer(baseURL string, d Doer) *Client {
	return &Client{baseURL: baseURL, http: d}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Doer returns the transport used for outbound requests.
func (c *Client) Doer() Doer {
	return c.http
}

// CallTool invokes tool on service. Network errors, non-2xx statuses and
// replies with success=false are all returned as upstream errors.
func (c *Client) CallTool(ctx context.Context, svc Service, tool string, args map[string]any) (*ToolResult, error) {
	if svc.Path() == "" {
		return nil, apperrors.NewUnknownService(string(svc))
	}
	if args == nil {
		args = map[string]any{}
	}
	upstream := "mcp:" + string(svc)

	body, err := json.Marshal(callToolRequest{Tool: tool, Arguments: args})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, URL(c.baseURL, svc, "call-tool"), bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.UpstreamFailure(ctx, upstream, "call-tool")
		return nil, apperrors.NewUpstreamUnavailable(upstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		telemetry.UpstreamFailure(ctx, upstream, "call-tool")
		return nil, apperrors.NewUpstreamUnavailable(upstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		telemetry.UpstreamFailure(ctx, upstream, "call-tool")
		return nil, apperrors.NewUpstreamUnavailable(upstream, fmt.Errorf("%s: status %d", tool, resp.StatusCode))
	}

	var result ToolResult
	if err := json.Unmarshal(data, &result); err != nil {
		telemetry.UpstreamFailure(ctx, upstream, "call-tool")
		return nil, apperrors.NewContractViolation(upstream, err.Error())
	}
	result.LatencyMs = time.Since(start).Milliseconds()
	if !result.Success {
		telemetry.UpstreamFailure(ctx, upstream, "call-tool")
		msg := result.Error
		if msg == "" {
			msg = "tool reported failure"
		}
		return &result, apperrors.NewUpstreamUnavailable(upstream, fmt.Errorf("%s: %s", tool, msg))
	}

	log.Debug().
		Str("service", string(svc)).
		Str("tool", tool).
		Int64("latency_ms", result.LatencyMs).
		Msg("MCP tool call succeeded")
	return &result, nil
}

// Health checks GET <service>/health. Any 2xx status is healthy.
func (c *Client) Health(ctx context.Context, svc Service) error {
	if svc.Path() == "" {
		return apperrors.NewUnknownService(string(svc))
	}
	upstream := "mcp:" + string(svc)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, URL(c.baseURL, svc, "health"), nil)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewUpstreamUnavailable(upstream, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.NewUpstreamUnavailable(upstream, fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// HealthAll checks every registered service concurrently. It never fails as
// a whole; per-service failures are reported in the rows.
func (c *Client) HealthAll(ctx context.Context) []ServiceHealth {
	services := Services()
	out := make([]ServiceHealth, len(services))

	g, gctx := errgroup.WithContext(ctx)
	for i, svc := range services {
		g.Go(func() error {
			start := time.Now()
			err := c.Health(gctx, svc)
			row := ServiceHealth{
				Service:   svc,
				Healthy:   err == nil,
				LatencyMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				row.Error = healthError(err)
			}
			out[i] = row
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func healthError(err error) string {
	if cause := unwrapCause(err); cause != nil {
		return cause.Error()
	}
	return err.Error()
}

func unwrapCause(err error) error {
	if appErr, ok := err.(*apperrors.AppError); ok {
		return appErr.Unwrap()
	}
	return nil
}
