package projects

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	apperrors "github.com/coedaniel/aws-propuestas-v3/internal/errors"
	"github.com/coedaniel/aws-propuestas-v3/internal/telemetry"
)

const maxResponseBytes = 8 << 20

// Doer is the subset of *http.Client used here.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the project-storage API.
type Client struct {
	baseURL string
	http    Doer
}

// New returns a client bounded by timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return NewWithDoer(baseURL, &http.Client{Timeout: timeout})
}

// NewWithDoer returns a client that sends requests through d.
func NewWithDoer(baseURL string, d Doer) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: d}
}

// List returns every project.
func (c *Client) List(ctx context.Context) ([]Project, error) {
	data, err := c.do(ctx, http.MethodGet, "/projects", nil, "list")
	if err != nil {
		return nil, err
	}
	return decodeProjectList(data)
}

// Create creates a project and returns the stored record.
func (c *Client) Create(ctx context.Context, in CreateInput) (*Project, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	data, err := c.do(ctx, http.MethodPost, "/projects", in, "create")
	if err != nil {
		return nil, err
	}
	return decodeProject(data)
}

// Delete removes a project by id.
func (c *Client) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperrors.NewInvalidRequest("project id is required")
	}
	_, err := c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(id), nil, "delete")
	if isStatus(err, http.StatusNotFound) {
		return apperrors.NewNotFound("project", id)
	}
	return err
}

// GenerateDocuments triggers document generation and returns the API's reply
// unchanged.
func (c *Client) GenerateDocuments(ctx context.Context, req DocumentRequest) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	data, err := c.do(ctx, http.MethodPost, "/documents", req, "documents")
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(data) {
		return nil, apperrors.NewContractViolation(upstreamName, "documents reply is not JSON")
	}
	return json.RawMessage(data), nil
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d", e.status)
}

func isStatus(err error, status int) bool {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		return false
	}
	se, ok := appErr.Unwrap().(*statusError)
	return ok && se.status == status
}

func (c *Client) do(ctx context.Context, method, path string, payload any, op string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.UpstreamFailure(ctx, upstreamName, op)
		log.Warn().Err(err).Str("op", op).Msg("Project API call failed")
		return nil, apperrors.NewUpstreamUnavailable(upstreamName, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		telemetry.UpstreamFailure(ctx, upstreamName, op)
		return nil, apperrors.NewUpstreamUnavailable(upstreamName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		telemetry.UpstreamFailure(ctx, upstreamName, op)
		log.Warn().Int("status", resp.StatusCode).Str("op", op).Msg("Project API returned an error status")
		return nil, apperrors.NewUpstreamUnavailable(upstreamName, &statusError{status: resp.StatusCode})
	}
	return data, nil
}
