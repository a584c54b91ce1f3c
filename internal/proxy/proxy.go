// Package proxy relays raw tool requests from the browser to the MCP services.
package proxy

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/coedaniel/aws-propuestas-v3/internal/mcpclient"
	"github.com/coedaniel/aws-propuestas-v3/internal/telemetry"
)

const maxBodyBytes = 8 << 20

// endpointPattern accepts path-like endpoint names such as "call-tool" or
// "tools/list". Query strings, fragments and dot segments are rejected.
var endpointPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(/[A-Za-z0-9_-]+)*$`)

// Handler forwards GET and POST requests to <base><service path>/<endpoint>.
type Handler struct {
	baseURL string
	client  mcpclient.Doer
}

// New returns a proxy handler. client is used for every outbound request.
func New(baseURL string, client mcpclient.Doer) *Handler {
	return &Handler{baseURL: baseURL, client: client}
}

type errorBody struct {
	Error   string `json:"error"`
	Service string `json:"service,omitempty"`
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	SetCORS(w.Header())

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	name := r.URL.Query().Get("service")
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.reply(w, r, name, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}

	svc, ok := mcpclient.Lookup(name)
	if !ok {
		h.reply(w, r, name, http.StatusBadRequest, errorBody{Error: "unknown service", Service: name})
		return
	}

	endpoint := strings.Trim(r.URL.Query().Get("endpoint"), "/")
	if !endpointPattern.MatchString(endpoint) {
		h.reply(w, r, name, http.StatusBadRequest, errorBody{Error: "invalid endpoint", Service: name})
		return
	}

	var body io.Reader
	if r.Method == http.MethodPost {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			h.reply(w, r, name, http.StatusBadRequest, errorBody{Error: "unreadable request body", Service: name})
			return
		}
		body = bytes.NewReader(data)
	}

	target := mcpclient.URL(h.baseURL, svc, endpoint)
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		h.unavailable(w, r, name, err)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		out.Header.Set("Content-Type", ct)
	}

	start := time.Now()
	resp, err := h.client.Do(out)
	if err != nil {
		h.unavailable(w, r, name, err)
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		h.unavailable(w, r, name, err)
		return
	}
	if !json.Valid(data) {
		h.unavailable(w, r, name, errNotJSON)
		return
	}

	log.Debug().
		Str("service", name).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Proxied MCP request")

	telemetry.ProxyRequest(r.Context(), name, resp.StatusCode)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(data)
}

// SetCORS writes the permissive CORS headers used by every proxy response.
func SetCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

type proxyError string

func (e proxyError) Error() string { return string(e) }

const errNotJSON proxyError = "upstream returned a non-JSON body"

func (h *Handler) unavailable(w http.ResponseWriter, r *http.Request, name string, err error) {
	log.Warn().Err(err).Str("service", name).Msg("MCP proxy upstream unavailable")
	telemetry.UpstreamFailure(r.Context(), "mcp:"+name, "proxy")
	h.reply(w, r, name, http.StatusServiceUnavailable, errorBody{Error: "service unavailable", Service: name})
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request, name string, status int, body errorBody) {
	telemetry.ProxyRequest(r.Context(), name, status)
	data, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
