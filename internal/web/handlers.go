package web

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/coedaniel/aws-propuestas-v3/internal/capability"
	"github.com/coedaniel/aws-propuestas-v3/internal/config"
	"github.com/coedaniel/aws-propuestas-v3/internal/errors"
	"github.com/coedaniel/aws-propuestas-v3/internal/mcpclient"
	"github.com/coedaniel/aws-propuestas-v3/internal/ops"
	"github.com/coedaniel/aws-propuestas-v3/internal/projects"
	"github.com/coedaniel/aws-propuestas-v3/internal/session"
)

const maxBodyBytes = 1 << 20

// HealthChecker probes every MCP service.
type HealthChecker interface {
	HealthAll(ctx context.Context) []mcpclient.ServiceHealth
}

// ProjectAPI is the external project-storage API.
type ProjectAPI interface {
	List(ctx context.Context) ([]projects.Project, error)
	Create(ctx context.Context, in projects.CreateInput) (*projects.Project, error)
	Delete(ctx context.Context, id string) error
	GenerateDocuments(ctx context.Context, req projects.DocumentRequest) (json.RawMessage, error)
}

// SessionStore persists conversation sessions.
type SessionStore interface {
	SessionLoader
	Create(input session.CreateInput) (*session.State, error)
	Save(s *session.State) error
	Delete(id string) error
}

// Handlers contains HTTP route handlers for the API.
type Handlers struct {
	version  string
	health   HealthChecker
	projects ProjectAPI
	sessions SessionStore
	catalog  []capability.Descriptor

	mu   sync.RWMutex
	deps ops.Deps
}

func (h *Handlers) currentDeps() ops.Deps {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.deps
}

// Reload swaps in a new configuration. The classifier is rebuilt so that
// disabled capabilities take effect for the next request.
func (h *Handlers) Reload(cfg *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps.Config = cfg
	h.deps.Classifier = capability.NewClassifier(h.catalog, cfg.DisabledCapabilities...)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: h.version})
}

// HandleArquitecto handles POST /api/arquitecto: a chat pass followed by
// diagram, template and documentation generation.
func (h *Handlers) HandleArquitecto(w http.ResponseWriter, r *http.Request) {
	h.chat(w, r, true)
}

// HandleChat handles POST /api/chat: a chat pass without post-processing.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	h.chat(w, r, false)
}

func (h *Handlers) chat(w http.ResponseWriter, r *http.Request, postProcess bool) {
	var input ops.ChatInput
	if err := decodeJSON(w, r, &input, false); err != nil {
		renderError(w, r, err)
		return
	}
	input.PostProcess = postProcess

	out, err := ops.Chat(r.Context(), h.currentDeps(), input)
	if err != nil {
		renderError(w, r, err)
		return
	}

	// A failed save loses the turn from history but not the reply.
	if state, ok := session.FromContext(r.Context()); ok && h.sessions != nil {
		if err := h.sessions.Save(state); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to save session")
		}
	}
	renderJSON(w, http.StatusOK, out)
}

type mcpHealthResponse struct {
	Services []mcpclient.ServiceHealth `json:"services"`
	Healthy  bool                      `json:"healthy"`
}

// HandleMCPHealth handles GET /api/mcp/health.
func (h *Handlers) HandleMCPHealth(w http.ResponseWriter, r *http.Request) {
	rows := h.health.HealthAll(r.Context())
	healthy := true
	for _, row := range rows {
		if !row.Healthy {
			healthy = false
			break
		}
	}
	renderJSON(w, http.StatusOK, mcpHealthResponse{Services: rows, Healthy: healthy})
}

type projectListResponse struct {
	Projects []projects.Project `json:"projects"`
}

// HandleListProjects handles GET /api/projects.
func (h *Handlers) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := h.projects.List(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, projectListResponse{Projects: list})
}

// HandleCreateProject handles POST /api/projects.
func (h *Handlers) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in projects.CreateInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		renderError(w, r, err)
		return
	}
	p, err := h.projects.Create(r.Context(), in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, p)
}

// HandleDeleteProject handles DELETE /api/projects/{id}.
func (h *Handlers) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGenerateDocuments handles POST /api/documents.
func (h *Handlers) HandleGenerateDocuments(w http.ResponseWriter, r *http.Request) {
	var req projects.DocumentRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		renderError(w, r, err)
		return
	}
	out, err := h.projects.GenerateDocuments(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// projectsUnavailable answers every project route when no API URL is configured.
func projectsUnavailable(w http.ResponseWriter, r *http.Request) {
	renderError(w, r, errors.NewUpstreamUnavailable("projects-api", nil))
}

// HandleCreateSession handles POST /api/sessions. The body is optional.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in session.CreateInput
	if err := decodeJSON(w, r, &in, true); err != nil {
		renderError(w, r, err)
		return
	}
	state, err := h.sessions.Create(in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, state)
}

// HandleGetSession handles GET /api/sessions/{id}.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.Load(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, state)
}

// HandleDeleteSession handles DELETE /api/sessions/{id}.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleExportSession handles GET /api/sessions/{id}/export?format=md|html.
func (h *Handlers) HandleExportSession(w http.ResponseWriter, r *http.Request) {
	format, err := session.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	state, err := h.sessions.Load(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	data, err := session.Export(state, format)
	if err != nil {
		renderError(w, r, err)
		return
	}

	name := strings.ReplaceAll(ops.SanitizeForFilename(state.Title), `"`, "") + "." + format
	w.Header().Set("Content-Type", session.ContentType(format))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	renderError(w, r, errors.NewNotFound("route", r.URL.Path))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	renderError(w, r, errors.NewMethodNotAllowed(r.Method))
}
