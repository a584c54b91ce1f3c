package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/coedaniel/aws-propuestas-v3/internal/capability"
	"github.com/coedaniel/aws-propuestas-v3/internal/ops"
)

const proxyPath = "/api/mcp-proxy"

// Options wires the API's collaborators.
type Options struct {
	Version string
	Deps    ops.Deps

	// Catalog is the full capability catalog, used to rebuild the classifier
	// on Reload. Defaults to the enabled descriptors of Deps.Classifier.
	Catalog []capability.Descriptor

	Health   HealthChecker
	Proxy    http.Handler
	Projects ProjectAPI // nil answers project routes with 503
	Sessions SessionStore
}

// NewHandlers builds the route handlers from opts.
func NewHandlers(opts Options) *Handlers {
	catalog := opts.Catalog
	if catalog == nil && opts.Deps.Classifier != nil {
		catalog = opts.Deps.Classifier.Descriptors()
	}
	return &Handlers{
		version:  opts.Version,
		health:   opts.Health,
		projects: opts.Projects,
		sessions: opts.Sessions,
		catalog:  catalog,
		deps:     opts.Deps,
	}
}

// NewRouter builds the API routes. The MCP proxy sets its own CORS headers and
// is exempt from the CORS middleware.
func NewRouter(h *Handlers, proxy http.Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, accessLog, recoverer, securityHeaders, cors(allowedOrigins, proxyPath))
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	if proxy != nil {
		r.Handle(proxyPath, proxy)
	}

	r.Get("/api/health", h.HandleHealth)
	r.Get("/api/mcp/health", h.HandleMCPHealth)

	r.Group(func(r chi.Router) {
		r.Use(sessionLoader(h.sessions))
		r.Post("/api/arquitecto", h.HandleArquitecto)
		r.Post("/api/chat", h.HandleChat)
	})

	if h.projects != nil {
		r.Get("/api/projects", h.HandleListProjects)
		r.Post("/api/projects", h.HandleCreateProject)
		r.Delete("/api/projects/{id}", h.HandleDeleteProject)
		r.Post("/api/documents", h.HandleGenerateDocuments)
	} else {
		r.Get("/api/projects", projectsUnavailable)
		r.Post("/api/projects", projectsUnavailable)
		r.Delete("/api/projects/{id}", projectsUnavailable)
		r.Post("/api/documents", projectsUnavailable)
	}

	if h.sessions != nil {
		r.Post("/api/sessions", h.HandleCreateSession)
		r.Get("/api/sessions/{id}", h.HandleGetSession)
		r.Delete("/api/sessions/{id}", h.HandleDeleteSession)
		r.Get("/api/sessions/{id}/export", h.HandleExportSession)
	}
	return r
}

// NewServer creates and configures the HTTP server for the API.
func NewServer(opts Options) (*http.Server, *Handlers) {
	h := NewHandlers(opts)
	var origins []string
	bind, port := "127.0.0.1", 8080
	if cfg := opts.Deps.Config; cfg != nil {
		origins = cfg.AllowedOrigins
		bind, port = cfg.Bind, cfg.Port
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewRouter(h, opts.Proxy, origins),
		ReadHeaderTimeout: 10 * time.Second,
	}, h
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().Str("addr", srv.Addr).Msg("API listening")

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn().Msg("Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info().Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
