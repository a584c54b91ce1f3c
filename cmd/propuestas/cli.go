package main

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/coedaniel/aws-propuestas-v3/internal/capability"
	"github.com/coedaniel/aws-propuestas-v3/internal/config"
	"github.com/coedaniel/aws-propuestas-v3/internal/db"
	"github.com/coedaniel/aws-propuestas-v3/internal/errors"
	"github.com/coedaniel/aws-propuestas-v3/internal/llm"
	"github.com/coedaniel/aws-propuestas-v3/internal/logging"
	"github.com/coedaniel/aws-propuestas-v3/internal/mcp"
	"github.com/coedaniel/aws-propuestas-v3/internal/mcpclient"
	"github.com/coedaniel/aws-propuestas-v3/internal/ops"
	"github.com/coedaniel/aws-propuestas-v3/internal/projects"
	"github.com/coedaniel/aws-propuestas-v3/internal/proxy"
	"github.com/coedaniel/aws-propuestas-v3/internal/reply"
	"github.com/coedaniel/aws-propuestas-v3/internal/session"
	"github.com/coedaniel/aws-propuestas-v3/internal/watcher"
	"github.com/coedaniel/aws-propuestas-v3/internal/web"
)

// appEnv locates the base directory and loads shared state on demand, so
// commands like classify never touch the database.
type appEnv struct {
	baseDir string
	workDir string
}

func (e *appEnv) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(e.baseDir, e.workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func (e *appEnv) openDB(cfg *config.Config) (*sql.DB, error) {
	database, err := db.Init(e.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)
	return database, nil
}

func (e *appEnv) classifier(cfg *config.Config) (*capability.Classifier, []capability.Descriptor, error) {
	descs, err := capability.LoadCatalog()
	if err != nil {
		return nil, nil, err
	}
	return capability.NewClassifier(descs, cfg.DisabledCapabilities...), descs, nil
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "propuestas",
		Usage:   "AWS architecture proposal assistant backend",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(env),
			classifyCmd(env),
			analyzeCmd(),
			healthCmd(env),
			mcpCmd(env),
			exportCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Interface to listen on (overrides config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (overrides config)"},
			&cli.BoolFlag{Name: "watch-config", Usage: "Reload config.json when it changes"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			if c.IsSet("bind") {
				cfg.Bind = c.String("bind")
			}
			if c.IsSet("port") {
				cfg.Port = c.Int("port")
			}
			logging.Setup(cfg.LogLevel, cfg.LogPretty)

			database, err := env.openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			classifier, descs, err := env.classifier(cfg)
			if err != nil {
				return err
			}
			model, err := llm.NewFromConfig(c.Context, cfg.AWSRegion)
			if err != nil {
				return fmt.Errorf("failed to create model client: %w", err)
			}

			mcpClient := mcpclient.New(cfg.MCPBaseURL, cfg.UpstreamTimeout())
			opts := web.Options{
				Version: Version,
				Deps: ops.Deps{
					Config:     cfg,
					Classifier: classifier,
					Model:      model,
					Tools:      mcpClient,
				},
				Catalog:  descs,
				Health:   mcpClient,
				Proxy:    proxy.New(cfg.MCPBaseURL, &http.Client{Timeout: cfg.UpstreamTimeout()}),
				Sessions: session.NewStore(database),
			}
			if cfg.ProjectsAPIURL != "" {
				opts.Projects = projects.New(cfg.ProjectsAPIURL, cfg.UpstreamTimeout())
			}

			srv, handlers := web.NewServer(opts)

			if c.Bool("watch-config") {
				w, err := watchConfig(env, cfg, handlers)
				if err != nil {
					log.Warn().Err(err).Msg("Config watcher disabled")
				} else {
					defer w.Stop()
				}
			}

			return web.Run(srv)
		},
	}
}

// watchConfig reloads config.json on change. Listener and client settings
// need a restart; log level and disabled capabilities apply immediately.
func watchConfig(env *appEnv, current *config.Config, handlers *web.Handlers) (*watcher.Watcher, error) {
	w, err := watcher.New(config.Path(env.baseDir), 0, func() {
		cfg, err := env.loadConfig()
		if err != nil {
			log.Error().Err(err).Msg("Config reload failed, keeping previous config")
			return
		}
		cfg.Bind, cfg.Port = current.Bind, current.Port
		logging.Setup(cfg.LogLevel, cfg.LogPretty)
		handlers.Reload(cfg)
		log.Info().Strs("disabled_capabilities", cfg.DisabledCapabilities).Msg("Config reloaded")
	})
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return nil, err
	}
	return w, nil
}

// classifyCmd creates the classify command.
func classifyCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Detect the capabilities a message needs (reads stdin when no text is given)",
		ArgsUsage: "[text]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "prompt", Usage: "Also print the augmented system prompt"},
		},
		Action: func(c *cli.Context) error {
			text, err := textArg(c)
			if err != nil {
				return outputError(err)
			}
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			classifier, _, err := env.classifier(cfg)
			if err != nil {
				return err
			}

			matches := classifier.Classify(text)
			result := mcp.ClassifyResult{
				Capabilities: capability.Names(matches),
				Matches:      matches,
			}
			if c.Bool("prompt") {
				result.Prompt = capability.Augment(ops.DefaultSystemPrompt, matches)
			}
			return outputJSON(c, result)
		},
	}
}

// analyzeCmd creates the analyze command.
func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Decide which artifacts an assistant reply calls for (reads stdin when no text is given)",
		ArgsUsage: "[text]",
		Action: func(c *cli.Context) error {
			text, err := textArg(c)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, reply.Analyze(text))
		},
	}
}

// healthCmd creates the health command.
func healthCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Probe every MCP service",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "strict", Usage: "Exit non-zero when any service is unhealthy"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			client := mcpclient.New(cfg.MCPBaseURL, cfg.UpstreamTimeout())
			rows := client.HealthAll(c.Context)

			healthy := true
			for _, row := range rows {
				if !row.Healthy {
					healthy = false
				}
			}
			if err := outputJSON(c, mcp.CheckServicesResult{Services: rows, Healthy: healthy}); err != nil {
				return err
			}
			if c.Bool("strict") && !healthy {
				return cli.Exit("one or more MCP services are unhealthy", 2)
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the classifier and MCP service tools over stdio",
		Action: func(c *cli.Context) error {
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the protocol
			logging.Setup(cfg.LogLevel, true)

			classifier, _, err := env.classifier(cfg)
			if err != nil {
				return err
			}
			client := mcpclient.New(cfg.MCPBaseURL, cfg.UpstreamTimeout())
			return mcp.Run(mcp.NewHandlers(classifier, client, client, ops.DefaultSystemPrompt), Version)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a session transcript to the exports directory",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: session.FormatMarkdown, Usage: "md|html"},
			&cli.StringFlag{Name: "path", Usage: "Output path inside the exports directory"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("session id is required"))
			}
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			database, err := env.openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			output, err := ops.ExportTranscript(c.Context, session.NewStore(database), env.baseDir, ops.ExportInput{
				SessionID: c.Args().First(),
				Format:    c.String("format"),
				Path:      c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// Helper functions

// outputJSON marshals result to the app's writer as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if appErr, ok := err.(*errors.AppError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// textArg joins the positional arguments, or reads piped stdin when there are none.
func textArg(c *cli.Context) (string, error) {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" && c.App.Reader != nil && readerHasData(c.App.Reader) {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return "", errors.NewInternal(err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return "", errors.NewInvalidRequest("text is required (argument or stdin)")
	}
	return text, nil
}

// readerHasData reports whether r is piped input rather than a terminal.
func readerHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
