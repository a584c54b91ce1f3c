package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Bind is the interface the HTTP API listens on.
	Bind string `json:"bind"`

	// Port is the HTTP API port.
	Port int `json:"port"`

	// AWSRegion is the region used for the Bedrock runtime client.
	AWSRegion string `json:"aws_region"`

	// DefaultModel is used when a chat request carries no selectedModel.
	DefaultModel string `json:"default_model"`

	// MaxTokens, Temperature and TopP form the inference configuration sent with
	// every model call.
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`

	// MCPBaseURL is the base URL shared by all MCP services. Each service
	// appends its own fixed path segment.
	MCPBaseURL string `json:"mcp_base_url"`

	// ProjectsAPIURL is the base URL of the external project-storage API.
	// Empty disables the /api/projects and /api/documents routes.
	ProjectsAPIURL string `json:"projects_api_url,omitempty"`

	// UpstreamTimeoutSeconds bounds every outbound HTTP call (MCP, projects).
	UpstreamTimeoutSeconds int `json:"upstream_timeout_seconds"`

	// MaxHistoryMessages caps the conversation history accepted per request.
	MaxHistoryMessages int `json:"max_history_messages"`

	// DisabledCapabilities lists capability names excluded from classification.
	DisabledCapabilities []string `json:"disabled_capabilities,omitempty"`

	// AllowedOrigins for CORS on the API routes. Empty means "*".
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `json:"log_level"`

	// LogPretty switches the logger to a human-readable console writer.
	LogPretty bool `json:"log_pretty,omitempty"`

	// DBMaxOpenConns limits open connections to the session database (0 = driver default).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle connections in the pool (0 = driver default).
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Bind:                   "127.0.0.1",
		Port:                   8080,
		AWSRegion:              "us-east-1",
		DefaultModel:           "amazon.nova-pro-v1:0",
		MaxTokens:              4000,
		Temperature:            0.7,
		TopP:                   0.9,
		MCPBaseURL:             "https://mcp.danielingram.shop",
		UpstreamTimeoutSeconds: 60,
		MaxHistoryMessages:     50,
		LogLevel:               "info",
	}
}

// UpstreamTimeout returns the outbound HTTP timeout as a duration.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json, then applies .env files
// from workDir and finally environment variable overrides.
// Returns default config if no file exists.
func Load(baseDir, workDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	if err := LoadDotEnv(workDir); err != nil {
		return nil, err
	}
	return ApplyEnv(cfg, os.Getenv), nil
}

// Path returns the config file path for baseDir.
func Path(baseDir string) string {
	return filepath.Join(baseDir, "config.json")
}

// LoadDotEnv loads .env.local and .env from dir into the process environment.
// Existing variables are never overwritten, so .env.local wins over .env.
func LoadDotEnv(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg.
// getenv is injected so tests don't depend on the process environment.
func ApplyEnv(cfg *Config, getenv func(string) string) *Config {
	overlay := &Config{
		Bind:           getenv("PROPUESTAS_BIND"),
		AWSRegion:      firstNonEmpty(getenv("AWS_REGION"), getenv("AWS_DEFAULT_REGION")),
		DefaultModel:   getenv("BEDROCK_MODEL_ID"),
		MCPBaseURL:     getenv("MCP_BASE_URL"),
		ProjectsAPIURL: firstNonEmpty(getenv("PROJECTS_API_URL"), getenv("NEXT_PUBLIC_API_URL")),
		LogLevel:       getenv("LOG_LEVEL"),
	}
	if port, err := strconv.Atoi(getenv("PORT")); err == nil {
		overlay.Port = port
	}
	if secs, err := strconv.Atoi(getenv("UPSTREAM_TIMEOUT_SECONDS")); err == nil {
		overlay.UpstreamTimeoutSeconds = secs
	}
	return Merge(cfg, overlay)
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		Bind:           firstNonEmpty(overlay.Bind, base.Bind),
		AWSRegion:      firstNonEmpty(overlay.AWSRegion, base.AWSRegion),
		DefaultModel:   firstNonEmpty(overlay.DefaultModel, base.DefaultModel),
		MCPBaseURL:     strings.TrimRight(firstNonEmpty(overlay.MCPBaseURL, base.MCPBaseURL), "/"),
		ProjectsAPIURL: strings.TrimRight(firstNonEmpty(overlay.ProjectsAPIURL, base.ProjectsAPIURL), "/"),
		LogLevel:       firstNonEmpty(overlay.LogLevel, base.LogLevel),
	}

	result.Port = firstNonZero(overlay.Port, base.Port)
	result.MaxTokens = firstNonZero(overlay.MaxTokens, base.MaxTokens)
	result.UpstreamTimeoutSeconds = firstNonZero(overlay.UpstreamTimeoutSeconds, base.UpstreamTimeoutSeconds)
	result.MaxHistoryMessages = firstNonZero(overlay.MaxHistoryMessages, base.MaxHistoryMessages)
	result.DBMaxOpenConns = firstNonZero(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstNonZero(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.Temperature = overlay.Temperature
	if result.Temperature == 0 {
		result.Temperature = base.Temperature
	}
	result.TopP = overlay.TopP
	if result.TopP == 0 {
		result.TopP = base.TopP
	}

	// Booleans: overlay wins if true, else base
	result.LogPretty = base.LogPretty || overlay.LogPretty

	result.DisabledCapabilities = mergeStringSlice(base.DisabledCapabilities, overlay.DisabledCapabilities)
	result.AllowedOrigins = mergeStringSlice(base.AllowedOrigins, overlay.AllowedOrigins)

	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
