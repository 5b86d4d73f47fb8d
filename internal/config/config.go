// ABOUTME: Configuration loading and parsing for hivenode
// ABOUTME: YAML file with ${VAR} expansion, environment overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hivenode configuration
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Server   ServerConfig   `yaml:"server"`
	Hive     HiveConfig     `yaml:"hive"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// NodeConfig identifies this node to the hive
type NodeConfig struct {
	ID          string `yaml:"id"`
	CallbackURL string `yaml:"callback_url"` // advertised push endpoint
}

// ServerConfig holds the local HTTP listener configuration
type ServerConfig struct {
	HTTPAddr  string  `yaml:"http_addr"`
	PushRate  float64 `yaml:"push_rate"`  // pushed jobs per second
	PushBurst int     `yaml:"push_burst"` // burst allowance for pushed jobs

	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

// HiveConfig holds the dispatch service connection settings
type HiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	BreakerMaxFailures uint32 `yaml:"breaker_max_failures"`

	PollInterval   time.Duration `yaml:"-"`
	RequestTimeout time.Duration `yaml:"-"`
	BreakerTimeout time.Duration `yaml:"-"`
	DedupeWindow   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	PollIntervalRaw   string `yaml:"poll_interval"`
	RequestTimeoutRaw string `yaml:"request_timeout"`
	BreakerTimeoutRaw string `yaml:"breaker_timeout"`
	DedupeWindowRaw   string `yaml:"dedupe_window"`
}

// AuthConfig holds the authorization service settings
type AuthConfig struct {
	URL         string `yaml:"url"`
	Scent       string `yaml:"scent"` // shared node secret presented at authorize
	RedirectURI string `yaml:"redirect_uri"`
	Scope       string `yaml:"scope"`

	TokenValidity    time.Duration `yaml:"-"`
	TokenValidityRaw string        `yaml:"token_validity"`
}

// DatabaseConfig holds the job ledger location
type DatabaseConfig struct {
	Path string `yaml:"path"` // empty disables the ledger, ":memory:" keeps it in memory
}

// ToolsConfig holds settings for the built-in capability handlers
type ToolsConfig struct {
	N8NURL     string `yaml:"n8n_url"`
	PythonPath string `yaml:"python_path"`
	OutputDir  string `yaml:"output_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID:          "local",
			CallbackURL: "http://localhost:8000/invoke",
		},
		Server: ServerConfig{
			HTTPAddr:        "127.0.0.1:8000",
			PushRate:        10,
			PushBurst:       20,
			ShutdownTimeout: 30 * time.Second,
		},
		Hive: HiveConfig{
			Enabled:            true,
			URL:                "http://localhost:9000",
			PollInterval:       5 * time.Second,
			RequestTimeout:     10 * time.Second,
			BreakerTimeout:     30 * time.Second,
			BreakerMaxFailures: 5,
			DedupeWindow:       10 * time.Minute,
		},
		Auth: AuthConfig{
			URL:           "http://localhost:9001",
			RedirectURI:   "http://localhost:8000/callback",
			Scope:         "read write full",
			TokenValidity: time.Hour,
		},
		Database: DatabaseConfig{
			Path: "./data/hivenode.db",
		},
		Tools: ToolsConfig{
			N8NURL:     "http://localhost:5678",
			PythonPath: "python3",
			OutputDir:  "/tmp",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, then the YAML file at path (skipped
// when path is empty), then environment overrides. Environment variables in
// the file in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Expand environment variables in the raw YAML content
		expandedData := expandEnvVars(string(data))

		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays the process environment. POLL_INTERVAL is whole seconds.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	set(&cfg.Node.ID, "NODE_ID")
	set(&cfg.Node.CallbackURL, "CALLBACK_URL")
	set(&cfg.Hive.URL, "DISPATCH_URL", "RAILWAY_URL")
	set(&cfg.Auth.URL, "AUTH_URL")
	set(&cfg.Auth.Scent, "SCENT")
	set(&cfg.Server.HTTPAddr, "HTTP_ADDR")
	set(&cfg.Tools.N8NURL, "N8N_URL")
	set(&cfg.Database.Path, "HIVENODE_DB_PATH")
	set(&cfg.Logging.Level, "LOG_LEVEL")

	if v, ok := lookup("POLL_INTERVAL"); ok && v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POLL_INTERVAL %q: %w", v, err)
		}
		cfg.Hive.PollInterval = time.Duration(secs) * time.Second
	}

	if v, ok := lookup("HIVE_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HIVE_ENABLED %q: %w", v, err)
		}
		cfg.Hive.Enabled = enabled
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return errors.New("node.id is required")
	}
	if strings.ContainsAny(c.Node.ID, "/ ") {
		return fmt.Errorf("node.id %q must not contain slashes or spaces", c.Node.ID)
	}
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}

	if c.Hive.Enabled {
		if c.Hive.URL == "" {
			return errors.New("hive.url is required when the hive is enabled")
		}
		if c.Auth.URL == "" {
			return errors.New("auth.url is required when the hive is enabled")
		}
		if c.Hive.PollInterval <= 0 {
			return fmt.Errorf("hive.poll_interval must be positive, got %s", c.Hive.PollInterval)
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"hive.poll_interval", cfg.Hive.PollIntervalRaw, &cfg.Hive.PollInterval},
		{"hive.request_timeout", cfg.Hive.RequestTimeoutRaw, &cfg.Hive.RequestTimeout},
		{"hive.breaker_timeout", cfg.Hive.BreakerTimeoutRaw, &cfg.Hive.BreakerTimeout},
		{"hive.dedupe_window", cfg.Hive.DedupeWindowRaw, &cfg.Hive.DedupeWindow},
		{"auth.token_validity", cfg.Auth.TokenValidityRaw, &cfg.Auth.TokenValidity},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
