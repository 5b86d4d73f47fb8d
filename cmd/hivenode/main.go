// ABOUTME: Entry point for the hivenode local agent node
// ABOUTME: Serves local tools and bridges jobs from the hive dispatch service

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/hivenode/internal/builtins"
	"github.com/2389/hivenode/internal/config"
	"github.com/2389/hivenode/internal/mcp"
	"github.com/2389/hivenode/internal/node"
	"github.com/2389/hivenode/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _     _                           _
 | |__ (_)_   _____ _ __   ___   __| | ___
 | '_ \| \ \ / / _ \ '_ \ / _ \ / _' |/ _ \
 | | | | |\ V /  __/ | | | (_) | (_| |  __/
 |_| |_|_| \_/ \___|_| |_|\___/ \__,_|\___|
`

// getConfigPath returns the config file to load, or "" to run on defaults
// and environment only.
// Priority: HIVENODE_CONFIG env var > ./hivenode.yaml if present
func getConfigPath() string {
	if envPath := os.Getenv("HIVENODE_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("hivenode.yaml"); err == nil {
		return "hivenode.yaml"
	}
	return ""
}

func loadConfig() (*config.Config, string, error) {
	// A missing .env is fine; a malformed one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("loading .env: %w", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: hivenode <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the node")
		fmt.Println("  health   Check a running node's health")
		fmt.Println("  tools    List the tools this node exposes")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "tools":
		err = runTools()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if configPath == "" {
		configPath = "(defaults and environment)"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Node ID: %s\n", cfg.Node.ID)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	if cfg.Hive.Enabled {
		fmt.Printf("Hive:    %s ", cfg.Hive.URL)
		gray.Printf("(poll every %s)\n", cfg.Hive.PollInterval)
	} else {
		fmt.Print("Hive:    ")
		yellow.Println("disabled")
	}
	if cfg.Database.Path == "" {
		yellow.Print("    ! ")
		fmt.Println("Job ledger disabled")
	}
	fmt.Println()

	logger.Info("starting hivenode",
		"node_id", cfg.Node.ID,
		"http_addr", cfg.Server.HTTPAddr,
		"hive_enabled", cfg.Hive.Enabled,
	)

	n, err := node.New(cfg, version, logger)
	if err != nil {
		return fmt.Errorf("creating node: %w", err)
	}

	return n.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			mu:    &sync.Mutex{},
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// Derived handlers share the parent's mutex so lines never interleave.
type colorHandler struct {
	mu     *sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, a := range h.attrs {
		writeAttr(&buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, prefix, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprint(color.Output, buf.String())
	return err
}

func writeAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	buf.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		mu:     h.mu,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		mu:     h.mu,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// healthURL turns a listen address into a URL reachable from this host.
func healthURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/health"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/health"
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(cfg.Server.HTTPAddr), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	var health mcp.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Printf("%s ", health.Status)
	fmt.Printf("node=%s bridge=", health.NodeID)
	if health.Bridge == "connected" {
		green.Print(health.Bridge)
	} else {
		yellow.Print(health.Bridge)
	}
	fmt.Printf(" jobs=%d", health.JobsProcessed)
	if health.LastSync != nil {
		fmt.Printf(" last_sync=%s", health.LastSync.Format("15:04:05"))
	}
	fmt.Println()
	return nil
}

func runTools() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	registry := tools.NewRegistry(slog.New(slog.DiscardHandler))
	registry.MustRegister(builtins.All(builtins.Options{
		N8NURL:     cfg.Tools.N8NURL,
		PythonPath: cfg.Tools.PythonPath,
		OutputDir:  cfg.Tools.OutputDir,
	})...)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTIMEOUT\tPARAMS\tDESCRIPTION")
	for _, d := range registry.List() {
		timeout := "none"
		if d.HasTimeout() {
			timeout = d.Timeout.String()
		}
		params := make([]string, 0, len(d.Params))
		for _, p := range d.Params {
			name := p.Name
			if !p.Required {
				name += "?"
			}
			params = append(params, name)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, timeout, strings.Join(params, ","), d.Description)
	}
	return tw.Flush()
}
