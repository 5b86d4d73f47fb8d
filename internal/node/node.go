// ABOUTME: Node orchestrator that owns the HTTP server and the hive bridge
// ABOUTME: Wires config into components and runs startup and graceful shutdown

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/2389/hivenode/internal/auth"
	"github.com/2389/hivenode/internal/bridge"
	"github.com/2389/hivenode/internal/builtins"
	"github.com/2389/hivenode/internal/config"
	"github.com/2389/hivenode/internal/dedupe"
	"github.com/2389/hivenode/internal/hive"
	"github.com/2389/hivenode/internal/mcp"
	"github.com/2389/hivenode/internal/store"
	"github.com/2389/hivenode/internal/tools"
)

// dedupeCapacity bounds the number of remembered job ids.
const dedupeCapacity = 10_000

// Node owns every long-lived component of a running hivenode.
type Node struct {
	config     *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	mcpServer  *mcp.Server
	registry   *tools.Registry
	state      *bridge.State

	// ledger is nil when database.path is empty
	ledger store.JobLedger

	// bridge components; nil when the hive is disabled
	tokens     *auth.TokenManager
	hiveClient *hive.Client
	registrar  *bridge.Registrar
	dispatcher *bridge.Dispatcher
	poller     *bridge.Poller
	dedupe     *dedupe.Cache

	// bg tracks the startup registration goroutine
	bg sync.WaitGroup
}

// New creates a Node from cfg. Nothing is started until Run.
func New(cfg *config.Config, version string, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ledger, err := initLedger(cfg)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry(logger.With("component", "tools"))
	for _, t := range builtins.All(builtins.Options{
		N8NURL:     cfg.Tools.N8NURL,
		PythonPath: cfg.Tools.PythonPath,
		OutputDir:  cfg.Tools.OutputDir,
	}) {
		if err := registry.Register(t); err != nil {
			closeLedger(ledger)
			return nil, fmt.Errorf("registering tool: %w", err)
		}
	}

	n := &Node{
		config:   cfg,
		logger:   logger.With("component", "node"),
		registry: registry,
		state:    bridge.NewState(),
		ledger:   ledger,
	}

	// Left as nil interfaces when the hive is disabled.
	var jobs mcp.JobSubmitter
	var breaker mcp.BreakerReporter
	if cfg.Hive.Enabled {
		n.initBridge(logger)
		jobs = n.dispatcher
		breaker = n.hiveClient
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Tools:        registry,
		Jobs:         jobs,
		State:        n.state,
		Ledger:       ledger,
		Breaker:      breaker,
		NodeID:       cfg.Node.ID,
		Capabilities: builtins.Capabilities,
		Version:      version,
		PushRate:     cfg.Server.PushRate,
		PushBurst:    cfg.Server.PushBurst,
		Logger:       logger,
	})
	if err != nil {
		n.closeComponents()
		closeLedger(ledger)
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	n.mcpServer = mcpServer

	mux := http.NewServeMux()
	mcpServer.RegisterRoutes(mux)

	n.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	n.httpServer.RegisterOnShutdown(mcpServer.Close)

	return n, nil
}

// initLedger opens the job ledger, or returns nil when none is configured.
func initLedger(cfg *config.Config) (store.JobLedger, error) {
	if cfg.Database.Path == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return s, nil
}

func closeLedger(l store.JobLedger) {
	if l != nil {
		_ = l.Close()
	}
}

// initBridge builds the credential, transport and job components.
func (n *Node) initBridge(logger *slog.Logger) {
	cfg := n.config

	n.tokens = auth.NewTokenManager(auth.Config{
		AuthURL:     cfg.Auth.URL,
		NodeID:      cfg.Node.ID,
		Scent:       cfg.Auth.Scent,
		RedirectURI: cfg.Auth.RedirectURI,
		Scope:       cfg.Auth.Scope,
		Validity:    cfg.Auth.TokenValidity,
		Logger:      logger,
	})

	n.hiveClient = hive.NewClient(hive.Config{
		BaseURL:     cfg.Hive.URL,
		NodeID:      cfg.Node.ID,
		Credentials: n.tokens,
		Timeout:     cfg.Hive.RequestTimeout,
		Breaker: hive.BreakerConfig{
			MaxFailures: cfg.Hive.BreakerMaxFailures,
			Timeout:     cfg.Hive.BreakerTimeout,
		},
		Logger: logger,
	})

	n.registrar = bridge.NewRegistrar(n.hiveClient, n.state, hive.Registration{
		NodeID:       cfg.Node.ID,
		Capabilities: builtins.Capabilities,
		CallbackURL:  cfg.Node.CallbackURL,
	}, logger)

	if cfg.Hive.DedupeWindow > 0 {
		n.dedupe = dedupe.New(cfg.Hive.DedupeWindow, dedupeCapacity)
	}

	n.dispatcher = bridge.NewDispatcher(bridge.DispatcherConfig{
		Tools:  n.registry,
		Hive:   n.hiveClient,
		State:  n.state,
		Ledger: n.ledger,
		Dedupe: n.dedupe,
		Logger: logger,
	})

	n.poller = bridge.NewPoller(n.hiveClient, n.dispatcher, n.state, cfg.Hive.PollInterval, logger)
}

// State returns the bridge state shared by the node's components.
func (n *Node) State() *bridge.State {
	return n.state
}

// Tools returns the node's tool registry.
func (n *Node) Tools() *tools.Registry {
	return n.registry
}

// setupListener creates the TCP listener for the HTTP server.
func (n *Node) setupListener() (net.Listener, error) {
	ln, err := net.Listen("tcp", n.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// Run starts the node and blocks until ctx is canceled or the HTTP server
// fails. Returns nil on graceful shutdown.
func (n *Node) Run(ctx context.Context) error {
	ln, err := n.setupListener()
	if err != nil {
		n.closeComponents()
		closeLedger(n.ledger)
		return err
	}
	return n.serve(ctx, ln)
}

func (n *Node) serve(ctx context.Context, ln net.Listener) error {
	errCh := n.startServer(ln)
	n.startBridge(ctx)

	serverErr := n.waitForShutdownSignal(ctx, errCh)
	shutdownErr := n.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (n *Node) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		n.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := n.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// startBridge registers with the hive in the background and starts polling.
// Polling does not wait for registration to succeed.
func (n *Node) startBridge(ctx context.Context) {
	if n.poller == nil {
		n.logger.Info("hive bridge disabled")
		return
	}

	n.bg.Add(1)
	go func() {
		defer n.bg.Done()
		n.registrar.Register(ctx)
	}()

	if err := n.poller.Start(ctx); err != nil {
		n.logger.Error("failed to start poller", "error", err)
	}
}

// waitForShutdownSignal waits for context cancellation or server error.
func (n *Node) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		n.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		n.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout, since
// the run context is already canceled.
func (n *Node) gracefulShutdown() error {
	timeout := n.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return n.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, joins the poller and pushed jobs, then
// closes the ledger. In-flight jobs run to completion.
func (n *Node) Shutdown(ctx context.Context) error {
	n.logger.Info("shutting down node")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", n.httpServer.Shutdown(ctx))

	if n.poller != nil {
		n.poller.Stop()
	}
	if n.dispatcher != nil {
		n.dispatcher.Close()
	}
	n.bg.Wait()

	if n.ledger != nil {
		errs = appendCloseError(errs, "store close", n.ledger.Close())
	}
	n.closeComponents()

	return errors.Join(errs...)
}

// closeComponents releases components that hold goroutines.
func (n *Node) closeComponents() {
	if n.mcpServer != nil {
		n.mcpServer.Close()
	}
	if n.dedupe != nil {
		n.dedupe.Close()
	}
}
