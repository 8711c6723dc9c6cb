package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/photobooth"
	"github.com/aretw0/photobooth/internal/config"
	httpAdapter "github.com/aretw0/photobooth/pkg/adapters/http"
	"github.com/aretw0/photobooth/pkg/adapters/mcp"
	"github.com/aretw0/photobooth/pkg/adapters/memory"
	"github.com/aretw0/photobooth/pkg/observability"
	"github.com/aretw0/photobooth/pkg/ports"
	"github.com/aretw0/photobooth/pkg/session"
)

// ServeOptions configures the HTTP and MCP commands.
type ServeOptions struct {
	ConfigPath string
	Debug      bool
	Port       int    // Overrides the configured port when > 0
	Transport  string // MCP only: stdio or sse
}

// runtimeDeps are the shared pieces behind a session manager.
type runtimeDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	streams  *httpAdapter.StreamManager
	manager  *session.Manager
	close    func()
}

// setup loads configuration and builds the session manager.
// Booths mirror their surface to the SSE stream of their session.
func setup(ctx context.Context, opts ServeOptions) (*runtimeDeps, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger, err := CreateLogger(cfg.Log.Level, opts.Debug)
	if err != nil {
		return nil, err
	}

	camera, err := openCamera(cfg.Camera)
	if err != nil {
		return nil, err
	}
	locker, closeLocker, err := openLocker(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		_ = closeLocker()
		return nil, err
	}
	hooks := observability.Combine(metrics.Hooks(), observability.LogHooks(logger))

	streams := httpAdapter.NewStreamManager(logger)
	factory := func(ctx context.Context, id string) (ports.BoothSession, error) {
		boothOpts := append(boothOptions(cfg, logger, hooks, locker), photobooth.WithSessionID(id))
		booth, err := photobooth.New(camera, httpAdapter.NewStreamSurface(streams, id), boothOpts...)
		if err != nil {
			return nil, err
		}
		return booth, nil
	}

	managerOpts := []session.Option{session.WithLogger(logger)}
	if locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(locker, cfg.Redis.LockTTL))
	}
	manager := session.NewManager(memory.NewStore(), factory, managerOpts...)

	return &runtimeDeps{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		streams:  streams,
		manager:  manager,
		close: func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := manager.Close(closeCtx); err != nil {
				logger.Warn("Failed to close sessions", "err", err)
			}
			_ = closeLocker()
		},
	}, nil
}

// Serve runs the HTTP API until interrupted.
func Serve(opts ServeOptions) error {
	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	deps, err := setup(sigCtx, opts)
	if err != nil {
		return err
	}
	defer deps.close()

	port := deps.cfg.Server.Port
	if opts.Port > 0 {
		port = opts.Port
	}

	handler, err := httpAdapter.NewHandler(sigCtx, deps.manager,
		httpAdapter.WithLogger(deps.logger),
		httpAdapter.WithVersion(photobooth.Version),
		httpAdapter.WithMetrics(deps.registry),
		httpAdapter.WithStreams(deps.streams),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		deps.logger.Info("Starting Photobooth Server", "address", srv.Addr, "camera", deps.cfg.Camera.Driver)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case <-sigCtx.Done():
		deps.logger.Info("Start shutdown", "signal", sigCtx.Signal())

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			deps.logger.Warn("Graceful shutdown did not complete", "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("error killing server: %w", err)
			}
		}
		deps.logger.Info("Photobooth Server stopped gracefully")
		return nil
	}
}

// ServeMCP runs the MCP server on stdio or SSE.
func ServeMCP(opts ServeOptions) error {
	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	deps, err := setup(sigCtx, opts)
	if err != nil {
		return err
	}
	defer deps.close()

	srv := mcp.NewServer(deps.manager, photobooth.Version, mcp.WithLogger(deps.logger))

	switch opts.Transport {
	case "", "stdio":
		deps.logger.Info("Starting Photobooth MCP Server (Stdio)")
		return srv.ServeStdio()
	case "sse":
		port := deps.cfg.Server.MCPPort
		if opts.Port > 0 {
			port = opts.Port
		}
		err := srv.ServeSSE(sigCtx, port)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		deps.logger.Info("MCP Server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", opts.Transport)
	}
}
