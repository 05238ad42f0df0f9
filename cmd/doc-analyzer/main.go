package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/catalogai/doc-analyzer/internal/analysis"
	"github.com/catalogai/doc-analyzer/internal/cache"
	"github.com/catalogai/doc-analyzer/internal/config"
	"github.com/catalogai/doc-analyzer/internal/mcp"
	"github.com/catalogai/doc-analyzer/internal/provider"
	"github.com/catalogai/doc-analyzer/internal/raster"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging builds the process logger. In stdio mode everything goes to
// stderr so the MCP protocol stream on stdout stays clean.
func setupLogging(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stderr
	if cfg.IsStdioMode() && !cfg.IsDebug() {
		out = io.Discard
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// runServerMode handles server mode execution with signal handling
func runServerMode(ctx context.Context, cancel context.CancelFunc, server *mcp.Server, logger *slog.Logger) {
	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Start server in a goroutine
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-signalCh:
		logger.Info("main.shutdown_signal", "signal", sig.String())
		cancel()

		// Wait for server to shutdown
		if err := <-serverErrCh; err != nil {
			logger.Error("main.shutdown_error", "error", err)
			os.Exit(1)
		}

	case err := <-serverErrCh:
		if err != nil {
			logger.Error("main.server_error", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("main.stopped")
}

// runStdioMode handles stdio mode execution
func runStdioMode(ctx context.Context, _ context.CancelFunc, server *mcp.Server, logger *slog.Logger) {
	// In stdio mode, the parent process controls our lifecycle
	// We should exit cleanly when stdin is closed or we get an error
	if err := server.Run(ctx); err != nil {
		logger.Error("main.server_error", "error", err)
		os.Exit(1)
	}
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	// Load configuration from flags first
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Set up logging based on mode
	logger := setupLogging(cfg)

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	if cfg.IsDebug() && cfg.IsServerMode() {
		logger.Debug("main.config", "config", cfg.String())
	}

	// Build the pipeline: provider, raster backends, cache, orchestrator
	prov, err := provider.New(cfg.Provider.ID, provider.Config{
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		Model:       cfg.Provider.Model,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
		Timeout:     cfg.ProviderTimeout(),
	}, logger)
	if err != nil {
		logger.Error("main.provider_init_failed", "error", err)
		os.Exit(1)
	}

	rasterSvc := raster.NewService(raster.DefaultBackends(cfg.Raster.GhostscriptPath, logger), logger)

	var store cache.Store = cache.Noop{}
	if cfg.Cache.TTLSecs > 0 {
		sqliteStore, cerr := cache.OpenSQLite(cfg.Cache.Path, cfg.CacheTTL(), logger)
		if cerr != nil {
			logger.Error("main.cache_open_failed", "error", cerr)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}

	schema, err := cfg.MetadataSchema()
	if err != nil {
		logger.Error("main.schema_load_failed", "error", err)
		os.Exit(1)
	}

	analyzer := analysis.NewService(prov, rasterSvc, store, analysis.Options{
		TextThreshold:  cfg.TextThreshold,
		Raster:         cfg.ConvertOptions(),
		MetadataSchema: schema,
	}, logger)

	// Create MCP server
	server, err := mcp.NewServer(cfg, analyzer, rasterSvc, prov, logger)
	if err != nil {
		logger.Error("main.server_init_failed", "error", err)
		os.Exit(1)
	}

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle different modes
	if cfg.IsServerMode() {
		runServerMode(ctx, cancel, server, logger)
	} else {
		runStdioMode(ctx, cancel, server, logger)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Doc Analyzer\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
