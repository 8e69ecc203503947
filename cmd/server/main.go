package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skypro1111/wyoming-asr-service/internal/config"
	"github.com/skypro1111/wyoming-asr-service/internal/metrics"
	"github.com/skypro1111/wyoming-asr-service/internal/server"
	"github.com/skypro1111/wyoming-asr-service/internal/session"
	"github.com/skypro1111/wyoming-asr-service/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "wyoming-asr-service"
	serviceVersion    = "1.0.0"
)

// stringList collects repeated flag values
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listenURI := flag.String("uri", "", "Listen URI (tcp://host:port or unix:///path), overrides config")
	model := flag.String("model", "", "Recognition model name, overrides config")
	language := flag.String("language", "", "Recognition language, overrides config")
	profile := flag.String("profile", "", "Named settings profile to apply")
	maxSeconds := flag.Float64("max-seconds", -1, "Maximum utterance duration in seconds (0 = unlimited), overrides config")

	var engineOptions stringList
	flag.Var(&engineOptions, "engine-option", "Engine option as KEY=VALUE, repeatable")

	flag.Parse()

	// Load configuration. A missing file at the default path is fine; an
	// explicitly given path must exist.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Apply the profile first, then explicit flags win over it
	if *profile != "" {
		if err := cfg.ApplyProfile(*profile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to apply profile: %v\n", err)
			os.Exit(1)
		}
	}

	if *listenURI != "" {
		cfg.Server.ListenURI = *listenURI
	}
	if *model != "" {
		cfg.Session.Model = *model
	}
	if *language != "" {
		cfg.Session.Language = *language
	}
	if *maxSeconds >= 0 {
		cfg.Session.MaxSeconds = *maxSeconds
	}

	flagOptions, err := config.ParseOptionPairs(engineOptions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse engine options: %v\n", err)
		os.Exit(1)
	}
	if len(flagOptions) > 0 {
		if cfg.Session.Options == nil {
			cfg.Session.Options = make(map[string]config.OptionValue, len(flagOptions))
		}
		for key, value := range flagOptions {
			cfg.Session.Options[key] = value
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("listen_uri", cfg.Server.ListenURI),
		slog.Int("max_connections", cfg.Server.MaxConnections),
		slog.String("model", cfg.Session.Model),
		slog.String("language", cfg.Session.Language),
		slog.Float64("max_seconds", cfg.Session.MaxSeconds),
		slog.String("engine_endpoint", cfg.Engine.Endpoint),
		slog.Int("engine_pool_size", cfg.Engine.PoolSize),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize recognition engine client
	engine, err := transcription.NewHTTPEngine(transcription.Config{
		Endpoint:      cfg.Engine.Endpoint,
		APIKey:        cfg.Engine.APIKey,
		Timeout:       cfg.Engine.GetTimeoutDuration(),
		MaxRetries:    cfg.Engine.MaxRetries,
		MaxConcurrent: cfg.Engine.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create engine client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	adapter := transcription.NewAdapter(engine, cfg.Engine.PoolSize, logger)
	logger.Info("Transcription adapter initialized",
		slog.String("endpoint", cfg.Engine.Endpoint),
		slog.Int("pool_size", cfg.Engine.PoolSize),
	)

	// Warm the engine up so the first client does not pay startup costs.
	// Failure is not fatal: the engine may still be booting.
	warmupCtx, warmupCancel := context.WithTimeout(ctx, cfg.Engine.GetTimeoutDuration())
	if err := adapter.Warmup(warmupCtx, cfg.Session.Model, cfg.Session.Language, cfg.Session.Options); err != nil {
		logger.Warn("Engine warmup failed, continuing anyway", slog.String("error", err.Error()))
	}
	warmupCancel()

	sessionCfg := session.Config{
		Model:      cfg.Session.Model,
		Language:   cfg.Session.Language,
		MaxSeconds: cfg.Session.MaxSeconds,
		Options:    cfg.Session.Options,
	}

	// Initialize the protocol server
	asrServer := server.New(&cfg.Server, sessionCfg, adapter, logger, appMetrics)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, asrServer, engine, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start the protocol server
	if err := asrServer.Start(); err != nil {
		logger.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("listen_uri", cfg.Server.ListenURI),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop the protocol server (close listener, drain connections)
	if err := asrServer.Stop(); err != nil {
		logger.Error("Error stopping server", slog.String("error", err.Error()))
	}

	// Stop the adapter (wait for in-flight engine calls)
	adapter.Stop()

	logger.Info("Service stopped")
}

// loadConfig resolves the configuration file. The default path may be
// absent, in which case built-in defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if path == defaultConfigPath {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("config file %s does not exist", path)
	}

	return config.Load(path)
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
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
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
