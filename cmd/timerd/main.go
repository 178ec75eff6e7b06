// Package main provides the timer server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/meditimer/internal/api/connect"
	"github.com/osa030/meditimer/internal/api/httpapi"
	"github.com/osa030/meditimer/internal/engine"
	"github.com/osa030/meditimer/internal/infra/config"
	"github.com/osa030/meditimer/internal/infra/logger"
)

var (
	app        = kingpin.New("meditimer-timerd", "meditimer session server")
	configPath = app.Flag("config", "Path to config file").Default("config/meditimer.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	logFormat  = app.Flag("log-format", "Log format: console or json (default: by output)").Envar("MEDITIMER_LOG_FORMAT").Enum("console", "json")

	// list-assets command
	listAssetsCmd = app.Command("list-assets", "List the sound asset library and exit")
)

func init() {
	// start command (default)
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: logger.OutputStdout,
		Level:  "info",
		Format: *logFormat,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == listAssetsCmd.FullCommand() {
		printAssets(cfg)
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	if err := cfg.RequireControlToken(); err != nil {
		return err
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create engine")
	}

	ctx := context.Background()
	if err := eng.Ping(ctx); err != nil {
		zlog.Warn().Msgf("Stored preferences not readable, sessions will fail to start until fixed: %v", err)
	}

	svc := apiconnect.NewTimerService(eng.Session, cfg.RefreshInterval())
	path, handler := apiconnect.NewTimerServiceHandler(
		svc,
		connect.WithInterceptors(apiconnect.NewAuthInterceptor(cfg.Control.Token)),
	)
	router := httpapi.NewRouter(eng.Session, cfg.RefreshInterval(), httpapi.Mount{Prefix: path, Handler: handler})

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Give the server a moment to start listening before running hooks
	select {
	case err := <-serverErrCh:
		eng.Close()
		return errors.Wrap(err, "server error")
	case <-time.After(100 * time.Millisecond):
	}
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
		if err := eng.Session.Stop(); err != nil {
			zlog.Error().Msgf("Failed to stop session: %v", err)
		}
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the engine first to end active watch streams
	if err := eng.Close(); err != nil {
		zlog.Error().Msgf("Failed to close engine: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")
	return runErr
}

// printAssets prints the sound asset library.
func printAssets(cfg *config.Config) {
	lib := cfg.Library()
	fmt.Println("Sound Assets:")
	for _, ref := range lib.Refs() {
		fmt.Printf("  %-20s %s\n", ref, lib[ref])
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
