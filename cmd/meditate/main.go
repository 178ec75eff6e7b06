// Package main provides the local timer entry point: the session engine with
// the terminal timer face in one process.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/meditimer/internal/domain/timer"
	"github.com/osa030/meditimer/internal/engine"
	"github.com/osa030/meditimer/internal/infra/config"
	"github.com/osa030/meditimer/internal/infra/logger"
	"github.com/osa030/meditimer/internal/tui"
)

var (
	app        = kingpin.New("meditimer", "meditation interval timer")
	configPath = app.Flag("config", "Path to config file (default: built-in defaults)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: no logging)").String()
	autostart  = app.Flag("start", "Start a session immediately").Bool()
	interval   = app.Flag("interval", "Interval length in minutes").Int()
	repeat     = app.Flag("repeat", "Number of intervals").Int()
	bell       = app.Flag("bell", "Bell sound").Enum("tiny", "small", "large", "none", "spoken")
	prep       = app.Flag("prep", "Preparation").Enum("none", "click", "melody", "gong")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// The timer face owns the terminal, so logs go to a file or nowhere.
	loggerConfig := logger.Config{Output: logger.OutputNone, Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid settings: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags overrides the session defaults with command-line flags.
func applyFlags(cfg *config.Config) {
	if *interval > 0 {
		cfg.Session.IntervalMinutes = *interval
	}
	if *repeat > 0 {
		cfg.Session.RepeatCount = *repeat
	}
	if *bell != "" {
		cfg.Session.BellSound = *bell
	}
	if *prep != "" {
		cfg.Session.Preparation = *prep
	}
}

func run(cfg *config.Config) error {
	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			zlog.Error().Msgf("Failed to close engine: %v", err)
		}
	}()

	ctx := context.Background()
	mgr := eng.Session
	if *autostart {
		if err := mgr.Start(ctx); err != nil {
			return err
		}
	}

	return tui.Run(mgr, tui.Actions{
		Start:  func() error { return mgr.Start(ctx) },
		Pause:  mgr.Pause,
		Resume: mgr.Resume,
		Stop:   mgr.Stop,
		Chime:  func() error { return mgr.Chime(ctx, timer.BellSmall) },
	}, cfg.RefreshInterval())
}
