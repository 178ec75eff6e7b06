// Package main provides the remote control CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/meditimer/internal/api/connect"
	"github.com/osa030/meditimer/internal/app/display"
	"github.com/osa030/meditimer/internal/app/notification"
	"github.com/osa030/meditimer/internal/app/progress"
	"github.com/osa030/meditimer/internal/domain/timer"
	"github.com/osa030/meditimer/internal/tui"
)

var (
	app    = kingpin.New("meditimer-timerctl", "meditimer remote control")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token (or set MEDITIMER_CONTROL_TOKEN env)").Envar("MEDITIMER_CONTROL_TOKEN").String()

	// start command
	startCmd      = app.Command("start", "Start a session")
	startInterval = startCmd.Flag("interval", "Interval length in minutes").Int()
	startRepeat   = startCmd.Flag("repeat", "Number of intervals").Int()
	startBell     = startCmd.Flag("bell", "Bell sound").Enum("tiny", "small", "large", "none", "spoken")
	startLastBell = startCmd.Flag("last-bell", "Ending bell sound").Enum("tiny", "small", "large", "none", "spoken")
	startClick    = startCmd.Flag("click", "Click pattern (0-6)").String()
	startPrep     = startCmd.Flag("prep", "Preparation").Enum("none", "click", "melody", "gong")
	startSpeech   = startCmd.Flag("speech", "Announce elapsed time by speech").Enum("on", "off")

	// pause command
	pauseCmd = app.Command("pause", "Pause the session")

	// resume command
	resumeCmd = app.Command("resume", "Resume the session")

	// stop command
	stopCmd = app.Command("stop", "Stop the session")

	// status command
	statusCmd = app.Command("status", "Show session progress")

	// chime command
	chimeCmd   = app.Command("chime", "Play a single bell while no session runs")
	chimeSound = chimeCmd.Arg("sound", "Bell sound").Default("small").Enum("tiny", "small", "large")

	// watch command
	watchCmd = app.Command("watch", "Follow session progress")
	watchTUI = watchCmd.Flag("tui", "Show the timer face").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: control token is required (use --token or MEDITIMER_CONTROL_TOKEN env)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := apiconnect.NewClient(apiconnect.NewHTTPClient(ctx, *token), *server)

	var err error
	switch command {
	case startCmd.FullCommand():
		err = start(ctx, client)
	case pauseCmd.FullCommand():
		err = printResult(client.Pause(ctx))
	case resumeCmd.FullCommand():
		err = printResult(client.Resume(ctx))
	case stopCmd.FullCommand():
		err = printResult(client.Stop(ctx))
	case statusCmd.FullCommand():
		err = printResult(client.Snapshot(ctx))
	case chimeCmd.FullCommand():
		err = client.Chime(ctx, timer.BellSound(*chimeSound))
	case watchCmd.FullCommand():
		err = watch(ctx, client)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func start(ctx context.Context, client *apiconnect.Client) error {
	overrides := map[string]any{}
	if *startInterval > 0 {
		overrides["interval_minutes"] = *startInterval
	}
	if *startRepeat > 0 {
		overrides["repeat_count"] = *startRepeat
	}
	if *startBell != "" {
		overrides["bell_sound"] = *startBell
	}
	if *startLastBell != "" {
		overrides["last_bell_sound"] = *startLastBell
	}
	if *startClick != "" {
		n, err := strconv.Atoi(*startClick)
		if err != nil {
			return fmt.Errorf("invalid click pattern %q", *startClick)
		}
		overrides["click_pattern"] = n
	}
	if *startPrep != "" {
		overrides["preparation"] = *startPrep
	}
	if *startSpeech != "" {
		overrides["announce_via_speech"] = *startSpeech == "on"
	}
	return printResult(client.Start(ctx, overrides))
}

func printResult(snap progress.Snapshot, err error) error {
	if err != nil {
		return err
	}
	printSnapshot(snap)
	return nil
}

func printSnapshot(snap progress.Snapshot) {
	view := display.NewPresenter().Render(snap)

	fmt.Println("\n=== SESSION PROGRESS ===")
	if snap.SessionID != "" {
		fmt.Printf("Session ID: %s\n", snap.SessionID)
	}
	fmt.Printf("Phase: %s\n", tui.PhaseLabel(view.Phase, view.Paused))
	fmt.Printf("Repeat: %s\n", view.Repeat)
	fmt.Printf("Remaining: %s\n", view.Remaining)
	fmt.Printf("Elapsed: %s / %s\n", view.Elapsed, view.Total)
	fmt.Println()
}

func watch(ctx context.Context, client *apiconnect.Client) error {
	if !*watchTUI {
		presenter := display.NewPresenter()
		return client.Watch(ctx, func(n *notification.Notification) error {
			view := presenter.Render(n.Snapshot)
			fmt.Printf("#%d %-16s %-10s repeat=%s remaining=%s elapsed=%s/%s %s\n",
				n.SequenceNo, n.Type, tui.PhaseLabel(view.Phase, view.Paused), view.Repeat, view.Remaining, view.Elapsed, view.Total, n.Cue)
			return nil
		})
	}

	src := apiconnect.NewRemoteSource(client)
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := src.Run(watchCtx); err != nil {
			fmt.Fprintf(os.Stderr, "watch ended: %v\n", err)
		}
	}()

	call := func(fn func(context.Context) (progress.Snapshot, error)) func() error {
		return func() error {
			_, err := fn(ctx)
			return err
		}
	}
	return tui.Run(src, tui.Actions{
		Start:  func() error { _, err := client.Start(ctx, nil); return err },
		Pause:  call(client.Pause),
		Resume: call(client.Resume),
		Stop:   call(client.Stop),
		Chime:  func() error { return client.Chime(ctx, timer.BellSmall) },
	}, display.DefaultRefresh)
}
