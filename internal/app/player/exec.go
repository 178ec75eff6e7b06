package player

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/meditimer/internal/app/asset"
)

// Command template placeholders.
const (
	PlaceholderFile     = "{file}"
	PlaceholderText     = "{text}"
	PlaceholderLanguage = "{lang}"
)

// ExecConfig holds exec player configuration.
type ExecConfig struct {
	AudioCommand  string // e.g. "paplay {file}"
	SpeechCommand string // e.g. "espeak-ng -v {lang} {text}"
	Language      string // Substituted for {lang}
	Timed         TimedConfig
}

// Exec plays sound files and speech through external commands.
// Silence units are played by an embedded timed player.
type Exec struct {
	mu sync.Mutex

	config  ExecConfig
	silence *Timed
	current *execPlayback
	closed  bool
}

type execPlayback struct {
	unit     asset.Unit
	cmd      *exec.Cmd
	done     chan struct{} // nil when delegated
	progress progress
	delegate bool // Played by the embedded timed player
}

// NewExec creates a new exec player.
func NewExec(config ExecConfig) *Exec {
	return &Exec{
		config:  config,
		silence: NewTimed(config.Timed),
	}
}

// Play starts unit, superseding any active unit.
func (e *Exec) Play(ctx context.Context, unit asset.Unit) (<-chan struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, errors.Wrap(ErrPlaybackUnavailable, "player closed")
	}

	e.stopLocked()

	if unit.IsSilence() {
		done, err := e.silence.Play(ctx, unit)
		if err != nil {
			return nil, err
		}
		e.current = &execPlayback{unit: unit, delegate: true}
		return done, nil
	}

	args, err := e.commandFor(unit)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(ErrPlaybackUnavailable, "failed to start %s: %v", args[0], err)
	}

	pb := &execPlayback{
		unit:     unit,
		cmd:      cmd,
		done:     make(chan struct{}),
		progress: newProgress(e.config.Timed.Clock.now()),
	}
	e.current = pb

	go e.wait(pb)

	zlog.Debug().Msgf("exec player: play: ref=%s pid=%d", unit.Ref, cmd.Process.Pid)
	return pb.done, nil
}

// Pause suspends the active process.
func (e *Exec) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pb := e.current
	if pb == nil {
		return ErrNotPlaying
	}
	if pb.delegate {
		return e.silence.Pause()
	}
	if pb.progress.paused() {
		return ErrNotPlaying
	}
	if err := suspendProcess(pb.cmd.Process); err != nil {
		return errors.Wrap(err, "failed to pause playback")
	}
	pb.progress.pause(e.config.Timed.Clock.now())
	return nil
}

// Resume continues a suspended process.
func (e *Exec) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pb := e.current
	if pb == nil {
		return ErrNotPlaying
	}
	if pb.delegate {
		return e.silence.Resume()
	}
	if !pb.progress.paused() {
		return ErrNotPaused
	}
	if err := continueProcess(pb.cmd.Process); err != nil {
		return errors.Wrap(err, "failed to resume playback")
	}
	pb.progress.resume(e.config.Timed.Clock.now())
	return nil
}

// Stop kills the active process without closing its completion channel.
func (e *Exec) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
}

// Position returns the elapsed time of the active unit.
func (e *Exec) Position() (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pb := e.current
	if pb == nil {
		return 0, ErrNotPlaying
	}
	if pb.delegate {
		return e.silence.Position()
	}
	return pb.progress.elapsed(e.config.Timed.Clock.now()), nil
}

// Close stops playback and rejects further units.
func (e *Exec) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	e.closed = true
	return e.silence.Close()
}

func (e *Exec) stopLocked() {
	pb := e.current
	if pb == nil {
		return
	}
	e.current = nil

	if pb.delegate {
		e.silence.Stop()
		return
	}
	if pb.cmd.Process != nil {
		if err := pb.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			zlog.Warn().Err(err).Msgf("exec player: kill failed: ref=%s", pb.unit.Ref)
		}
	}
}

func (e *Exec) wait(pb *execPlayback) {
	err := pb.cmd.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Superseded or stopped
	if e.current != pb {
		return
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("exec player: command exited with error: ref=%s", pb.unit.Ref)
	}
	e.current = nil
	close(pb.done)
}

// commandFor builds the argument list for unit. Placeholders are replaced per
// argument so that file names and phrases are never split.
func (e *Exec) commandFor(unit asset.Unit) ([]string, error) {
	template := e.config.AudioCommand
	if unit.Speech {
		template = e.config.SpeechCommand
	} else if _, err := os.Stat(unit.Source); err != nil {
		return nil, errors.Wrapf(ErrPlaybackUnavailable, "asset file %s: %v", unit.Source, err)
	}

	fields := strings.Fields(template)
	if len(fields) == 0 {
		return nil, errors.Wrapf(ErrPlaybackUnavailable, "no command configured for ref=%s", unit.Ref)
	}

	args := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case PlaceholderFile:
			args = append(args, unit.Source)
		case PlaceholderText:
			args = append(args, strings.TrimSpace(unit.Source))
		default:
			f = strings.ReplaceAll(f, PlaceholderLanguage, e.config.Language)
			args = append(args, f)
		}
	}
	return args, nil
}
