// Package logger configures the global zerolog logger.
//
// Terminal outputs use the colored console writer; log files get one JSON
// object per line. Either default can be overridden with Config.Format.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Outputs with a special meaning. Any other output is a file path.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
	OutputNone   = "none"
)

// Formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config represents logger configuration.
type Config struct {
	Output string // stdout (default), stderr, none, or a file path
	Level  string // trace, debug, info (default), warn, error
	Format string // console or json; empty picks by output
}

func (c Config) terminal() bool {
	switch strings.ToLower(c.Output) {
	case "", OutputStdout, OutputStderr:
		return true
	}
	return false
}

func (c Config) format() (string, error) {
	switch strings.ToLower(c.Format) {
	case "":
		if c.terminal() {
			return FormatConsole, nil
		}
		return FormatJSON, nil
	case FormatConsole:
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", errors.Newf("unknown log format %q", c.Format)
	}
}

// Init initializes the global logger. Output "none" discards everything,
// which keeps full-screen terminal programs clean.
func Init(cfg Config) error {
	if strings.EqualFold(cfg.Output, OutputNone) {
		zerolog.SetGlobalLevel(zerolog.Disabled)
		zlog.Logger = zerolog.Nop()
		zerolog.DefaultContextLogger = &zlog.Logger
		return nil
	}

	format, err := cfg.format()
	if err != nil {
		return err
	}
	w, err := openOutput(cfg.Output)
	if err != nil {
		return err
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.TimeOnly
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = shortCaller

	logger := newLogger(w, format, level)
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger

	return nil
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", OutputStdout:
		return os.Stdout, nil
	case OutputStderr:
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log file %s", output)
	}
	return f, nil
}

// newLogger builds a logger for w. Caller information is attached at debug
// and trace levels only.
func newLogger(w io.Writer, format string, level zerolog.Level) zerolog.Logger {
	withCaller := level <= zerolog.DebugLevel

	if format == FormatConsole {
		cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
		if withCaller {
			cw.PartsOrder = []string{"time", "level", "message", "caller"}
			cw.FormatCaller = func(i interface{}) string {
				s, _ := i.(string)
				return "(" + s + ")"
			}
		}
		w = cw
	}

	ctx := zerolog.New(w).With().Timestamp()
	if withCaller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// shortCaller trims a caller path to its package directory and file,
// e.g. "sequencer/sequencer.go:120".
func shortCaller(_ uintptr, file string, line int) string {
	parts := strings.Split(file, string(filepath.Separator))
	if len(parts) > 1 {
		return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// parseLevel parses the log level string.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
