// Package engine assembles a session manager from the application config.
package engine

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/meditimer/internal/app/asset"
	"github.com/osa030/meditimer/internal/app/player"
	"github.com/osa030/meditimer/internal/app/sequencer"
	"github.com/osa030/meditimer/internal/app/session"
	"github.com/osa030/meditimer/internal/infra/config"
	"github.com/osa030/meditimer/internal/infra/prefs"
)

// Engine owns a session manager and the resources behind it.
type Engine struct {
	Session *session.Manager
	Phrases *asset.Phrasebook

	closers []func() error
}

// New builds the engine described by cfg.
func New(cfg *config.Config) (*Engine, error) {
	phrases, err := asset.NewPhrasebook(cfg.Speech.Language)
	if err != nil {
		return nil, err
	}
	if phrases.Language() != cfg.Speech.Language {
		zlog.Warn().Msgf("speech language not available, using closest match: requested=%s using=%s", cfg.Speech.Language, phrases.Language())
	}

	e := &Engine{Phrases: phrases}

	store, err := e.newStore(cfg)
	if err != nil {
		return nil, err
	}

	seq := sequencer.New(sequencer.Config{
		Resolver: asset.NewResolver(cfg.Assets.Dir, cfg.Library()),
		Player:   NewPlayer(cfg, phrases.Language()),
		Phrases:  phrases,
	})
	e.Session = session.NewManager(seq, store, cfg.SessionDefaults())

	zlog.Info().Msgf("engine ready: player=%s preferences=%s language=%s", cfg.Player.Backend, cfg.Preferences.Source, phrases.Language())
	return e, nil
}

// NewPlayer creates the cue player selected by cfg.
func NewPlayer(cfg *config.Config, language string) player.Player {
	timed := player.TimedConfig{
		Tick:           cfg.Tick(),
		WordsPerMinute: cfg.Player.SpeechWordsPerMinute,
	}
	if cfg.Player.Backend == config.BackendExec {
		return player.NewExec(player.ExecConfig{
			AudioCommand:  cfg.Player.AudioCommand,
			SpeechCommand: cfg.Player.SpeechCommand,
			Language:      language,
			Timed:         timed,
		})
	}
	return player.NewTimed(timed)
}

// newStore creates the preference store selected by cfg. A nil store means
// sessions start from the configured defaults.
func (e *Engine) newStore(cfg *config.Config) (prefs.Store, error) {
	switch cfg.Preferences.Source {
	case config.PrefsFromFile:
		return prefs.FileStore{Path: cfg.Preferences.File}, nil
	case config.PrefsFromRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Preferences.Redis.Addr,
			Password: cfg.Preferences.Redis.Password,
			DB:       cfg.Preferences.Redis.DB,
		})
		e.closers = append(e.closers, client.Close)
		return prefs.NewRedisStore(client, cfg.Preferences.Redis.Key), nil
	case config.PrefsFromConfig, "":
		return nil, nil
	default:
		return nil, errors.Newf("unknown preference source %q", cfg.Preferences.Source)
	}
}

// Ping checks that stored preferences can be loaded and decoded.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.Session.LoadConfig(ctx)
	return err
}

// Close stops any session and releases resources.
func (e *Engine) Close() error {
	e.Session.Close()

	var errs error
	for _, c := range e.closers {
		errs = errors.CombineErrors(errs, c())
	}
	return errs
}
