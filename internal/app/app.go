package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/tweetchat-server/internal/config"
	"github.com/vovakirdan/tweetchat-server/internal/core"
	"github.com/vovakirdan/tweetchat-server/internal/presence"
	"github.com/vovakirdan/tweetchat-server/internal/store/badgerlog"
	"github.com/vovakirdan/tweetchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/tweetchat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	log             *zerolog.Logger

	// closers run in reverse order on shutdown.
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{shutdownTimeout: cfg.ShutdownTimeout, log: logger}

	// The user directory always lives in SQLite.
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.onClose("sqlite", st.Close)
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	events, err := a.openEventLog(cfg, st, logger)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	tracker, err := a.openPresence(ctx, cfg, st)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	registry := core.NewRegistry()
	dispatcher := core.NewDispatcher(events, tracker, registry, logger, core.Options{
		HistoryLimit: cfg.History.Limit,
		WriteTimeout: cfg.EventLog.WriteTimeout,
	})

	a.server = transporthttp.NewServer(transporthttp.Deps{
		Dispatcher: dispatcher,
		Registry:   registry,
		Events:     events,
		Presence:   tracker,
	}, cfg, logger)

	return a, nil
}

func (a *App) openEventLog(cfg *config.Config, st *sqlite.SQLiteStore, logger *zerolog.Logger) (core.EventLog, error) {
	switch cfg.EventLog.Backend {
	case config.EventLogBadger:
		l, err := badgerlog.Open(badgerlog.Options{Dir: cfg.EventLog.BadgerDir, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("init badger event log: %w", err)
		}
		a.onClose("badger", l.Close)
		logger.Info().Str("dir", cfg.EventLog.BadgerDir).Msg("badger event log opened")
		return l, nil
	default:
		return st, nil
	}
}

func (a *App) openPresence(ctx context.Context, cfg *config.Config, st *sqlite.SQLiteStore) (core.PresenceTracker, error) {
	pc := cfg.Presence
	switch pc.Backend {
	case config.PresenceMemory:
		return presence.NewMemory(), nil
	case config.PresenceRedis:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, err := presence.DialRedis(dialCtx, pc.RedisAddr, pc.RedisPassword, pc.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("init redis presence: %w", err)
		}
		a.onClose("redis", client.Close)
		a.log.Info().Str("addr", pc.RedisAddr).Msg("redis presence connected")
		return presence.NewRedis(redis.UniversalClient(client), pc.RedisKeyPrefix), nil
	default:
		return presence.NewDirectory(st), nil
	}
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting http server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes databases and other resources.
func (a *App) cleanup() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.log.Warn().Err(err).Str("resource", c.name).Msg("failed to close")
		} else {
			a.log.Info().Str("resource", c.name).Msg("closed")
		}
	}
	a.closers = nil
}
