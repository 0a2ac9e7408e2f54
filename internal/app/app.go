package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/store/postgres"
	"github.com/vovakirdan/roomchat/internal/store/redis"
	"github.com/vovakirdan/roomchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roomchat/internal/transport/http"
)

const storeOpenTimeout = 10 * time.Second

// App wires together store, core and transport layers.
type App struct {
	server          *transporthttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.MessageStore
	log             *zerolog.Logger

	// cancelSessions closes live websocket sessions; the http server does not
	// track hijacked connections.
	cancelSessions context.CancelFunc
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Store.Driver).Msg("message store initialized")

	hub := core.NewHub(st, core.Options{
		CacheSize:         cfg.Chat.CacheSize,
		MaxUsernameLength: cfg.Chat.MaxUsernameLength,
		MaxMessageLength:  cfg.Chat.MaxMessageLength,
		PersistQueueSize:  cfg.Chat.PersistQueueSize,
		PersistRetries:    cfg.Chat.PersistRetries,
		PersistTimeout:    cfg.Chat.PersistTimeout,
	}, logger)

	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	server := transporthttp.NewServer(sessionCtx, hub, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
		cancelSessions:  cancelSessions,
	}, nil
}

// openStore opens the message store selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.MessageStore, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
	defer cancel()

	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	case config.DriverSQLite:
		return sqlite.New(cfg.SQLitePath)
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.PostgresDSN)
	case config.DriverRedis:
		return redis.New(ctx, cfg.RedisURL, cfg.RedisRetention)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	var hubDone sync.WaitGroup
	hubDone.Add(1)
	go func() {
		defer hubDone.Done()
		a.hub.Run(hubCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting roomchat server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		runErr = a.server.Shutdown(shutdownCtx)
		if err := <-serverErr; runErr == nil {
			runErr = err
		}
	}

	a.cancelSessions()
	waitCtx, cancelWait := context.WithTimeout(context.Background(), a.shutdownTimeout)
	if err := a.server.WaitSessions(waitCtx); err != nil {
		a.log.Warn().Err(err).Msg("websocket sessions still open at shutdown")
	}
	cancelWait()

	// No session can send any more; flush queued writes before the store closes.
	stopHub()
	hubDone.Wait()

	a.cleanup()
	return runErr
}

// cleanup closes the message store.
func (a *App) cleanup() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
		return
	}
	a.log.Info().Msg("store closed")
}
