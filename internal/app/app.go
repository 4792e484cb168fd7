package app

import (
	"context"

	"github.com/rs/zerolog"

	"marketwatch/internal/config"
	"marketwatch/internal/fetcher"
	"marketwatch/internal/storage"
	"marketwatch/internal/syncer"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetchers() (fetcher.IndexFetcher, fetcher.RateFetcher) {
	index := fetcher.NewIndex(fetcher.IndexOptions{
		BaseURL:    a.Config.API.IndexBaseURL,
		ServiceKey: a.Config.API.IndexKey,
		Timeout:    a.Config.API.RequestTimeout,
		UserAgent:  a.Config.API.UserAgent,
	}, a.Logger)

	rate := fetcher.NewRate(fetcher.RateOptions{
		BaseURL:   a.Config.API.RateBaseURL,
		AuthKey:   a.Config.API.RateKey,
		Timeout:   a.Config.API.RequestTimeout,
		UserAgent: a.Config.API.UserAgent,
	}, a.Logger)

	return index, rate
}

func (a *App) newSyncer(store *storage.Store) *syncer.Syncer {
	index, rate := a.newFetchers()
	return syncer.New(store, index, rate, a.Config.API, a.Config.Sync, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// withLock runs fn while holding the sync advisory lock. A lock already held
// elsewhere is a clean skip, not an error: overlapping scheduled runs are
// expected and the next run will pick up the work.
func (a *App) withLock(ctx context.Context, store *storage.Store, fn func() error) error {
	key := a.Config.Sync.AdvisoryLockKey
	if key == 0 {
		return fn()
	}

	unlock, acquired, err := store.TryAdvisoryLock(ctx, key)
	if err != nil {
		return err
	}
	if !acquired {
		a.Logger.Warn().Int64("key", key).Msg("another sync holds the advisory lock; exiting")
		return nil
	}
	defer unlock()

	return fn()
}
