package app

import (
	"context"
	"errors"
	"time"
)

// Sync runs one latest-point sync guarded by the postgres advisory lock.
// Intended for cron invocation; exits cleanly when another run holds the lock.
func (a *App) Sync(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot sync")
	}
	if closeStore != nil {
		defer closeStore()
	}

	return a.withLock(ctx, store, func() error {
		result, err := a.newSyncer(store).SyncLatest(ctx)
		if err != nil {
			return err
		}
		a.Logger.Info().
			Str("kospi", string(result.Index)).
			Str("usdkrw", string(result.Rate)).
			Msg("sync finished")
		return nil
	})
}

// SeedOptions configure the historical bootstrap.
type SeedOptions struct {
	From time.Time
	To   time.Time
}

// Seed performs the one-time historical backfill for both metrics.
func (a *App) Seed(ctx context.Context, opts SeedOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot seed")
	}
	if closeStore != nil {
		defer closeStore()
	}

	return a.withLock(ctx, store, func() error {
		result, err := a.newSyncer(store).Seed(ctx, opts.From, opts.To)
		if err != nil {
			return err
		}
		a.Logger.Info().
			Int("kospi_rows", result.Index).
			Int("usdkrw_rows", result.Rate).
			Msg("seed finished")
		return nil
	})
}
