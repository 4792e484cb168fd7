// Package syncer keeps the series store current against the two upstream
// APIs: a recurring latest-point sync and a one-time historical seed.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marketwatch/internal/config"
	"marketwatch/internal/fetcher"
	"marketwatch/internal/storage"
)

// Outcome tags the per-metric result of a sync run. A resolved ISO date
// string means the metric's point was fetched and written for that date.
type Outcome string

const (
	// OutcomeSkipped is the initial state; a metric not yet processed.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeNoData means the fetch succeeded but yielded nothing usable.
	OutcomeNoData Outcome = "no-data"
	// OutcomeMissingAPIKey means the credential was absent and the fetch skipped.
	OutcomeMissingAPIKey Outcome = "missing-api-key"
	// OutcomeAlreadyPresent means the target date was stored and the fetch skipped.
	OutcomeAlreadyPresent Outcome = "already-present"
)

// Result reports one outcome per metric for a latest-point sync.
type Result struct {
	Index Outcome `json:"kospi"`
	Rate  Outcome `json:"usdkrw"`
}

// SeedResult reports rows written per metric during a historical seed.
type SeedResult struct {
	Index int `json:"kospi"`
	Rate  int `json:"usdkrw"`
}

// Syncer orchestrates fetching and transactional persistence. It does not
// serialise concurrent invocations itself; callers hold the advisory lock.
type Syncer struct {
	store  storage.TxRunner
	index  fetcher.IndexFetcher
	rate   fetcher.RateFetcher
	logger zerolog.Logger

	indexKeySet bool
	rateKeySet  bool
	seedDelay   time.Duration

	now func() time.Time
}

// New constructs a Syncer. Credential presence is decided once here, from
// explicit configuration, before any network call can happen.
func New(store storage.TxRunner, index fetcher.IndexFetcher, rate fetcher.RateFetcher, apiCfg config.APIConfig, syncCfg config.SyncConfig, logger zerolog.Logger) *Syncer {
	return &Syncer{
		store:       store,
		index:       index,
		rate:        rate,
		logger:      logger.With().Str("component", "syncer").Logger(),
		indexKeySet: apiCfg.IndexKey != "",
		rateKeySet:  apiCfg.RateKey != "",
		seedDelay:   syncCfg.SeedDelay,
		now:         time.Now,
	}
}

// SyncLatest fetches the most recent point for each metric and upserts it
// inside a single transaction. Credential absence and empty upstream data are
// reported outcomes, not errors; only unexpected store failures roll back.
// Safe to invoke repeatedly.
func (s *Syncer) SyncLatest(ctx context.Context) (Result, error) {
	result := Result{Index: OutcomeSkipped, Rate: OutcomeSkipped}

	err := s.store.WithTx(ctx, func(tx storage.SeriesWriter) error {
		if err := s.syncIndexLatest(ctx, tx, &result); err != nil {
			return err
		}
		return s.syncRateLatest(ctx, tx, &result)
	})
	if err != nil {
		return result, err
	}

	s.logger.Info().
		Str("kospi", string(result.Index)).
		Str("usdkrw", string(result.Rate)).
		Msg("sync completed")
	return result, nil
}

func (s *Syncer) syncIndexLatest(ctx context.Context, tx storage.SeriesWriter, result *Result) error {
	if !s.indexKeySet {
		result.Index = OutcomeMissingAPIKey
		return nil
	}

	point, ok := s.index.FetchLatest(ctx)
	if !ok {
		result.Index = OutcomeNoData
		return nil
	}

	if err := tx.UpsertPoint(ctx, toSeriesPoint(storage.MetricIndex, point)); err != nil {
		return fmt.Errorf("upsert index point: %w", err)
	}
	result.Index = Outcome(point.Date.Format(time.DateOnly))
	return nil
}

func (s *Syncer) syncRateLatest(ctx context.Context, tx storage.SeriesWriter, result *Result) error {
	if !s.rateKeySet {
		result.Rate = OutcomeMissingAPIKey
		return nil
	}

	// The upstream has no weekend rates; resolve to the applicable business
	// date and skip the remote call entirely once that day's rate is stored.
	target := fetcher.BusinessDate(s.today())

	exists, err := tx.Exists(ctx, storage.MetricRate, target)
	if err != nil {
		return fmt.Errorf("check rate presence: %w", err)
	}
	if exists {
		result.Rate = OutcomeAlreadyPresent
		return nil
	}

	point, ok := s.rate.FetchDate(ctx, target)
	if !ok {
		result.Rate = OutcomeNoData
		return nil
	}

	if err := tx.UpsertPoint(ctx, toSeriesPoint(storage.MetricRate, point)); err != nil {
		return fmt.Errorf("upsert rate point: %w", err)
	}
	result.Rate = Outcome(point.Date.Format(time.DateOnly))
	return nil
}

// Seed bootstraps the store with historical data for [from, to]. The index
// is fetched as one ranged call; the rate upstream has no ranged endpoint,
// so each weekday is fetched individually, newest first. All successful
// writes commit together even when individual date-fetches fail, and a
// missing credential for one metric never blocks the other.
func (s *Syncer) Seed(ctx context.Context, from, to time.Time) (SeedResult, error) {
	from = dateOnly(from.UTC())
	to = dateOnly(to.UTC())
	if to.Before(from) {
		return SeedResult{}, fmt.Errorf("seed range is empty: from %s after to %s",
			from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	var result SeedResult
	err := s.store.WithTx(ctx, func(tx storage.SeriesWriter) error {
		if err := s.seedIndex(ctx, tx, from, to, &result); err != nil {
			return err
		}
		return s.seedRate(ctx, tx, from, to, &result)
	})
	if err != nil {
		return result, err
	}

	s.logger.Info().
		Int("kospi", result.Index).
		Int("usdkrw", result.Rate).
		Msg("seed completed")
	return result, nil
}

func (s *Syncer) seedIndex(ctx context.Context, tx storage.SeriesWriter, from, to time.Time, result *SeedResult) error {
	if !s.indexKeySet {
		s.logger.Warn().Msg("index api key not set; skipping index seed")
		return nil
	}

	points := s.index.FetchRange(ctx, from, to)
	for _, p := range points {
		if err := tx.UpsertPoint(ctx, toSeriesPoint(storage.MetricIndex, p)); err != nil {
			return fmt.Errorf("upsert index point %s: %w", p.Date.Format(time.DateOnly), err)
		}
		result.Index++
	}
	return nil
}

func (s *Syncer) seedRate(ctx context.Context, tx storage.SeriesWriter, from, to time.Time, result *SeedResult) error {
	if !s.rateKeySet {
		s.logger.Warn().Msg("rate api key not set; skipping rate seed")
		return nil
	}

	for day := to; !day.Before(from); day = day.AddDate(0, 0, -1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}

		point, ok := s.rate.FetchDate(ctx, day)
		if ok {
			if err := tx.UpsertPoint(ctx, toSeriesPoint(storage.MetricRate, point)); err != nil {
				return fmt.Errorf("upsert rate point %s: %w", day.Format(time.DateOnly), err)
			}
			result.Rate++
		}

		// Pace the per-day loop so a long seed does not trip upstream throttling.
		if s.seedDelay > 0 {
			timer := time.NewTimer(s.seedDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

func (s *Syncer) today() time.Time {
	return dateOnly(s.now().UTC())
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func toSeriesPoint(metric storage.Metric, p fetcher.Point) storage.SeriesPoint {
	return storage.SeriesPoint{
		Metric: metric,
		Date:   p.Date,
		Value:  p.Value,
		Source: p.Source,
	}
}
