// Package series answers date-aligned queries over the two stored metrics.
//
// The index and rate upstreams do not publish on the same calendar days
// (market holidays differ from bank holidays), so a naive single-metric range
// query would give the two charted series different date axes. The engine
// instead restricts every answer to the dates where both metrics have data,
// widening the search window once when the requested window covers fewer
// than two common dates. Note the widen fallback keeps only the 2 most
// recent common dates, even if older ones fell inside the caller's original
// window; this keeps a sparse store chartable at the cost of the exact
// window being honoured.
package series

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"marketwatch/internal/storage"
)

const (
	// widenLookbackDays bounds how far before the requested start the
	// fallback search may reach. Applied at most once, never recursively.
	widenLookbackDays = 30
	// minChartPoints is the smallest series a line chart can render.
	minChartPoints = 2

	defaultPeriodDays = 30
)

// periodDays maps a named period to its fixed lookback from today.
var periodDays = map[string]int{
	"1d": 2,
	"1w": 7,
	"1m": 30,
	"3m": 90,
	"1y": 365,
}

// SupportedPeriod reports whether the period identifier is known.
func SupportedPeriod(period string) bool {
	_, ok := periodDays[period]
	return ok
}

// Query describes a window request for one metric. When Start and End are
// both set they take precedence over Period.
type Query struct {
	Metric storage.Metric
	Period string
	Start  time.Time
	End    time.Time
}

// Engine computes gap-aligned series from the store.
type Engine struct {
	store  storage.SeriesReader
	logger zerolog.Logger
	now    func() time.Time
}

// NewEngine constructs an alignment engine.
func NewEngine(store storage.SeriesReader, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger.With().Str("component", "series_engine").Logger(),
		now:    time.Now,
	}
}

// GetAligned returns the (date, value) pairs for the queried metric,
// restricted to dates where both metrics have data, ascending. A result of
// 0 or 1 points on a nearly-empty store is a valid outcome, not an error.
func (e *Engine) GetAligned(ctx context.Context, q Query) ([]storage.SeriesPoint, error) {
	start, end := e.resolveWindow(q)

	common, err := e.commonDates(ctx, start, end)
	if err != nil {
		return nil, err
	}

	if len(common) < minChartPoints {
		widened, err := e.commonDates(ctx, start.AddDate(0, 0, -widenLookbackDays), end)
		if err != nil {
			return nil, err
		}
		sort.Slice(widened, func(i, j int) bool { return widened[i].After(widened[j]) })
		if len(widened) > minChartPoints {
			widened = widened[:minChartPoints]
		}
		common = widened
		e.logger.Debug().
			Str("start", start.Format(time.DateOnly)).
			Str("end", end.Format(time.DateOnly)).
			Int("dates", len(common)).
			Msg("widened alignment window")
	}

	if len(common) == 0 {
		return []storage.SeriesPoint{}, nil
	}

	sort.Slice(common, func(i, j int) bool { return common[i].Before(common[j]) })
	return e.store.ListPointsOn(ctx, q.Metric, common)
}

func (e *Engine) resolveWindow(q Query) (start, end time.Time) {
	if !q.Start.IsZero() && !q.End.IsZero() {
		return dateOnly(q.Start.UTC()), dateOnly(q.End.UTC())
	}

	days, ok := periodDays[q.Period]
	if !ok {
		days = defaultPeriodDays
	}

	end = dateOnly(e.now().UTC())
	start = end.AddDate(0, 0, -(days - 1))
	return start, end
}

// commonDates intersects the stored date sets of both metrics within
// [start, end] inclusive.
func (e *Engine) commonDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	indexDates, err := e.store.ListDatesBetween(ctx, storage.MetricIndex, start, end)
	if err != nil {
		return nil, err
	}
	rateDates, err := e.store.ListDatesBetween(ctx, storage.MetricRate, start, end)
	if err != nil {
		return nil, err
	}

	seen := make(map[time.Time]struct{}, len(indexDates))
	for _, d := range indexDates {
		seen[dateOnly(d.UTC())] = struct{}{}
	}

	common := make([]time.Time, 0, len(rateDates))
	for _, d := range rateDates {
		if _, ok := seen[dateOnly(d.UTC())]; ok {
			common = append(common, dateOnly(d.UTC()))
		}
	}
	return common, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
