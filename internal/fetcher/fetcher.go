package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Point is a normalised raw observation produced by a fetcher.
type Point struct {
	Date   time.Time
	Value  decimal.Decimal
	Source string
}

// IndexFetcher retrieves stock index closing values from the upstream API.
// Transport and parse failures degrade to an empty result; they are logged
// at the fetcher boundary and never surface to the caller.
type IndexFetcher interface {
	// FetchRange returns zero or more points within [from, to].
	FetchRange(ctx context.Context, from, to time.Time) []Point
	// FetchLatest returns the single most recent point the upstream knows.
	FetchLatest(ctx context.Context) (Point, bool)
}

// RateFetcher retrieves the official exchange rate for a single target date.
// The upstream publishes no weekend rates; callers resolve weekends to the
// preceding business date first (see BusinessDate).
type RateFetcher interface {
	FetchDate(ctx context.Context, date time.Time) (Point, bool)
}

// BusinessDate maps Saturday and Sunday to the preceding Friday. Weekday
// dates pass through unchanged.
func BusinessDate(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, -2)
	}
	return d
}

const upstreamDateFormat = "20060102"

// parseUpstreamNumber normalises upstream numeric formats, which may carry
// thousands separators, before decimal conversion.
func parseUpstreamNumber(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	return decimal.NewFromString(cleaned)
}
