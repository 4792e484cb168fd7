package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metric identifies one of the two tracked daily series.
type Metric string

const (
	// MetricIndex is the KOSPI stock index closing value.
	MetricIndex Metric = "kospi"
	// MetricRate is the USD/KRW reference exchange rate.
	MetricRate Metric = "usdkrw"
)

// Valid reports whether m names a supported metric.
func (m Metric) Valid() bool {
	return m == MetricIndex || m == MetricRate
}

// SeriesPoint represents one persisted daily observation for a metric.
// At most one row exists per (metric, date); re-syncs overwrite in place.
type SeriesPoint struct {
	Metric    Metric
	Date      time.Time // calendar date at UTC midnight, no time component
	Value     decimal.Decimal
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
