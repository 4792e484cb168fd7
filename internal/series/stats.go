package series

import (
	"github.com/shopspring/decimal"

	"marketwatch/internal/storage"
)

// Stats summarises an aligned series. All values are rounded to 2 decimal
// places.
type Stats struct {
	Min       decimal.Decimal
	Max       decimal.Decimal
	Avg       decimal.Decimal
	Change    decimal.Decimal
	ChangePct decimal.Decimal
}

// Compute derives summary statistics for an ascending series. The second
// return value is false when the series is empty and no statistics exist.
// Pure function of its input.
func Compute(points []storage.SeriesPoint) (Stats, bool) {
	if len(points) == 0 {
		return Stats{}, false
	}

	first := points[0].Value
	last := points[len(points)-1].Value

	min := first
	max := first
	sum := decimal.Zero
	for _, p := range points {
		if p.Value.LessThan(min) {
			min = p.Value
		}
		if p.Value.GreaterThan(max) {
			max = p.Value
		}
		sum = sum.Add(p.Value)
	}

	change := last.Sub(first)

	changePct := decimal.Zero
	if !first.IsZero() {
		changePct = change.Div(first).Mul(decimal.NewFromInt(100))
	}

	return Stats{
		Min:       min.Round(2),
		Max:       max.Round(2),
		Avg:       sum.Div(decimal.NewFromInt(int64(len(points)))).Round(2),
		Change:    change.Round(2),
		ChangePct: changePct.Round(2),
	}, true
}
