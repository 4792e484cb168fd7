package series

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketwatch/internal/storage"
)

func pointsFromValues(values ...string) []storage.SeriesPoint {
	out := make([]storage.SeriesPoint, 0, len(values))
	for i, v := range values {
		out = append(out, storage.SeriesPoint{
			Metric: storage.MetricIndex,
			Date:   time.Date(2025, 6, 1+i, 0, 0, 0, 0, time.UTC),
			Value:  decimal.RequireFromString(v),
		})
	}
	return out
}

func TestComputeEmptySeries(t *testing.T) {
	if _, ok := Compute(nil); ok {
		t.Fatal("expected no statistics for an empty series")
	}
	if _, ok := Compute([]storage.SeriesPoint{}); ok {
		t.Fatal("expected no statistics for an empty slice")
	}
}

func TestComputeSinglePoint(t *testing.T) {
	stats, ok := Compute(pointsFromValues("2650.32"))
	if !ok {
		t.Fatal("expected statistics for a single-point series")
	}
	if !stats.Change.IsZero() {
		t.Errorf("change = %s, want 0", stats.Change)
	}
	if !stats.ChangePct.IsZero() {
		t.Errorf("changePct = %s, want 0", stats.ChangePct)
	}
	if stats.Min.String() != "2650.32" || stats.Max.String() != "2650.32" || stats.Avg.String() != "2650.32" {
		t.Errorf("min/max/avg = %s/%s/%s, want all 2650.32", stats.Min, stats.Max, stats.Avg)
	}
}

func TestComputeBasicChange(t *testing.T) {
	stats, ok := Compute(pointsFromValues("100", "110"))
	if !ok {
		t.Fatal("expected statistics")
	}
	if stats.Change.String() != "10" {
		t.Errorf("change = %s, want 10", stats.Change)
	}
	if stats.ChangePct.String() != "10" {
		t.Errorf("changePct = %s, want 10", stats.ChangePct)
	}
	if stats.Min.String() != "100" || stats.Max.String() != "110" || stats.Avg.String() != "105" {
		t.Errorf("min/max/avg = %s/%s/%s, want 100/110/105", stats.Min, stats.Max, stats.Avg)
	}
}

func TestComputeZeroFirstValue(t *testing.T) {
	stats, ok := Compute(pointsFromValues("0", "50"))
	if !ok {
		t.Fatal("expected statistics")
	}
	if stats.Change.String() != "50" {
		t.Errorf("change = %s, want 50", stats.Change)
	}
	if !stats.ChangePct.IsZero() {
		t.Errorf("changePct = %s, want 0 when first value is zero", stats.ChangePct)
	}
}

func TestComputeRoundsToTwoPlaces(t *testing.T) {
	stats, ok := Compute(pointsFromValues("100", "101", "103"))
	if !ok {
		t.Fatal("expected statistics")
	}
	// (100+101+103)/3 = 101.333...
	if stats.Avg.String() != "101.33" {
		t.Errorf("avg = %s, want 101.33", stats.Avg)
	}

	stats, _ = Compute(pointsFromValues("3", "4"))
	// 1/3*100 = 33.333...
	if stats.ChangePct.String() != "33.33" {
		t.Errorf("changePct = %s, want 33.33", stats.ChangePct)
	}
}

func TestComputeNegativeChange(t *testing.T) {
	stats, ok := Compute(pointsFromValues("200", "150"))
	if !ok {
		t.Fatal("expected statistics")
	}
	if stats.Change.String() != "-50" {
		t.Errorf("change = %s, want -50", stats.Change)
	}
	if stats.ChangePct.String() != "-25" {
		t.Errorf("changePct = %s, want -25", stats.ChangePct)
	}
}
