package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"marketwatch/internal/series"
	"marketwatch/internal/storage"
)

// ExportOptions hold parameters for exporting the aligned pair.
type ExportOptions struct {
	Period    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export renders the aligned index/rate pair as CSV and/or PNG. Both series
// share one date axis by construction, which is what makes the dual chart
// renderable.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	engine := series.NewEngine(store, a.Logger)

	indexPoints, err := engine.GetAligned(ctx, a.exportQuery(storage.MetricIndex, opts))
	if err != nil {
		return err
	}
	ratePoints, err := engine.GetAligned(ctx, a.exportQuery(storage.MetricRate, opts))
	if err != nil {
		return err
	}

	if len(indexPoints) != len(ratePoints) {
		return fmt.Errorf("aligned series length mismatch: %d vs %d", len(indexPoints), len(ratePoints))
	}
	if len(indexPoints) == 0 {
		a.Logger.Info().Msg("no aligned points found for export window")
		return nil
	}

	indexPoints = downsamplePoints(indexPoints, opts.MaxPoints)
	ratePoints = downsamplePoints(ratePoints, opts.MaxPoints)
	a.Logger.Info().Int("points", len(indexPoints)).Msg("exporting aligned series")

	if opts.CSVPath != "" {
		if err := writePairCSV(opts.CSVPath, indexPoints, ratePoints); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if len(indexPoints) < 2 {
			a.Logger.Warn().Msg("fewer than 2 aligned points; skipping PNG chart")
			return nil
		}
		if err := writePairPNG(opts.PNGPath, indexPoints, ratePoints); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) exportQuery(metric storage.Metric, opts ExportOptions) series.Query {
	q := series.Query{Metric: metric, Period: opts.Period}
	if opts.From != nil && opts.To != nil {
		q.Start = opts.From.UTC()
		q.End = opts.To.UTC()
	}
	return q
}

func downsamplePoints(points []storage.SeriesPoint, max int) []storage.SeriesPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]storage.SeriesPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		result = append(result, points[idx])
	}
	return result
}

func writePairCSV(path string, indexPoints, ratePoints []storage.SeriesPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "kospi", "usdkrw"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for i := range indexPoints {
		record := []string{
			indexPoints[i].Date.Format(time.DateOnly),
			indexPoints[i].Value.String(),
			ratePoints[i].Value.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writePairPNG(path string, indexPoints, ratePoints []storage.SeriesPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(indexPoints))
	index := make([]float64, len(indexPoints))
	rate := make([]float64, len(ratePoints))

	for i := range indexPoints {
		x[i] = indexPoints[i].Date
		index[i] = indexPoints[i].Value.InexactFloat64()
		rate[i] = ratePoints[i].Value.InexactFloat64()
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "KOSPI",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "USD/KRW",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "KOSPI",
				XValues: x,
				YValues: index,
			},
			chart.TimeSeries{
				Name:    "USD/KRW",
				XValues: x,
				YValues: rate,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
