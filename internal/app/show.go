package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// Show prints the most recent stored points.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show points")
	}
	if closeStore != nil {
		defer closeStore()
	}

	points, err := store.ListRecentPoints(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Fprintln(os.Stdout, "no points found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tMetric\tValue\tSource\tUpdated (UTC)")

	for _, point := range points {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			point.Date.Format(time.DateOnly),
			point.Metric,
			point.Value.StringFixed(4),
			point.Source,
			point.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	return nil
}
