package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"marketwatch/internal/app"
)

var (
	exportPeriod    string
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the aligned index/rate pair as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Period:    exportPeriod,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		if exportFrom != "" {
			from, err := time.ParseInLocation(time.DateOnly, exportFrom, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if exportTo != "" {
			to, err := time.ParseInLocation(time.DateOnly, exportTo, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPeriod, "period", "1m", "Named period (1d, 1w, 1m, 3m, 1y)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start date (YYYY-MM-DD, inclusive; overrides --period with --to)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End date (YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
