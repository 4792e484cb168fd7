package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"marketwatch/internal/app"
)

var (
	seedFrom string
	seedTo   string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Backfill historical points for both metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedFrom == "" {
			return fmt.Errorf("--from must be provided")
		}

		from, err := time.ParseInLocation(time.DateOnly, seedFrom, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to := time.Now().UTC()
		if seedTo != "" {
			to, err = time.ParseInLocation(time.DateOnly, seedTo, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
		}

		if to.Before(from) {
			return fmt.Errorf("--from must not be after --to")
		}

		opts := app.SeedOptions{
			From: from,
			To:   to,
		}

		return getApp().Seed(cmd.Context(), opts)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFrom, "from", "", "Start date (YYYY-MM-DD, inclusive)")
	seedCmd.Flags().StringVar(&seedTo, "to", "", "End date (YYYY-MM-DD, inclusive; defaults to today)")
}
