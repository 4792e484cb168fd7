package cli

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and store the latest point for both metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sync(cmd.Context())
	},
}
