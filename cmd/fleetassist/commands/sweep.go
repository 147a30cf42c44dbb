package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Removes sessions that have not been used for session.stale_after.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.store.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d stale sessions\n", removed)
		return nil
	},
}
