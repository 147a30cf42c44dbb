package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resetCmd)
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Deletes the session and its cookie jar.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.sessionID()
		if err != nil {
			return err
		}
		err = a.store.Reset(cmd.Context(), id)
		if err != nil {
			return err
		}
		if sessionArg == "" {
			err = a.forgetSession()
			if err != nil {
				return err
			}
		}

		fmt.Println("Session reset successfully")
		return nil
	},
}
