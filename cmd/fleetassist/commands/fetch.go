package commands

import (
	"fmt"

	"fleetassist-backend/internal/portal"
	"fleetassist-backend/internal/session"

	"github.com/spf13/cobra"
)

var fetchRaw bool

func init() {
	fetchCmd.Flags().BoolVar(&fetchRaw, "raw", false, "Print the html instead of the extracted text.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetches a portal page with the session and prints its extracted text.",
	Args:  cobra.ExactArgs(1),
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

		return a.store.With(cmd.Context(), id, func(_ session.Session, client *portal.Client) error {
			res := client.Fetch(cmd.Context(), args[0])
			if !res.Success {
				return res.Err()
			}
			if res.IsLoginPage {
				return fmt.Errorf("%w: landed on %s", portal.ErrSessionExpired, res.FinalURL)
			}
			if fetchRaw {
				fmt.Println(res.Body)
				return nil
			}
			fmt.Println(a.extractor().Content(res.Body))
			return nil
		})
	},
}
