package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <magic link>",
	Short: "Exchanges a magic link for a portal session and remembers it for the other commands.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		created, result, err := a.store.Login(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		err = a.rememberSession(created.ID)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendRows([]table.Row{
			{"Session", created.ID},
			{"Message", result.Message()},
			{"Final url", created.FinalURL},
			{"Http code", created.HTTPCode},
			{"Livewire", fmt.Sprintf("%v (success: %v)", created.WasLivewire, created.LivewireSuccess)},
			{"Auth cookies", created.HasAuthCookies},
			{"States", result.Trace},
		})
		t.Render()
		return nil
	},
}
