package commands

import (
	"errors"
	"fmt"

	"fleetassist-backend/internal/dispatch"
	"fleetassist-backend/internal/portal"
	"fleetassist-backend/internal/session"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var askDebug bool

func init() {
	askCmd.Flags().BoolVar(&askDebug, "debug", false, "Print the contracts list, decision and raw model outputs.")
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answers a question about the session's contracts.",
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
		dispatcher, err := a.dispatcher(cmd.Context())
		if err != nil {
			return err
		}
		if dispatcher == nil {
			return errors.New("no llm api key configured")
		}

		var reply dispatch.Reply
		err = a.store.With(cmd.Context(), id, func(_ session.Session, client *portal.Client) error {
			reply = dispatcher.Ask(cmd.Context(), a.contractsPortal(client), dispatch.Request{
				Question: args[0],
			})
			return nil
		})
		if err != nil {
			return err
		}

		if askDebug {
			t := newTable()
			t.AppendRows([]table.Row{
				{"Action", reply.Debug.Action},
				{"Url", reply.Debug.URL},
				{"Model output 1", reply.Debug.Raw1},
				{"Model output 2", reply.Debug.Raw2},
				{"Contracts", reply.Debug.Contracts},
			})
			t.Render()
		}

		if !reply.Success {
			if reply.RedirectedToLogin {
				return fmt.Errorf("%s, run login with a new magic link", reply.Error)
			}
			return errors.New(reply.Error)
		}
		fmt.Println(reply.Message)
		return nil
	},
}
