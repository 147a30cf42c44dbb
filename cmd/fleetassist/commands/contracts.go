package commands

import (
	"fmt"

	"fleetassist-backend/internal/extract"
	"fleetassist-backend/internal/portal"
	"fleetassist-backend/internal/session"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	contractsMatch string
	contractsTop   int
)

func init() {
	contractsCmd.Flags().StringVarP(&contractsMatch, "match", "m", "", "Only show the contracts closest to this text.")
	contractsCmd.Flags().IntVarP(&contractsTop, "top", "n", 5, "How many contracts --match shows.")
	rootCmd.AddCommand(contractsCmd)
}

var contractsCmd = &cobra.Command{
	Use:   "contracts [--match <text>]",
	Short: "Lists the contracts visible to the session.",
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

		var summary extract.RecordSummary
		err = a.store.With(cmd.Context(), id, func(_ session.Session, client *portal.Client) error {
			res := a.contractsPortal(client).ListContracts(cmd.Context())
			if !res.Success {
				return res.Err()
			}
			if res.IsLoginPage {
				return portal.ErrSessionExpired
			}
			summary = extract.ParseContracts(res.Body)
			return nil
		})
		if err != nil {
			return err
		}

		if summary.Status != extract.StatusOK {
			fmt.Println(summary.String())
			return nil
		}

		records := summary.Records
		if contractsMatch != "" {
			records = summary.Closest(contractsMatch, contractsTop)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Contract", "Url"})
		for _, r := range records {
			t.AppendRow(table.Row{r.Text, r.URL})
		}
		t.AppendFooter(table.Row{"Total", fmt.Sprintf("%d of %d", len(records), len(summary.Records))})
		t.Render()
		return nil
	},
}
