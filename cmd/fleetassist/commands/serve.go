package commands

import (
	"time"

	"fleetassist-backend/internal/api"
	"fleetassist-backend/internal/components/chrono"
	"fleetassist-backend/internal/components/telemetry"
	"fleetassist-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the chat front-end api.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		telemetry.InstrumentPerfStats(ctx, a.tel, time.Minute)

		dispatcher, err := a.dispatcher(ctx)
		if err != nil {
			return err
		}
		if dispatcher == nil {
			a.tel.ReportWarning("serve.llm", "no api key configured, chat is disabled", a.cfg.LLM.Provider)
		}

		cron := chrono.NewStandardCron(a.time, a.tel)
		defer cron.Stop()
		if a.cfg.Session.SweepCron != "" {
			err = a.store.ScheduleSweep(cron, a.cfg.Session.SweepCron)
			if err != nil {
				return err
			}
		}

		server := api.NewServer(a.store, dispatcher, a.apiOptions(), a.tel)
		return serviceutil.StartHttpServer(ctx, a.cfg.Server.Listen, server.Router())
	},
}
