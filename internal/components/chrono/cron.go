package chrono

import (
	"fmt"

	"fleetassist-backend/internal/components/telemetry"

	"github.com/robfig/cron/v3"
)

// CronAPI schedules callbacks on cron specs.
type CronAPI interface {
	Cron(spec string, callback func()) error
	Stop()
}

// StandardCron runs callbacks on a robfig/cron scheduler.
type StandardCron struct {
	cron *cron.Cron
}

// NewStandardCron starts a cron scheduler that evaluates specs in the timezone of time.
func NewStandardCron(time API, tel telemetry.API) StandardCron {
	cronner := cron.New(
		cron.WithLogger(cronLogger{tel: telemetry.NewScopedAPI("cron", tel)}),
		cron.WithLocation(time.Location()),
	)
	cronner.Start()

	return StandardCron{cron: cronner}
}

func (s StandardCron) Cron(spec string, callback func()) error {
	_, err := s.cron.AddFunc(spec, callback)
	return err
}

func (s StandardCron) Stop() {
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprintf("%v: %v", keysAndValues[i], keysAndValues[i+1]))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, l.formatParams(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken(
		"scheduler",
		append([]any{fmt.Errorf("%s: %w", msg, err)}, l.formatParams(keysAndValues)...)...,
	)
}
