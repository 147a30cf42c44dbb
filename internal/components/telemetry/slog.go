package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InitSlog installs the default slog logger, debug records are only emitted when verbose is set.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// SlogAPI implements API using the log/slog package, counts are additionally recorded
// as an otel gauge so they reach the metrics exporter when one is configured.
type SlogAPI struct{}

func (SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		*out = append(
			*out,
			fmt.Sprintf("params.%d", i),
			p,
		)
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	slog.Error("broken component", remainingPairs...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	slog.Warn("warning", remainingPairs...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	remainingPairs := []any{}
	s.formatParams(&remainingPairs, params)
	slog.Debug(message, remainingPairs...)
}

var (
	countGaugeOnce sync.Once
	countGauge     metric.Int64Gauge
)

func (s SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "n", count)

	countGaugeOnce.Do(func() {
		gauge, err := otel.Meter("fleetassist").Int64Gauge("fleetassist.count")
		if err != nil {
			slog.Warn("create count gauge", "err", err)
			return
		}
		countGauge = gauge
	})
	if countGauge != nil {
		countGauge.Record(context.Background(), count, metric.WithAttributes(attribute.String("id", id)))
	}
}
