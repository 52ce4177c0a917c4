// Command recwatch consumes served-recommendation events from NATS and
// exposes aggregate counters on a local /metrics endpoint. It is the
// sink for the events cmd/api publishes.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/leomillan/movierec/pkg/metrics"
	"github.com/leomillan/movierec/pkg/natsutil"
)

// ServedEvent mirrors the payload cmd/api publishes on movierec.recs.served.
type ServedEvent struct {
	Mode         string    `json:"mode"`
	EntityID     int64     `json:"entity_id"`
	Count        int       `json:"count"`
	FallbackUsed bool      `json:"fallback_used,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	ServedAt     time.Time `json:"served_at"`
}

func main() {
	var (
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL")
		subject     = flag.String("subject", "movierec.recs.served", "subject to consume")
		metricsPort = flag.Int("metrics-port", 9091, "metrics listen port")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	nc, err := nats.Connect(*natsURL, nats.Name("movierec-recwatch"))
	if err != nil {
		logger.Error("nats connect failed", "err", err)
		os.Exit(1)
	}
	defer nc.Close()

	served := func(mode string) *metrics.Counter {
		return metrics.DefaultCounter(
			metrics.WithLabels("recwatch_events_total", "mode", mode),
			"Served-recommendation events consumed")
	}
	fallbacks := metrics.DefaultCounter("recwatch_fallback_events_total",
		"Events served from the popularity fallback")
	recsServed := metrics.DefaultCounter("recwatch_recommendations_total",
		"Individual recommendations across all events")

	sub, err := natsutil.Subscribe(nc, *subject, func(_ context.Context, ev ServedEvent) {
		served(ev.Mode).Inc()
		recsServed.Add(int64(ev.Count))
		if ev.FallbackUsed {
			fallbacks.Inc()
		}
		logger.Info("event",
			"mode", ev.Mode,
			"entity_id", ev.EntityID,
			"count", ev.Count,
			"fallback", ev.FallbackUsed,
			"request_id", ev.RequestID,
		)
	})
	if err != nil {
		logger.Error("subscribe failed", "subject", *subject, "err", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	metrics.Default.ServeAsync(*metricsPort)

	logger.Info("recwatch running", "subject", *subject, "metrics_port", *metricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")
}
