// Package telemetry sets up Sentry error reporting for the server.
package telemetry

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

const serviceName = "kanilla"

type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init initializes Sentry and returns a function that flushes pending
// events. Without a DSN, or if Sentry cannot start, it returns a no-op.
func Init(cfg Config) func() {
	logger := slog.Default().With("component", "telemetry")
	if cfg.DSN == "" {
		return func() {}
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
		TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
			if ctx.Span.Name == "GET /health" {
				return 0.0
			}
			return cfg.TracesSampleRate
		}),
	})
	if err != nil {
		logger.Warn("sentry failed to initialize, continuing without it", "err", err)
		return func() {}
	}

	logger.Info("sentry initialized", "environment", cfg.Environment, "sample_rate", cfg.TracesSampleRate)
	return func() {
		sentry.Flush(5 * time.Second)
	}
}
