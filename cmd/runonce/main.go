// Command runonce executes a single pipeline run and exits non-zero if any
// stage fails.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/burn-suitability-etl/internal/app"
	"github.com/couchcryptid/burn-suitability-etl/internal/config"
	"github.com/couchcryptid/burn-suitability-etl/internal/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("adapter close error", "error", err)
		}
	}()

	report, err := a.Pipeline.RunOnce(ctx)
	if err != nil {
		logger.Error("run failed", "run_id", report.RunID, "error", err)
		return 1
	}
	for _, r := range report.Regions {
		logger.Info("region scored", "region", r.ID, "score", r.Score, "risk_level", r.RiskLevel)
	}
	logger.Info("run succeeded", "run_id", report.RunID, "regions", len(report.Regions), "warnings", len(report.Warnings))
	return 0
}
