// Package app wires configuration into a ready-to-run pipeline and its adapters.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/burn-suitability-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/burn-suitability-etl/internal/adapter/filesystem"
	"github.com/couchcryptid/burn-suitability-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/burn-suitability-etl/internal/adapter/kafka"
	"github.com/couchcryptid/burn-suitability-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/burn-suitability-etl/internal/config"
	"github.com/couchcryptid/burn-suitability-etl/internal/observability"
	"github.com/couchcryptid/burn-suitability-etl/internal/pipeline"
)

// App holds the pipeline and the adapters that need closing.
type App struct {
	Pipeline *pipeline.Pipeline
	Store    *csvstore.Store

	writer *kafkaadapter.Writer
	ledger *sqlite.Ledger
	logger *slog.Logger
}

// Build loads the region registry and constructs the pipeline with every
// enabled adapter.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	reg, err := config.LoadRegistry(cfg.RegionsFile)
	if err != nil {
		return nil, err
	}

	a := &App{Store: csvstore.NewStore(cfg.OutputDir), logger: logger}
	opts := []pipeline.Option{
		pipeline.WithInterval(cfg.RunInterval),
		pipeline.WithRunOnStart(cfg.RunOnStart),
	}

	if cfg.KafkaEnabled {
		a.writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, pipeline.WithPublisher(a.writer))
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	if cfg.LedgerPath != "" {
		a.ledger, err = sqlite.Open(ctx, cfg.LedgerPath)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open run ledger: %w", err)
		}
		opts = append(opts, pipeline.WithRecorder(a.ledger))
		logger.Info("run ledger enabled", "path", cfg.LedgerPath)
	}

	sources := pipeline.Sources{Fire: cfg.Fire, Weather: cfg.Weather, Vegetation: cfg.Vegetation}
	a.Pipeline = pipeline.New(reg, sources, filesystem.NewLister(), a.Store, logger, metrics, opts...)
	logger.Info("pipeline configured", "regions", reg.Len(), "output_dir", cfg.OutputDir, "run_interval", cfg.RunInterval)
	return a, nil
}

// History returns the durable run ledger when enabled, otherwise the
// pipeline's in-memory history.
func (a *App) History() httpadapter.RunHistory {
	if a.ledger != nil {
		return a.ledger
	}
	return a.Pipeline
}

// Server builds the HTTP API over the pipeline and its output store.
func (a *App) Server(addr string) *httpadapter.Server {
	return httpadapter.NewServer(addr, httpadapter.Deps{
		Ready:     a.Pipeline,
		Refresher: a.Pipeline,
		Snapshots: a.Store,
		History:   a.History(),
	}, a.logger)
}

// Close releases the Kafka writer and the ledger.
func (a *App) Close() error {
	var errs []error
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
		}
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close run ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}
