package main

import (
	"context"
	"errors"
	"time"

	"bally/internal/backend"
	"bally/internal/cli"
	applog "bally/internal/log"
	"bally/internal/worker"
)

func main() {
	cfg, logger := cli.MustLoad(applog.ComponentWorker)
	logger.Info("Starting bally-worker")

	if !cfg.AMQPEnabled() {
		cli.Fail(logger, "Worker needs record events", errors.New("AMQP_URL is not set"))
	}
	if !backend.BackendType(cfg.DataBackend).Shared() {
		logger.Warn("Backend is private to this process; the worker will not see API writes",
			"backend", cfg.DataBackend)
	}

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		cli.Fail(logger, "Failed to initialize services", err, "backend", cfg.DataBackend)
	}
	events := app.Backend.Events
	if events == nil {
		_ = app.Close()
		cli.Fail(logger, "Failed to connect to AMQP", errors.New("broker unreachable"))
	}

	exporter, err := cli.NewSheetsExporter(context.Background(), cfg)
	if err != nil {
		_ = app.Close()
		cli.Fail(logger, "Failed to initialize Google Sheets export", err)
	}
	logger.Info("Google Sheets export initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	exportWorker := worker.NewExportWorker(app.Reports, exporter)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := app.Close(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	// Catch up on events missed while the worker was down.
	logger.Info("Performing startup export")
	if err := exportWorker.ExportCurrentMonth(ctx); err != nil {
		logger.Error("Startup export failed", "error", err)
	}

	go exportWorker.Run(ctx, cfg.ExportInterval)

	go func() {
		if err := events.Consume(ctx, exportWorker.HandleRecordEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	logger.Info("Worker running", "export_interval", cfg.ExportInterval, "queue", cfg.AMQPQueue)
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
