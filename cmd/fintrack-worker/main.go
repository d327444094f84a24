package main

import (
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/sheets/memory"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting fintrack-worker")

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	// The worker has nothing to do without a broker.
	res, err := cli.OpenBackend(ctx, logger, cfg, true)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	var (
		activity sheets.ActivityWriter
		progress sheets.ProgressWriter
	)
	if cfg.MirrorEnabled() {
		client, err := gsheet.NewFromConfig(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			ActivitySheet:      cfg.GoogleActivitySheet,
			ProgressSheet:      cfg.GoogleProgressSheet,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		if err := client.EnsureHeaders(ctx, time.Now().Year()); err != nil {
			logger.Warn("Could not write activity sheet header", log.FieldError, err)
		}
		activity, progress = client, client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		store := memory.New()
		activity, progress = store, store
		logger.Info("Google Sheets disabled - mirroring to memory only")
	}

	mirror := worker.NewActivityMirror(res.Events, res.Store.Queries(), activity, progress, cfg.MirrorInterval, logger)
	if err := mirror.Run(ctx); err != nil {
		logger.Error("Activity mirror stopped", log.FieldError, err, "handled", mirror.Handled())
		os.Exit(1)
	}
	logger.Info("fintrack-worker stopped", "handled", mirror.Handled())
}
