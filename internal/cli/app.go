package cli

import (
	"context"
	"errors"
	"fmt"

	"bally/internal/backend"
	"bally/internal/cache"
	"bally/internal/config"
	"bally/internal/export/sheets"
	applog "bally/internal/log"
	"bally/internal/records"
	"bally/internal/services"
)

// App holds the wired services of one process.
type App struct {
	Config  *config.Config
	Backend *backend.BackendResult
	Records *services.RecordService
	Reports *services.ReportService

	caches *cache.Manager
}

// NewApp creates the configured store and builds the record and report
// services on top of it. Writes invalidate the report cache and, when AMQP
// is configured, publish record events.
func NewApp(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	policy, err := services.ParseDeletePolicy(cfg.SupplierDeletePolicy)
	if err != nil {
		res.Cleanup()
		return nil, err
	}

	reportCache := cache.NewLRUCache[*services.VATReport](cfg.ReportCacheSize, cfg.ReportCacheTTL)
	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	caches.Register(reportCache)
	caches.StartCleanup(cfg.ReportCacheTTL)

	reports := services.NewReportService(res.Store, services.WithReportCache(reportCache))

	opts := []services.RecordOption{
		services.WithDeletePolicy(policy),
		services.WithInvalidator(reports),
	}
	if res.Events != nil {
		opts = append(opts, services.WithPublisher(res.Events))
	}

	logger.Info("Services initialized",
		"backend", bcfg.Type,
		"delete_policy", policy,
		"events", res.Events != nil,
		"report_cache_size", cfg.ReportCacheSize,
		"report_cache_ttl", cfg.ReportCacheTTL)

	return &App{
		Config:  cfg,
		Backend: res,
		Records: services.NewRecordService(res.Store, opts...),
		Reports: reports,
		caches:  caches,
	}, nil
}

// Store is the record store behind the services.
func (a *App) Store() records.Store {
	return a.Backend.Store
}

// Close stops background work and releases the backend.
func (a *App) Close() error {
	a.caches.Stop()
	a.caches.Wait()
	return a.Backend.Cleanup()
}

// NewSheetsExporter connects the Google Sheets export configured in cfg.
func NewSheetsExporter(ctx context.Context, cfg *config.Config) (*sheets.Exporter, error) {
	if !cfg.SheetsEnabled() {
		return nil, errors.New("google sheets export not configured: set GOOGLE_SPREADSHEET_ID")
	}
	exp, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("google sheets: %w", err)
	}
	return exp, nil
}
