package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bally/internal/cli"
	apphttp "bally/internal/http"
	applog "bally/internal/log"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg, logger := cli.MustLoad(applog.ComponentApp)

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		cli.Fail(logger, "Failed to initialize services", err, "backend", cfg.DataBackend)
	}

	opts := apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	}
	if p, ok := app.Store().(pinger); ok {
		opts.Ready = p.Ping
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, app.Records, app.Reports, logger, opts)
	if err != nil {
		_ = app.Close()
		cli.Fail(logger, "Failed to create HTTP server", err)
	}
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := app.Close(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting bally server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"delete_policy", app.Records.Policy())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = app.Close()
		cli.Fail(logger, "Server error", err, "port", cfg.Port)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
