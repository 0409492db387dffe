// cmd/alert-service/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fms-alerts/internal/api"
	"fms-alerts/internal/bootstrap"
	"fms-alerts/internal/common/config"
	"fms-alerts/internal/common/logger"
	"fms-alerts/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewFromConfig(cfg.Logging)
	defer zapLog.Sync()

	zapLog.Info("Starting alert service...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, zapLog, bootstrap.Options{ServiceName: "alert-service", ConnRetries: 15})
	if err != nil {
		zapLog.Fatal("startup failed", zap.Error(err))
	}
	defer app.Close()

	pool := queue.NewPool(app.Queue, app.Delivery, app.PoolConfig(), app.Logger)
	server := api.NewServer(api.FromConfig(cfg), app.Pipeline, []api.Checker{
		api.CheckFunc{Label: "postgres", Fn: app.Postgres.Ping},
		api.CheckFunc{Label: "redis", Fn: app.Queue.Ping},
	}, app.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error {
		return app.Delivery.RunSweeper(gctx, config.GetDuration(cfg.Delivery.SweepInterval))
	})

	zapLog.Info("Alert service running",
		zap.String("addr", cfg.HTTP.Addr),
		zap.Int("workers", cfg.Delivery.Workers),
	)

	if err := g.Wait(); err != nil {
		zapLog.Error("Alert service stopped with error", zap.Error(err))
		return
	}
	zapLog.Info("Alert service stopped gracefully")
}
