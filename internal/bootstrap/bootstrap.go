// internal/bootstrap/bootstrap.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fms-alerts/internal/common/config"
	"fms-alerts/internal/common/database"
	"fms-alerts/internal/common/infobip"
	"fms-alerts/internal/common/logger"
	"fms-alerts/internal/common/observability"
	"fms-alerts/internal/notification/template"
	"fms-alerts/internal/pipeline"
	"fms-alerts/internal/queue"
	"fms-alerts/internal/store"
	sendwhatsappalert "fms-alerts/internal/workers/delivery/send-whatsapp-alert"
)

// App holds every wired component of the alert service.
type App struct {
	Config   *config.Config
	Postgres *database.PostgresClient
	Redis    *database.RedisClient
	Store    *store.Store
	Queue    *queue.Queue
	Resolver *template.Resolver
	Provider *infobip.Client
	Delivery *sendwhatsappalert.Handler
	Pipeline *pipeline.Service
	Obs      *observability.Observability
	Logger   logger.Logger
}

// RetryWithBackoff attempts to execute a function with exponential backoff
func RetryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// Options tune how hard New tries to reach the backing stores.
type Options struct {
	ServiceName  string
	ConnRetries  int
	InitialDelay time.Duration
}

// New connects to Postgres and Redis, runs migrations when enabled and wires
// the resolver, provider client, delivery worker and ingestion pipeline.
func New(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, opts Options) (*App, error) {
	if opts.ConnRetries <= 0 {
		opts.ConnRetries = 10
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 2 * time.Second
	}
	if opts.ServiceName == "" {
		opts.ServiceName = cfg.App.Name
	}

	log := logger.NewZapAdapter(zapLog)
	app := &App{Config: cfg, Logger: log}

	err := RetryWithBackoff(func() error {
		var err error
		app.Postgres, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return app.Postgres.Ping(ctx)
	}, opts.ConnRetries, opts.InitialDelay, zapLog, "PostgreSQL connection")
	if err != nil {
		return nil, err
	}
	zapLog.Info("PostgreSQL connected successfully")

	err = RetryWithBackoff(func() error {
		var err error
		app.Redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return app.Redis.Ping(ctx)
	}, opts.ConnRetries, opts.InitialDelay, zapLog, "Redis connection")
	if err != nil {
		app.Close()
		return nil, err
	}
	zapLog.Info("Redis connected successfully")

	app.Store = store.New(app.Postgres.DB)
	if cfg.Database.Postgres.AutoMigrate {
		if err := app.Store.Migrate(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		zapLog.Info("database migrations applied")
	}

	app.Obs = observability.New(opts.ServiceName, observability.TracingConfig{
		Endpoint:    cfg.Observability.TracingEndpoint,
		SampleRatio: cfg.Observability.TraceSampleRatio,
	})
	deliveryCfg := sendwhatsappalert.LoadConfig(cfg.Delivery)
	app.Queue = queue.New(app.Redis.Client, cfg.Delivery.QueueKey).WithLease(deliveryCfg.Lease)
	app.Resolver = template.NewResolver(template.FromAlertsConfig(cfg.Alerts))
	app.Provider = infobip.New(infobip.FromConfig(cfg.Infobip, cfg.Alerts.DefaultLanguage), nil)
	app.Delivery = sendwhatsappalert.NewHandler(
		deliveryCfg,
		app.Store,
		app.Provider,
		app.Queue,
		app.Obs,
		log,
	)
	app.Pipeline = pipeline.NewService(
		pipeline.Config{
			PlainTextFallback: cfg.Alerts.PlainTextFallback,
			SpeedLimit:        cfg.Alerts.SpeedLimit,
		},
		app.Resolver,
		app.Store,
		app.Queue,
		app.Delivery,
		log,
	)

	return app, nil
}

// PoolConfig derives the worker pool settings from the delivery config.
func (a *App) PoolConfig() queue.PoolConfig {
	d := a.Config.Delivery
	return queue.PoolConfig{
		Workers:      d.Workers,
		PollInterval: config.GetDuration(d.PollInterval),
		RetryDelay:   config.GetDuration(d.Backoff),
	}
}

// Close releases connections and flushes telemetry.
func (a *App) Close() {
	if a.Obs != nil {
		a.Obs.Shutdown()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Postgres != nil {
		_ = a.Postgres.Close()
	}
}
