package main

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Aleph-Alpha/schema-registry/v1/blobstore"
	"github.com/Aleph-Alpha/schema-registry/v1/config"
	"github.com/Aleph-Alpha/schema-registry/v1/events"
	"github.com/Aleph-Alpha/schema-registry/v1/limits"
	"github.com/Aleph-Alpha/schema-registry/v1/logger"
	"github.com/Aleph-Alpha/schema-registry/v1/metrics"
	"github.com/Aleph-Alpha/schema-registry/v1/postgres"
	"github.com/Aleph-Alpha/schema-registry/v1/redis"
	"github.com/Aleph-Alpha/schema-registry/v1/registry"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/storage/sqlstore"
	"github.com/Aleph-Alpha/schema-registry/v1/tracer"
)

// env is what a command runs against.
type env struct {
	Registry *registry.Registry
	Store    storage.Gateway
}

// appOptions assembles the fx graph for cfg. Optional infrastructure is only
// included when its section enables it.
func appOptions(cfg *config.Config) fx.Option {
	opts := []fx.Option{
		cfg.Supply(),
		logger.FXModule,
		loggerInterfaces(),
		fx.WithLogger(func(l *logger.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Zap}
		}),
		tracer.FXModule,
		events.FXModule,
		limits.FXModule,
		registry.FXModule,
	}

	switch cfg.Storage.Type {
	case config.StoragePostgres:
		opts = append(opts, postgres.FXModule, sqlstore.FXModule)
		if cfg.Blobstore.Enabled {
			opts = append(opts, blobstore.FXModule)
		}
	default:
		opts = append(opts, fx.Provide(func() storage.Gateway { return storage.NewMemoryStore() }))
	}
	if cfg.Redis.Enabled {
		opts = append(opts, redis.FXModule)
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, metrics.FXModule)
	}
	return fx.Options(opts...)
}

// loggerInterfaces exposes the one *logger.Logger under every package's
// Logger interface.
func loggerInterfaces() fx.Option {
	return fx.Provide(
		func(l *logger.Logger) registry.Logger { return l },
		func(l *logger.Logger) limits.Logger { return l },
		func(l *logger.Logger) events.Logger { return l },
		func(l *logger.Logger) tracer.Logger { return l },
		func(l *logger.Logger) metrics.Logger { return l },
		func(l *logger.Logger) redis.Logger { return l },
		func(l *logger.Logger) postgres.Logger { return l },
		func(l *logger.Logger) sqlstore.Logger { return l },
		func(l *logger.Logger) blobstore.Logger { return l },
	)
}

// withApp starts the application, runs fn and stops it again.
func withApp(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, e env) error) (err error) {
	var e env
	app := fx.New(
		appOptions(cfg),
		fx.Populate(&e.Registry, &e.Store),
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}
	defer func() {
		if stopErr := app.Stop(context.Background()); stopErr != nil && err == nil {
			err = fmt.Errorf("failed to stop application: %w", stopErr)
		}
	}()
	return fn(ctx, e)
}
