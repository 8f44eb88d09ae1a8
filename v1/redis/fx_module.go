package redis

import (
	"context"

	"go.uber.org/fx"
)

// FXModule provides *RedisClient and checks connectivity on start.
var FXModule = fx.Module("redis",
	fx.Provide(
		NewClientWithDI,
	),
	fx.Invoke(RegisterRedisLifecycle),
)

// RedisParams groups the dependencies of NewClientWithDI.
type RedisParams struct {
	fx.In

	Config Config
	Logger Logger
}

// NewClientWithDI creates the client from injected dependencies.
func NewClientWithDI(params RedisParams) (*RedisClient, error) {
	return NewClient(params.Config, params.Logger)
}

// RedisLifecycleParams groups the dependencies of RegisterRedisLifecycle.
type RedisLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Client    *RedisClient
	Logger    Logger
}

// RegisterRedisLifecycle pings Redis on start and closes the client on stop.
func RegisterRedisLifecycle(params RedisLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := params.Client.Ping(ctx); err != nil {
				params.Logger.Error("redis is not reachable", err)
				return err
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return params.Client.Close()
		},
	})
}
