package limits

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/schema-registry/v1/redis"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
)

// FXModule provides *Checker and the RateLimiter it uses.
var FXModule = fx.Module("limits",
	fx.Provide(
		NewRateLimiterWithDI,
		NewCheckerWithDI,
	),
)

// RateLimiterParams groups the dependencies of NewRateLimiterWithDI.
type RateLimiterParams struct {
	fx.In

	Config Config
	Redis  *redis.RedisClient `optional:"true"`
	Logger Logger
}

// NewRateLimiterWithDI returns a Redis-backed limiter when a Redis client is
// available and an in-process one otherwise.
func NewRateLimiterWithDI(params RateLimiterParams) RateLimiter {
	return NewRateLimiter(params.Config, params.Redis, params.Logger)
}

// NewRateLimiter picks the limiter implementation for cfg. It returns nil
// when the request rate is not limited.
func NewRateLimiter(cfg Config, client *redis.RedisClient, logger Logger) RateLimiter {
	if !enforced(cfg.MaxRequestsPerSecond) {
		return nil
	}
	perSecond := float64(cfg.MaxRequestsPerSecond)
	if client != nil {
		logger.Info("using redis request rate limiter", nil, map[string]interface{}{"maxRequestsPerSecond": cfg.MaxRequestsPerSecond})
		return NewRedisRateLimiter(client.Client(), client.Key("ratelimit:"), perSecond, cfg.burst())
	}
	return NewLocalRateLimiter(perSecond, cfg.burst())
}

// CheckerParams groups the dependencies of NewCheckerWithDI.
type CheckerParams struct {
	fx.In

	Config  Config
	Store   storage.Gateway
	Limiter RateLimiter `optional:"true"`
	Logger  Logger
}

// NewCheckerWithDI creates the checker from injected dependencies.
func NewCheckerWithDI(params CheckerParams) *Checker {
	return NewChecker(params.Config, params.Store, params.Limiter, params.Logger)
}
