// Package redis connects the registry to Redis, which replicas share to
// enforce a fleet-wide request rate limit (see limits.RedisRateLimiter).
//
//	client, err := redis.NewClient(redis.Config{Host: "redis", Port: 6379}, log)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Under fx, include FXModule and provide a redis.Config and a redis.Logger.
package redis
