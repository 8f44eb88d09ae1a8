package config

import "go.uber.org/fx"

// Supply hands every section to the fx graph under its own type, so each
// package module finds the Config it asks for.
func (c *Config) Supply() fx.Option {
	return fx.Supply(
		c.Logger,
		c.Metrics.Config,
		c.Tracer,
		c.Registry,
		c.Rules,
		c.Limits,
		c.Postgres,
		c.Blobstore,
		c.Redis,
		c.Events,
	)
}
