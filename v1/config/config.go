// Package config loads the registry configuration from one YAML document.
//
// Values of the form ${NAME} are replaced from the environment before the
// document is parsed, and a .env file can seed the environment first.
// Sections that are absent keep the values of Default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aleph-Alpha/schema-registry/v1/blobstore"
	"github.com/Aleph-Alpha/schema-registry/v1/events"
	"github.com/Aleph-Alpha/schema-registry/v1/limits"
	"github.com/Aleph-Alpha/schema-registry/v1/logger"
	"github.com/Aleph-Alpha/schema-registry/v1/metrics"
	"github.com/Aleph-Alpha/schema-registry/v1/postgres"
	"github.com/Aleph-Alpha/schema-registry/v1/redis"
	"github.com/Aleph-Alpha/schema-registry/v1/registry"
	"github.com/Aleph-Alpha/schema-registry/v1/rules"
	"github.com/Aleph-Alpha/schema-registry/v1/tracer"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

const serviceName = "schema-registry"

// Storage types.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the whole registry configuration.
type Config struct {
	Logger    logger.Config    `yaml:"logger"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Tracer    tracer.Config    `yaml:"tracer"`
	Registry  registry.Config  `yaml:"registry"`
	Rules     rules.Config     `yaml:"rules"`
	Limits    limits.Config    `yaml:"limits"`
	Storage   StorageConfig    `yaml:"storage"`
	Postgres  postgres.Config  `yaml:"postgres"`
	Blobstore blobstore.Config `yaml:"blobstore"`
	Redis     redis.Config     `yaml:"redis"`
	Events    events.Config    `yaml:"events"`
}

// MetricsConfig switches the Prometheus endpoint on and configures it.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	metrics.Config `yaml:",inline"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Type is "memory" or "postgres".
	Type string `yaml:"type"`
}

// Default returns a configuration that runs entirely in process.
func Default() *Config {
	return &Config{
		Logger: logger.Config{
			Level:       "info",
			ServiceName: serviceName,
		},
		Metrics: MetricsConfig{
			Config: metrics.Config{
				Address:     metrics.DefaultMetricsAddress,
				ServiceName: serviceName,
			},
		},
		Tracer: tracer.Config{
			ServiceName: serviceName,
			AppEnv:      "development",
		},
		Registry: registry.Config{
			DefaultArtifactType: types.Avro,
		},
		Limits:  limits.DefaultConfig(),
		Storage: StorageConfig{Type: StorageMemory},
		Postgres: postgres.Config{
			Connection: postgres.Connection{
				Host:    "localhost",
				Port:    "5432",
				DbName:  "registry",
				SSLMode: "disable",
			},
		},
		Events: events.Config{
			Topic:        events.DefaultTopic,
			MaxAttempts:  events.DefaultMaxAttempts,
			WriteTimeout: events.DefaultWriteTimeout,
			RequiredAcks: events.DefaultRequiredAcks,
			Transport:    events.TransportKafka,
			RabbitMQ: events.RabbitConfig{
				Port:         5672,
				Exchange:     events.DefaultExchange,
				ExchangeType: events.DefaultExchangeType,
			},
		},
	}
}

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped; variables already set are not overridden.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the file at path on top of Default. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document on top of Default. Unknown keys are errors.
func Parse(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Type {
	case StorageMemory:
		if c.Blobstore.Enabled {
			errs = append(errs, errors.New("blobstore requires postgres storage"))
		}
	case StoragePostgres:
		if c.Postgres.Connection.Host == "" {
			errs = append(errs, errors.New("postgres.connection.host is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}
	if c.Blobstore.Enabled && c.Blobstore.Endpoint == "" {
		errs = append(errs, errors.New("blobstore.endpoint is required when the blob store is enabled"))
	}
	if c.Events.Enabled {
		switch c.Events.Transport {
		case "", events.TransportKafka:
			if len(c.Events.Brokers) == 0 {
				errs = append(errs, errors.New("events.brokers is required for the kafka transport"))
			}
		case events.TransportRabbitMQ:
			if c.Events.RabbitMQ.Host == "" {
				errs = append(errs, errors.New("events.rabbitmq.host is required for the rabbitmq transport"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown events.transport %q", c.Events.Transport))
		}
	}
	if c.Registry.DefaultArtifactType == "" {
		errs = append(errs, errors.New("registry.defaultArtifactType must not be empty"))
	}
	return errors.Join(errs...)
}
