package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/Aleph-Alpha/schema-registry/v1/limits"
	"github.com/Aleph-Alpha/schema-registry/v1/logger"
	"github.com/Aleph-Alpha/schema-registry/v1/registry"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StorageMemory, cfg.Storage.Type)
	assert.Equal(t, types.Avro, cfg.Registry.DefaultArtifactType)
	assert.Equal(t, limits.Unlimited, cfg.Limits.MaxTotalSchemas)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestParse(t *testing.T) {
	t.Setenv("REGISTRY_TEST_PG_PASSWORD", "s3cret")

	doc := `
logger:
  level: debug
metrics:
  enabled: true
  address: ":9100"
registry:
  canonicalHashModeEnabled: true
rules:
  defaultGlobalRules:
    VALIDITY: FULL
limits:
  maxTotalSchemas: 10
  maxRequestsPerSecond: 5
storage:
  type: postgres
postgres:
  connection:
    host: db
    password: ${REGISTRY_TEST_PG_PASSWORD}
  connectionDetails:
    connMaxLifetime: 30s
events:
  enabled: true
  brokers: [kafka:9092]
`
	cfg, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "schema-registry", cfg.Logger.ServiceName, "unset keys keep defaults")
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Address)
	assert.True(t, cfg.Registry.CanonicalHashModeEnabled)
	assert.Equal(t, types.Avro, cfg.Registry.DefaultArtifactType)
	assert.Equal(t, "FULL", cfg.Rules.DefaultGlobalRules[types.RuleValidity])
	assert.Equal(t, int64(10), cfg.Limits.MaxTotalSchemas)
	assert.Equal(t, int64(5), cfg.Limits.MaxRequestsPerSecond)
	assert.Equal(t, limits.Unlimited, cfg.Limits.MaxArtifacts)
	assert.Equal(t, StoragePostgres, cfg.Storage.Type)
	assert.Equal(t, "db", cfg.Postgres.Connection.Host)
	assert.Equal(t, "5432", cfg.Postgres.Connection.Port)
	assert.Equal(t, "s3cret", cfg.Postgres.Connection.Password)
	assert.Equal(t, 30*time.Second, cfg.Postgres.ConnectionDetails.ConnMaxLifetime)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Events.Brokers)
	assert.Equal(t, "registry-events", cfg.Events.Topic)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "registry:\n  bogus: true\n", "bogus"},
		{"unknown storage", "storage:\n  type: cassandra\n", "unknown storage type"},
		{"postgres without host", "storage:\n  type: postgres\npostgres:\n  connection:\n    host: \"\"\n", "postgres.connection.host"},
		{"events without brokers", "events:\n  enabled: true\n", "events.brokers"},
		{"rabbitmq without host", "events:\n  enabled: true\n  transport: rabbitmq\n", "events.rabbitmq.host"},
		{"unknown transport", "events:\n  enabled: true\n  transport: nats\n", "unknown events.transport"},
		{"blobstore on memory", "blobstore:\n  enabled: true\n  endpoint: minio:9000\n", "requires postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadAndEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("REGISTRY_TEST_LEVEL=warning\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("REGISTRY_TEST_LEVEL") })

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), envFile))

	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: ${REGISTRY_TEST_LEVEL}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warning", cfg.Logger.Level)

	_, err = Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSupply(t *testing.T) {
	cfg := Default()
	cfg.Registry.CanonicalHashModeEnabled = true

	var (
		regCfg registry.Config
		logCfg logger.Config
	)
	app := fxtest.New(t, cfg.Supply(), fx.Populate(&regCfg, &logCfg))
	app.RequireStart()
	app.RequireStop()

	assert.True(t, regCfg.CanonicalHashModeEnabled)
	assert.Equal(t, "schema-registry", logCfg.ServiceName)
}
