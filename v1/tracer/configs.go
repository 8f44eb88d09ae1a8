package tracer

// Config configures the OpenTelemetry tracer provider.
type Config struct {
	ServiceName string `yaml:"serviceName"`
	AppEnv      string `yaml:"appEnv"`

	// EnableExport sends spans to an OTLP/HTTP collector. Without it spans are
	// created (so trace IDs reach the logs) but never leave the process.
	EnableExport bool `yaml:"enableExport"`

	// Endpoint is the collector host:port. Empty uses the OTEL_EXPORTER_OTLP_* environment.
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}
