package metrics

// DefaultMetricsAddress is the listen address used when Config.Address is empty.
const DefaultMetricsAddress = ":9090"

// Config configures the Prometheus endpoint.
type Config struct {
	// Address is the listen address of the /metrics server.
	Address string `yaml:"address"`

	// EnableDefaultCollectors registers the Go runtime, process and build info collectors.
	EnableDefaultCollectors bool `yaml:"enableDefaultCollectors"`

	// Namespace prefixes every registry metric name.
	Namespace string `yaml:"namespace"`

	// ServiceName is attached to every metric as the "service" label.
	ServiceName string `yaml:"serviceName"`
}
