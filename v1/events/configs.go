package events

import "time"

const (
	DefaultTopic        = "registry-events"
	DefaultMaxAttempts  = 3
	DefaultWriteTimeout = 10 * time.Second
	DefaultRequiredAcks = -1

	TransportKafka    = "kafka"
	TransportRabbitMQ = "rabbitmq"

	DefaultExchange     = "registry-events"
	DefaultExchangeType = "topic"
)

// Config configures event publication. With Enabled false the registry
// publishes to a Noop publisher.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Transport is kafka (default) or rabbitmq.
	Transport string `yaml:"transport"`

	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// RequiredAcks follows kafka-go: -1 all replicas, 1 leader only, 0 none.
	RequiredAcks int           `yaml:"requiredAcks"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`

	// Async batches writes in the background; delivery errors are only logged.
	Async        bool          `yaml:"async"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`

	// CompressionCodec is one of gzip, snappy, lz4, zstd or empty.
	CompressionCodec string `yaml:"compressionCodec"`

	TLS  TLSConfig  `yaml:"tls"`
	SASL SASLConfig `yaml:"sasl"`

	RabbitMQ RabbitConfig `yaml:"rabbitmq"`
}

// RabbitConfig configures the AMQP transport. Events go to a durable
// exchange with routing key "registry.<event type>".
type RabbitConfig struct {
	Host         string    `yaml:"host"`
	Port         uint      `yaml:"port"`
	User         string    `yaml:"user"`
	Password     string    `yaml:"password"`
	VHost        string    `yaml:"vhost"`
	Exchange     string    `yaml:"exchange"`
	ExchangeType string    `yaml:"exchangeType"`
	TLS          TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CACertPath         string `yaml:"caCertPath"`
	ClientCertPath     string `yaml:"clientCertPath"`
	ClientKeyPath      string `yaml:"clientKeyPath"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

type SASLConfig struct {
	Enabled bool `yaml:"enabled"`
	// Mechanism is PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512.
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}
