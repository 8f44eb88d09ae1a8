package blobstore

import "time"

const (
	defaultBucketName       = "schema-registry"
	defaultOperationTimeout = 10 * time.Second
)

// Config describes the MinIO (or any S3-compatible) endpoint holding content
// bodies.
type Config struct {
	Enabled          bool          `yaml:"enabled"`
	Endpoint         string        `yaml:"endpoint"`
	AccessKeyID      string        `yaml:"accessKeyId"`
	SecretAccessKey  string        `yaml:"secretAccessKey"`
	UseSSL           bool          `yaml:"useSSL"`
	BucketName       string        `yaml:"bucketName"`
	Region           string        `yaml:"region"`
	OperationTimeout time.Duration `yaml:"operationTimeout"`
}

func (c Config) withDefaults() Config {
	if c.BucketName == "" {
		c.BucketName = defaultBucketName
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultOperationTimeout
	}
	return c
}
