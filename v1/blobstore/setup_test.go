package blobstore

import (
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/schema-registry/v1/logger"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, "schema-registry", cfg.BucketName)
	assert.Equal(t, 10*time.Second, cfg.OperationTimeout)

	cfg = Config{BucketName: "b", OperationTimeout: time.Second}.withDefaults()
	assert.Equal(t, "b", cfg.BucketName)
	assert.Equal(t, time.Second, cfg.OperationTimeout)
}

func TestNewStore(t *testing.T) {
	_, err := NewStore(Config{}, logger.NewNop())
	assert.Error(t, err)

	s, err := NewStore(Config{Endpoint: "localhost:9000", BucketName: "contents"}, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "contents", s.Bucket())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
}
