package limits

import (
	"context"
	"sort"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
)

// Logger is the logging interface used by the limits checker.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Debug(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	Fatal(msg string, err error, fields ...map[string]interface{})
}

// Counter reports the stored totals the ceilings are compared against.
type Counter interface {
	CountArtifacts(ctx context.Context) (int64, error)
	CountArtifactVersions(ctx context.Context, groupID, artifactID string) (int64, error)
	CountTotalVersions(ctx context.Context) (int64, error)
}

// Checker runs the pre-flight checks. It holds no state of its own; counts
// come from storage and request rates from the RateLimiter.
type Checker struct {
	cfg     Config
	counter Counter
	limiter RateLimiter
	logger  Logger
}

// NewChecker creates a checker. limiter may be nil when MaxRequestsPerSecond
// is not enforced.
func NewChecker(cfg Config, counter Counter, limiter RateLimiter, logger Logger) *Checker {
	return &Checker{cfg: cfg, counter: counter, limiter: limiter, logger: logger}
}

// Config returns the ceilings in force.
func (c *Checker) Config() Config {
	return c.cfg
}

// CheckArtifactCreate checks a registration that creates a new artifact.
func (c *Checker) CheckArtifactCreate(ctx context.Context, size int64, meta *storage.EditableMetadata) error {
	if err := c.checkSize(size); err != nil {
		return err
	}
	if err := c.CheckMetadata(meta); err != nil {
		return err
	}
	if enforced(c.cfg.MaxArtifacts) {
		n, err := c.counter.CountArtifacts(ctx)
		if err != nil {
			return err
		}
		if err := check(LimitArtifacts, c.cfg.MaxArtifacts, n+1); err != nil {
			return err
		}
	}
	return c.checkTotalSchemas(ctx)
}

// CheckVersionCreate checks a registration that adds a version to an existing artifact.
func (c *Checker) CheckVersionCreate(ctx context.Context, groupID, artifactID string, size int64, meta *storage.EditableMetadata) error {
	if err := c.checkSize(size); err != nil {
		return err
	}
	if err := c.CheckMetadata(meta); err != nil {
		return err
	}
	if enforced(c.cfg.MaxVersionsPerArtifact) {
		n, err := c.counter.CountArtifactVersions(ctx, groupID, artifactID)
		if err != nil {
			return err
		}
		if err := check(LimitVersionsPerArtifact, c.cfg.MaxVersionsPerArtifact, n+1); err != nil {
			return err
		}
	}
	return c.checkTotalSchemas(ctx)
}

// CheckMetadata checks the editable metadata of an artifact. A nil meta passes.
func (c *Checker) CheckMetadata(meta *storage.EditableMetadata) error {
	if meta == nil {
		return nil
	}
	if err := check(LimitNameLength, c.cfg.MaxNameLength, int64(len(meta.Name))); err != nil {
		return err
	}
	if err := check(LimitDescriptionLength, c.cfg.MaxDescriptionLength, int64(len(meta.Description))); err != nil {
		return err
	}
	if err := check(LimitArtifactLabels, c.cfg.MaxArtifactLabels, int64(len(meta.Labels))); err != nil {
		return err
	}
	for _, label := range meta.Labels {
		if err := check(LimitLabelSizeBytes, c.cfg.MaxLabelSizeBytes, int64(len(label))); err != nil {
			return err
		}
	}
	if err := check(LimitArtifactProperties, c.cfg.MaxArtifactProperties, int64(len(meta.Properties))); err != nil {
		return err
	}

	keys := make([]string, 0, len(meta.Properties))
	for k := range meta.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := check(LimitPropertyKeySizeBytes, c.cfg.MaxPropertyKeySizeBytes, int64(len(k))); err != nil {
			return err
		}
		if err := check(LimitPropertyValueSizeBytes, c.cfg.MaxPropertyValueSizeBytes, int64(len(meta.Properties[k]))); err != nil {
			return err
		}
	}
	return nil
}

// CheckRequestRate consumes one token from the bucket of key. A limiter
// failure rejects the request.
func (c *Checker) CheckRequestRate(ctx context.Context, key string) error {
	if !enforced(c.cfg.MaxRequestsPerSecond) || c.limiter == nil {
		return nil
	}
	allowed, err := c.limiter.Allow(ctx, key)
	if err != nil {
		c.logger.Error("rate limiter unavailable", err, map[string]interface{}{"key": key})
		return apperr.Wrap(apperr.KindInternal, err, "request rate check failed")
	}
	if !allowed {
		return exceeded(LimitRequestsPerSecond, c.cfg.MaxRequestsPerSecond, c.cfg.MaxRequestsPerSecond+1)
	}
	return nil
}

func (c *Checker) checkSize(size int64) error {
	return check(LimitSchemaSizeBytes, c.cfg.MaxSchemaSizeBytes, size)
}

func (c *Checker) checkTotalSchemas(ctx context.Context) error {
	if !enforced(c.cfg.MaxTotalSchemas) {
		return nil
	}
	n, err := c.counter.CountTotalVersions(ctx)
	if err != nil {
		return err
	}
	return check(LimitTotalSchemas, c.cfg.MaxTotalSchemas, n+1)
}
