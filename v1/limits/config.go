package limits

// Unlimited disables a ceiling. Any negative value is treated the same way.
const Unlimited int64 = -1

// Limit names reported in LimitExceededError.
const (
	LimitTotalSchemas           = "maxTotalSchemas"
	LimitSchemaSizeBytes        = "maxSchemaSizeBytes"
	LimitArtifacts              = "maxArtifacts"
	LimitVersionsPerArtifact    = "maxVersionsPerArtifact"
	LimitArtifactProperties     = "maxArtifactProperties"
	LimitPropertyKeySizeBytes   = "maxPropertyKeySizeBytes"
	LimitPropertyValueSizeBytes = "maxPropertyValueSizeBytes"
	LimitArtifactLabels         = "maxArtifactLabels"
	LimitLabelSizeBytes         = "maxLabelSizeBytes"
	LimitNameLength             = "maxNameLength"
	LimitDescriptionLength      = "maxDescriptionLength"
	LimitRequestsPerSecond      = "maxRequestsPerSecond"
)

// Config holds the registry ceilings. Use DefaultConfig as the base: the zero
// value of a field means "zero allowed", not "unlimited".
type Config struct {
	MaxTotalSchemas           int64 `yaml:"maxTotalSchemas"`
	MaxSchemaSizeBytes        int64 `yaml:"maxSchemaSizeBytes"`
	MaxArtifacts              int64 `yaml:"maxArtifacts"`
	MaxVersionsPerArtifact    int64 `yaml:"maxVersionsPerArtifact"`
	MaxArtifactProperties     int64 `yaml:"maxArtifactProperties"`
	MaxPropertyKeySizeBytes   int64 `yaml:"maxPropertyKeySizeBytes"`
	MaxPropertyValueSizeBytes int64 `yaml:"maxPropertyValueSizeBytes"`
	MaxArtifactLabels         int64 `yaml:"maxArtifactLabels"`
	MaxLabelSizeBytes         int64 `yaml:"maxLabelSizeBytes"`
	MaxNameLength             int64 `yaml:"maxNameLength"`
	MaxDescriptionLength      int64 `yaml:"maxDescriptionLength"`
	MaxRequestsPerSecond      int64 `yaml:"maxRequestsPerSecond"`

	// RequestBurst is the token bucket capacity. Zero uses MaxRequestsPerSecond.
	RequestBurst int `yaml:"requestBurst"`
}

// DefaultConfig returns a configuration with every ceiling disabled.
func DefaultConfig() Config {
	return Config{
		MaxTotalSchemas:           Unlimited,
		MaxSchemaSizeBytes:        Unlimited,
		MaxArtifacts:              Unlimited,
		MaxVersionsPerArtifact:    Unlimited,
		MaxArtifactProperties:     Unlimited,
		MaxPropertyKeySizeBytes:   Unlimited,
		MaxPropertyValueSizeBytes: Unlimited,
		MaxArtifactLabels:         Unlimited,
		MaxLabelSizeBytes:         Unlimited,
		MaxNameLength:             Unlimited,
		MaxDescriptionLength:      Unlimited,
		MaxRequestsPerSecond:      Unlimited,
	}
}

func (c Config) burst() int {
	if c.RequestBurst > 0 {
		return c.RequestBurst
	}
	if c.MaxRequestsPerSecond > 0 {
		return int(c.MaxRequestsPerSecond)
	}
	return 1
}

func enforced(max int64) bool {
	return max >= 0
}
