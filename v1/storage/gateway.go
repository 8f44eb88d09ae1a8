// Package storage defines the contract between the registry core and its
// durable store, and ships an in-memory implementation.
//
// The core only talks to storage through Gateway. Implementations must give
// each call a consistent snapshot and must detect two concurrent creations of
// the same artifact, returning ErrArtifactAlreadyExists for the loser instead
// of silently duplicating it.
//
// Implementations:
//   - MemoryStore in this package (tests, single-process deployments)
//   - sqlstore.Store in v1/storage/sqlstore (PostgreSQL through GORM)
package storage

import (
	"context"

	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// Gateway is the storage contract consumed by the registry core.
type Gateway interface {
	// Artifacts

	// GetArtifactMetadata returns the artifact as seen through its latest version,
	// where "latest" follows behavior.
	GetArtifactMetadata(ctx context.Context, groupID, artifactID string, behavior RetrievalBehavior) (*ArtifactMetadata, error)

	// CreateArtifact persists a new artifact with its first version.
	// Returns ErrArtifactAlreadyExists if the artifact exists.
	CreateArtifact(ctx context.Context, v NewVersion) (*VersionMetadata, error)

	// UpdateArtifact appends a version to an existing artifact.
	UpdateArtifact(ctx context.Context, v NewVersion) (*VersionMetadata, error)

	// Versions

	// GetArtifactVersions returns all version labels of an artifact, oldest first.
	GetArtifactVersions(ctx context.Context, groupID, artifactID string) ([]string, error)

	// GetArtifactVersion returns the content and references of one version.
	GetArtifactVersion(ctx context.Context, groupID, artifactID, version string) (*StoredArtifact, error)

	// GetArtifactVersionMetadata returns metadata of one version.
	GetArtifactVersionMetadata(ctx context.Context, groupID, artifactID, version string) (*VersionMetadata, error)

	// GetArtifactVersionMetadataByContentHash returns the earliest version of the
	// artifact whose exact (canonical=false) or canonical digest equals hash.
	GetArtifactVersionMetadataByContentHash(ctx context.Context, groupID, artifactID string, canonical bool, hash string) (*VersionMetadata, error)

	// GetArtifactVersionMetadataByGlobalID returns metadata of the version with the given global ID.
	GetArtifactVersionMetadataByGlobalID(ctx context.Context, globalID int64) (*VersionMetadata, error)

	// UpdateArtifactVersionState changes the state of a version. This is an
	// administrative operation; the core never calls it.
	UpdateArtifactVersionState(ctx context.Context, groupID, artifactID, version string, state types.ArtifactState) error

	// Rules

	GetArtifactRules(ctx context.Context, groupID, artifactID string) ([]RuleConfig, error)
	GetArtifactRule(ctx context.Context, groupID, artifactID string, ruleType types.RuleType) (*RuleConfig, error)
	SetArtifactRule(ctx context.Context, groupID, artifactID string, rule RuleConfig) error
	DeleteArtifactRule(ctx context.Context, groupID, artifactID string, ruleType types.RuleType) error
	GetGlobalRules(ctx context.Context) ([]RuleConfig, error)
	GetGlobalRule(ctx context.Context, ruleType types.RuleType) (*RuleConfig, error)
	SetGlobalRule(ctx context.Context, rule RuleConfig) error
	DeleteGlobalRule(ctx context.Context, ruleType types.RuleType) error

	// Counters used by the limits enforcer

	CountArtifacts(ctx context.Context) (int64, error)
	CountArtifactVersions(ctx context.Context, groupID, artifactID string) (int64, error)
	CountTotalVersions(ctx context.Context) (int64, error)
}
