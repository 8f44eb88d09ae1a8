// Package lifecycle decides which versions are usable and resolves version
// labels such as "latest".
//
// Version states move ENABLED <-> DEPRECATED and from either to DISABLED by
// administrative action. ENABLED and DEPRECATED versions are active; DISABLED
// versions stay retrievable by explicit label but never resolve as latest.
package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

const (
	// LatestLabel resolves to the highest active version.
	LatestLabel = "latest"
	// LatestSentinel is the integer form of LatestLabel used by the Confluent API.
	LatestSentinel = "-1"
)

// Store is the slice of storage.Gateway used by the lifecycle.
type Store interface {
	GetArtifactMetadata(ctx context.Context, groupID, artifactID string, behavior storage.RetrievalBehavior) (*storage.ArtifactMetadata, error)
	GetArtifactVersionMetadata(ctx context.Context, groupID, artifactID, version string) (*storage.VersionMetadata, error)
	GetArtifactVersionMetadataByGlobalID(ctx context.Context, globalID int64) (*storage.VersionMetadata, error)
}

// Lifecycle answers state questions against storage.
type Lifecycle struct {
	store Store
}

// New creates a Lifecycle reading from store.
func New(store Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// IsActive reports whether state is ENABLED or DEPRECATED.
func IsActive(state types.ArtifactState) bool {
	return state.IsActive()
}

// ShouldFilterState reports whether a version in state passes the listing
// filter of the Confluent API: with deleted set every state passes, otherwise
// only ENABLED.
func ShouldFilterState(deleted bool, state types.ArtifactState) bool {
	if deleted {
		return true
	}
	return state == types.StateEnabled
}

// IsVisible reports whether a version in state is visible to a caller that
// does (includeDisabled) or does not ask for disabled versions.
func IsVisible(state types.ArtifactState, includeDisabled bool) bool {
	return includeDisabled || IsActive(state)
}

// IsArtifactActive reports whether the version exists and is active. A
// missing artifact or version is not an error.
func (l *Lifecycle) IsArtifactActive(ctx context.Context, groupID, artifactID, version string) (bool, error) {
	md, err := l.store.GetArtifactVersionMetadata(ctx, groupID, artifactID, version)
	if apperr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return IsActive(md.State), nil
}

// LatestVersion returns the artifact as seen through its highest active version.
func (l *Lifecycle) LatestVersion(ctx context.Context, groupID, artifactID string) (*storage.ArtifactMetadata, error) {
	md, err := l.store.GetArtifactMetadata(ctx, groupID, artifactID, storage.SkipDisabledLatest)
	if err != nil {
		return nil, err
	}
	return md, nil
}

// ResolveVersionLabel turns a caller-supplied label into a concrete one.
// "latest" and "-1" resolve to the highest active version; a non-negative
// integer is returned in its plain decimal form; anything else is
// VersionNotFound.
func (l *Lifecycle) ResolveVersionLabel(ctx context.Context, groupID, artifactID, label string) (string, error) {
	if label == LatestLabel || label == LatestSentinel {
		md, err := l.LatestVersion(ctx, groupID, artifactID)
		if err != nil {
			return "", err
		}
		return md.Version, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(label))
	if err != nil || n < 0 {
		return "", fmt.Errorf("%w: invalid version %q for %s/%s", storage.ErrVersionNotFound, label, groupID, artifactID)
	}
	return strconv.Itoa(n), nil
}

// AreAllSchemasDisabled reports whether ANY of the versions identified by
// globalIDs is DISABLED.
//
// The name promises "all" but existing clients rely on "any", so the
// predicate is kept. An empty list is not disabled.
func (l *Lifecycle) AreAllSchemasDisabled(ctx context.Context, globalIDs []int64) (bool, error) {
	for _, id := range globalIDs {
		md, err := l.store.GetArtifactVersionMetadataByGlobalID(ctx, id)
		if err != nil {
			return false, err
		}
		if md.State == types.StateDisabled {
			return true, nil
		}
	}
	return false, nil
}
