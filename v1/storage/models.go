package storage

import (
	"time"

	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// DefaultGroupID is the group used when a caller does not name one.
// The Confluent-compatible API always works in this group.
const DefaultGroupID = "default"

// RetrievalBehavior controls which version GetArtifactMetadata treats as latest.
type RetrievalBehavior int

const (
	// DefaultBehavior picks the newest version regardless of its state.
	DefaultBehavior RetrievalBehavior = iota
	// SkipDisabledLatest picks the newest version that is not DISABLED.
	SkipDisabledLatest
)

// ArtifactReference declares that a version depends on another version.
type ArtifactReference struct {
	GroupID    string `json:"groupId,omitempty"`
	ArtifactID string `json:"artifactId"`
	Version    string `json:"version"`
	Name       string `json:"name"`
}

// ContentReference projects the reference onto the fields that take part in
// content identity.
func (r ArtifactReference) ContentReference() content.Reference {
	return content.Reference{
		Name:       r.Name,
		GroupID:    r.GroupID,
		ArtifactID: r.ArtifactID,
		Version:    r.Version,
	}
}

// ContentReferences projects a reference list for content hashing.
func ContentReferences(refs []ArtifactReference) []content.Reference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]content.Reference, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.ContentReference())
	}
	return out
}

// EditableMetadata is the caller-supplied descriptive metadata of an artifact.
type EditableMetadata struct {
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Labels      []string          `json:"labels,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// ArtifactMetadata describes an artifact as seen through its latest version.
type ArtifactMetadata struct {
	GroupID      string              `json:"groupId"`
	ArtifactID   string              `json:"artifactId"`
	ArtifactType string              `json:"type"`
	Version      string              `json:"version"`
	GlobalID     int64               `json:"globalId"`
	ContentID    int64               `json:"contentId"`
	State        types.ArtifactState `json:"state"`
	CreatedOn    time.Time           `json:"createdOn"`
	ModifiedOn   time.Time           `json:"modifiedOn"`
	EditableMetadata
}

// VersionMetadata describes a single stored version.
type VersionMetadata struct {
	GroupID       string              `json:"groupId"`
	ArtifactID    string              `json:"artifactId"`
	Version       string              `json:"version"`
	ArtifactType  string              `json:"type"`
	GlobalID      int64               `json:"globalId"`
	ContentID     int64               `json:"contentId"`
	State         types.ArtifactState `json:"state"`
	CreatedOn     time.Time           `json:"createdOn"`
	ContentHash   string              `json:"contentHash"`
	CanonicalHash string              `json:"canonicalHash"`
	References    []ArtifactReference `json:"references,omitempty"`
}

// StoredArtifact is a version's content together with its references.
type StoredArtifact struct {
	GlobalID   int64
	ContentID  int64
	Version    string
	State      types.ArtifactState
	Content    content.Handle
	References []ArtifactReference
}

// NewVersion carries everything needed to persist a version.
// An empty Version lets storage assign the next label.
type NewVersion struct {
	GroupID      string
	ArtifactID   string
	Version      string
	ArtifactType string
	Entry        content.Entry
	References   []ArtifactReference
	Metadata     *EditableMetadata
}

// RuleConfig is a configured rule.
type RuleConfig struct {
	Type          types.RuleType `json:"type"`
	Configuration string         `json:"config"`
}
