package sqlstore

import (
	"time"

	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// contentRow is a deduplicated content body. Body is empty when the bytes live
// in the blob store under BlobKey.
type contentRow struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	ContentHash   string `gorm:"size:64;not null;uniqueIndex"`
	CanonicalHash string `gorm:"size:64;not null;index"`
	Size          int64  `gorm:"not null"`
	Body          []byte
	BlobKey       string `gorm:"size:128"`
}

func (contentRow) TableName() string { return "registry_contents" }

type artifactRow struct {
	ID           int64             `gorm:"primaryKey;autoIncrement"`
	GroupID      string            `gorm:"size:512;not null;uniqueIndex:idx_artifact_coordinates"`
	ArtifactID   string            `gorm:"size:512;not null;uniqueIndex:idx_artifact_coordinates"`
	ArtifactType string            `gorm:"size:32;not null"`
	Name         string            `gorm:"size:512"`
	Description  string            `gorm:"type:text"`
	Labels       []string          `gorm:"serializer:json"`
	Properties   map[string]string `gorm:"serializer:json"`
	CreatedOn    time.Time         `gorm:"not null"`
	ModifiedOn   time.Time         `gorm:"not null"`
}

func (artifactRow) TableName() string { return "registry_artifacts" }

func (a *artifactRow) setMetadata(meta *storage.EditableMetadata) {
	if meta == nil {
		return
	}
	a.Name = meta.Name
	a.Description = meta.Description
	a.Labels = meta.Labels
	a.Properties = meta.Properties
}

func (a *artifactRow) metadata() storage.EditableMetadata {
	return storage.EditableMetadata{
		Name:        a.Name,
		Description: a.Description,
		Labels:      a.Labels,
		Properties:  a.Properties,
	}
}

// versionRow is one version. GlobalID is assigned by the database sequence, so
// it also gives versions their creation order.
type versionRow struct {
	GlobalID     int64               `gorm:"primaryKey;autoIncrement"`
	ArtifactRef  int64               `gorm:"not null;uniqueIndex:idx_artifact_version"`
	Version      string              `gorm:"size:256;not null;uniqueIndex:idx_artifact_version"`
	VersionOrder int64               `gorm:"not null;default:0"`
	ContentID    int64               `gorm:"not null;index"`
	State        types.ArtifactState `gorm:"size:16;not null"`
	CreatedOn    time.Time           `gorm:"not null"`

	Artifact artifactRow    `gorm:"foreignKey:ArtifactRef;constraint:OnDelete:CASCADE"`
	Content  contentRow     `gorm:"foreignKey:ContentID"`
	Refs     []referenceRow `gorm:"foreignKey:GlobalID;constraint:OnDelete:CASCADE"`
}

func (versionRow) TableName() string { return "registry_versions" }

type referenceRow struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	GlobalID   int64  `gorm:"not null;index"`
	Position   int    `gorm:"not null"`
	Name       string `gorm:"size:512;not null"`
	GroupID    string `gorm:"size:512"`
	ArtifactID string `gorm:"size:512;not null"`
	Version    string `gorm:"size:256;not null"`
}

func (referenceRow) TableName() string { return "registry_references" }

// ruleRow is an artifact rule, or a global rule when ArtifactRef is zero.
type ruleRow struct {
	ID            int64          `gorm:"primaryKey;autoIncrement"`
	ArtifactRef   int64          `gorm:"not null;default:0;uniqueIndex:idx_rule_scope"`
	Type          types.RuleType `gorm:"size:32;not null;uniqueIndex:idx_rule_scope"`
	Configuration string         `gorm:"size:64;not null"`
}

func (ruleRow) TableName() string { return "registry_rules" }

// versionOrder is the numeric value of a label, or 0 for non-numeric labels.
func versionOrder(label string) int64 {
	return storage.VersionOrder(label)
}

func toReferenceRows(refs []storage.ArtifactReference) []referenceRow {
	if len(refs) == 0 {
		return nil
	}
	rows := make([]referenceRow, 0, len(refs))
	for i, r := range refs {
		rows = append(rows, referenceRow{
			Position:   i,
			Name:       r.Name,
			GroupID:    r.GroupID,
			ArtifactID: r.ArtifactID,
			Version:    r.Version,
		})
	}
	return rows
}

func fromReferenceRows(rows []referenceRow) []storage.ArtifactReference {
	if len(rows) == 0 {
		return nil
	}
	refs := make([]storage.ArtifactReference, len(rows))
	for _, r := range rows {
		if r.Position < 0 || r.Position >= len(rows) {
			continue
		}
		refs[r.Position] = storage.ArtifactReference{
			GroupID:    r.GroupID,
			ArtifactID: r.ArtifactID,
			Version:    r.Version,
			Name:       r.Name,
		}
	}
	return refs
}

func versionMetadata(a *artifactRow, v *versionRow) *storage.VersionMetadata {
	return &storage.VersionMetadata{
		GroupID:       a.GroupID,
		ArtifactID:    a.ArtifactID,
		Version:       v.Version,
		ArtifactType:  a.ArtifactType,
		GlobalID:      v.GlobalID,
		ContentID:     v.ContentID,
		State:         v.State,
		CreatedOn:     v.CreatedOn,
		ContentHash:   v.Content.ContentHash,
		CanonicalHash: v.Content.CanonicalHash,
		References:    fromReferenceRows(v.Refs),
	}
}
