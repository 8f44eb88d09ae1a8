// Package events publishes registry change notifications.
//
// Each successful registration emits one Event. Consumers (caches,
// serializers, audit pipelines) key on GroupID/ArtifactID; the Kafka
// publisher uses the same pair as the message key, so events of one
// artifact stay ordered within a partition.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Aleph-Alpha/schema-registry/v1/storage"
)

// Type names an event kind.
type Type string

const (
	// ArtifactCreated is emitted when a registration creates a new artifact.
	ArtifactCreated Type = "ArtifactCreated"
	// ArtifactVersionCreated is emitted when a version is appended to an existing artifact.
	ArtifactVersionCreated Type = "ArtifactVersionCreated"
)

// Event describes a stored version.
type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	Time         time.Time `json:"time"`
	GroupID      string    `json:"groupId"`
	ArtifactID   string    `json:"artifactId"`
	ArtifactType string    `json:"artifactType"`
	Version      string    `json:"version"`
	GlobalID     int64     `json:"globalId"`
	ContentID    int64     `json:"contentId"`
	ContentHash  string    `json:"contentHash"`
}

// Key returns the partitioning key of the event.
func (e Event) Key() string {
	return e.GroupID + "/" + e.ArtifactID
}

// NewVersionEvent builds the event for a stored version.
func NewVersionEvent(t Type, md *storage.VersionMetadata) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         t,
		Time:         time.Now().UTC(),
		GroupID:      md.GroupID,
		ArtifactID:   md.ArtifactID,
		ArtifactType: md.ArtifactType,
		Version:      md.Version,
		GlobalID:     md.GlobalID,
		ContentID:    md.ContentID,
		ContentHash:  md.ContentHash,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }
