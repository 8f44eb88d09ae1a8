package content

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Reference is the part of a reference declaration that takes part in content
// identity. It mirrors storage.ArtifactReference without importing storage.
type Reference struct {
	Name       string
	GroupID    string
	ArtifactID string
	Version    string
}

// Digest returns the lowercase hex SHA-256 of the raw content bytes.
func Digest(h Handle) string {
	sum := sha256.Sum256(h.raw())
	return hex.EncodeToString(sum[:])
}

// DigestWithReferences returns the digest of the content combined with its
// reference declarations. Without references it equals Digest, so plain
// content keeps a stable identity.
func DigestWithReferences(h Handle, refs []Reference) string {
	if len(refs) == 0 {
		return Digest(h)
	}
	hasher := sha256.New()
	hasher.Write(h.raw())
	hasher.Write([]byte(serializeReferences(refs)))
	return hex.EncodeToString(hasher.Sum(nil))
}

// serializeReferences renders references in name order so that declaration
// order does not change identity.
func serializeReferences(refs []Reference) string {
	sorted := make([]Reference, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		if sorted[i].GroupID != sorted[j].GroupID {
			return sorted[i].GroupID < sorted[j].GroupID
		}
		if sorted[i].ArtifactID != sorted[j].ArtifactID {
			return sorted[i].ArtifactID < sorted[j].ArtifactID
		}
		return sorted[i].Version < sorted[j].Version
	})

	var b strings.Builder
	for _, r := range sorted {
		b.WriteString("\x00ref:")
		b.WriteString(r.Name)
		b.WriteByte('\x1f')
		b.WriteString(r.GroupID)
		b.WriteByte('\x1f')
		b.WriteString(r.ArtifactID)
		b.WriteByte('\x1f')
		b.WriteString(r.Version)
	}
	return b.String()
}
