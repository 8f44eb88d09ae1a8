package content

import (
	"fmt"
)

// Canonicalizer turns content into its canonical form. Resolved references are
// keyed by logical reference name.
type Canonicalizer interface {
	Canonicalize(h Handle, resolved map[string]Handle) (Handle, error)
}

// CanonicalizerSource selects the canonicalizer for a content type.
// It is implemented by artifacttype.Factory.
type CanonicalizerSource interface {
	Canonicalizer(artifactType string) (Canonicalizer, error)
}

// Entry is content ready to be persisted together with both digests.
type Entry struct {
	Content       Handle
	ContentHash   string
	CanonicalHash string
}

// Identity computes canonical digests by delegating to the canonicalizer of
// each content type.
type Identity struct {
	source CanonicalizerSource
}

// NewIdentity creates an Identity backed by source.
func NewIdentity(source CanonicalizerSource) *Identity {
	return &Identity{source: source}
}

// CanonicalDigest returns the digest of the canonical form of h.
// Types without a canonicalizer fail with an UnsupportedFormat error from the source.
func (i *Identity) CanonicalDigest(h Handle, artifactType string) (string, error) {
	return i.CanonicalDigestWithReferences(h, artifactType, nil, nil)
}

// CanonicalDigestWithReferences canonicalizes h using the resolved references and
// digests the result together with the reference declarations.
func (i *Identity) CanonicalDigestWithReferences(h Handle, artifactType string, refs []Reference, resolved map[string]Handle) (string, error) {
	canonical, err := i.Canonicalize(h, artifactType, resolved)
	if err != nil {
		return "", err
	}
	return DigestWithReferences(canonical, refs), nil
}

// Canonicalize returns the canonical form of h.
func (i *Identity) Canonicalize(h Handle, artifactType string, resolved map[string]Handle) (Handle, error) {
	c, err := i.source.Canonicalizer(artifactType)
	if err != nil {
		return Handle{}, err
	}
	canonical, err := c.Canonicalize(h, resolved)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to canonicalize %s content: %w", artifactType, err)
	}
	return canonical, nil
}

// NewEntry prepares h for storage. Content that cannot be canonicalized (for
// example when validity rules are disabled) gets a canonical hash computed
// over its raw bytes, so every stored entry is addressable by both digests.
func (i *Identity) NewEntry(h Handle, artifactType string, refs []Reference, resolved map[string]Handle) (Entry, error) {
	entry := Entry{
		Content:     h,
		ContentHash: DigestWithReferences(h, refs),
	}
	canonicalHash, err := i.CanonicalDigestWithReferences(h, artifactType, refs, resolved)
	if err != nil {
		entry.CanonicalHash = entry.ContentHash
		return entry, err
	}
	entry.CanonicalHash = canonicalHash
	return entry, nil
}
