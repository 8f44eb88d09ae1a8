package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/artifacttype"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
)

// LookupRequest is the input of LookupByContent.
type LookupRequest struct {
	GroupID    string
	ArtifactID string
	// ArtifactType may be empty, in which case the artifact's type is used.
	ArtifactType string
	Content      content.Handle
	References   []storage.ArtifactReference
	// Normalize compares canonical forms instead of raw bytes.
	Normalize bool
}

// Match kinds reported to metrics.
const (
	matchExact        = "exact"
	matchCanonical    = "canonical"
	matchDereferenced = "dereferenced"
	matchNone         = "none"
)

// LookupByContent finds the earliest version of the artifact holding content
// equivalent to req.Content.
//
// Without normalization only identical bytes (and identical references)
// match. With it, the canonical digest is tried first; on a miss, and only
// for types that support dereferencing, every stored version is dereferenced
// with its own references and compared with the dereferenced submission, so a
// document with inlined types matches one that references them.
func (r *Registry) LookupByContent(ctx context.Context, req LookupRequest) (md *storage.VersionMetadata, err error) {
	start := time.Now()
	req.GroupID = groupOrDefault(req.GroupID)
	normalize := req.Normalize || r.cfg.CanonicalHashModeEnabled
	ctx, span := r.startSpan(ctx, "LookupByContent", map[string]interface{}{
		"group.id":    req.GroupID,
		"artifact.id": req.ArtifactID,
		"normalize":   normalize,
	})
	match := matchNone
	defer func() {
		r.metrics.ObserveLookup(match, outcome(err))
		r.finish(span, start, "lookup", err)
	}()

	resolved, err := r.resolver.Resolve(ctx, req.GroupID, req.References)
	if err != nil {
		return nil, err
	}
	refs := storage.ContentReferences(req.References)

	if !normalize {
		md, err = r.store.GetArtifactVersionMetadataByContentHash(ctx, req.GroupID, req.ArtifactID, false, content.DigestWithReferences(req.Content, refs))
		if err != nil {
			return nil, err
		}
		match = matchExact
		return md, nil
	}

	artifactType := req.ArtifactType
	if artifactType == "" {
		meta, err := r.store.GetArtifactMetadata(ctx, req.GroupID, req.ArtifactID, storage.DefaultBehavior)
		if err != nil {
			return nil, err
		}
		artifactType = meta.ArtifactType
	}
	provider, err := r.providers.Provider(artifactType)
	if err != nil {
		return nil, err
	}

	canonicalHash, err := r.identity.CanonicalDigestWithReferences(req.Content, artifactType, refs, resolved)
	if err != nil {
		return nil, unprocessable(err, "failed to canonicalize submitted content")
	}
	md, err = r.store.GetArtifactVersionMetadataByContentHash(ctx, req.GroupID, req.ArtifactID, true, canonicalHash)
	if err == nil {
		match = matchCanonical
		return md, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}
	if !provider.SupportsDereference() {
		return nil, err
	}

	md, err = r.findDereferenced(ctx, req, provider, resolved)
	if err != nil {
		return nil, err
	}
	match = matchDereferenced
	return md, nil
}

func (r *Registry) findDereferenced(ctx context.Context, req LookupRequest, provider artifacttype.Provider, resolved map[string]content.Handle) (*storage.VersionMetadata, error) {
	target, err := r.dereferencedDigest(provider, req.Content, resolved)
	if err != nil {
		return nil, unprocessable(err, "failed to dereference submitted content")
	}

	versions, err := r.store.GetArtifactVersions(ctx, req.GroupID, req.ArtifactID)
	if err != nil {
		return nil, err
	}
	for _, version := range versions {
		stored, err := r.store.GetArtifactVersion(ctx, req.GroupID, req.ArtifactID, version)
		if err != nil {
			return nil, err
		}
		storedResolved, err := r.resolver.Resolve(ctx, req.GroupID, stored.References)
		if err != nil {
			r.logger.Debug("skipping version with unresolvable references", err, map[string]interface{}{
				"artifactId": req.ArtifactID,
				"version":    version,
			})
			continue
		}
		digest, err := r.dereferencedDigest(provider, stored.Content, storedResolved)
		if err != nil {
			r.logger.Debug("skipping version that cannot be dereferenced", err, map[string]interface{}{
				"artifactId": req.ArtifactID,
				"version":    version,
			})
			continue
		}
		if digest == target {
			return r.store.GetArtifactVersionMetadata(ctx, req.GroupID, req.ArtifactID, version)
		}
	}
	return nil, fmt.Errorf("%w: no version of %s/%s matches dereferenced content", storage.ErrVersionNotFound, req.GroupID, req.ArtifactID)
}

// dereferencedDigest digests the canonical form of h with all references inlined.
func (r *Registry) dereferencedDigest(provider artifacttype.Provider, h content.Handle, resolved map[string]content.Handle) (string, error) {
	deref, err := provider.Dereference(h, resolved)
	if err != nil {
		return "", err
	}
	canonical, err := provider.Canonicalize(deref, nil)
	if err != nil {
		return "", err
	}
	return content.Digest(canonical), nil
}

// unprocessable classifies provider failures on submitted content. Errors
// that already carry a kind other than internal keep it.
func unprocessable(err error, msg string) error {
	if kind := apperr.KindOf(err); kind != apperr.KindInternal {
		return err
	}
	return apperr.Unprocessable(err, "%s", msg)
}
