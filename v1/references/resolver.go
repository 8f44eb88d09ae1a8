// Package references resolves reference declarations to stored content.
//
// Resolution is all-or-nothing: either every declared reference, and every
// reference those versions declare in turn, resolves, or the call fails with a
// ReferenceNotFound error naming the first unresolved declaration. Callers
// never see a partial map.
package references

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
)

const defaultConcurrency = 8

// VersionReader is the slice of storage.Gateway the resolver needs.
type VersionReader interface {
	GetArtifactVersion(ctx context.Context, groupID, artifactID, version string) (*storage.StoredArtifact, error)
}

// Resolver resolves references against storage.
type Resolver struct {
	store       VersionReader
	concurrency int
}

// NewResolver creates a resolver reading from store. concurrency bounds the
// number of parallel storage reads per level; values below 1 use the default.
func NewResolver(store VersionReader, concurrency int) *Resolver {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	return &Resolver{store: store, concurrency: concurrency}
}

type versionKey struct {
	groupID, artifactID, version string
}

func keyOf(ref storage.ArtifactReference) versionKey {
	return versionKey{ref.GroupID, ref.ArtifactID, ref.Version}
}

// Resolve returns the content of every reference keyed by logical name,
// including references of referenced versions. References without a group
// inherit groupID.
func (r *Resolver) Resolve(ctx context.Context, groupID string, refs []storage.ArtifactReference) (map[string]content.Handle, error) {
	resolved := make(map[string]content.Handle)
	if len(refs) == 0 {
		return resolved, nil
	}

	fetched := make(map[versionKey]*storage.StoredArtifact)
	expanded := make(map[versionKey]bool)
	level := withGroup(refs, groupID)
	for len(level) > 0 {
		if err := r.fetchLevel(ctx, level, fetched); err != nil {
			return nil, err
		}

		var next []storage.ArtifactReference
		for _, ref := range level {
			key := keyOf(ref)
			stored := fetched[key]
			if existing, ok := resolved[ref.Name]; ok && !existing.Equal(stored.Content) {
				return nil, apperr.New(apperr.KindUnprocessableContent,
					"reference name %q is bound to different content by %s/%s version %s", ref.Name, ref.GroupID, ref.ArtifactID, ref.Version)
			}
			resolved[ref.Name] = stored.Content

			if expanded[key] {
				continue
			}
			expanded[key] = true
			next = append(next, withGroup(stored.References, ref.GroupID)...)
		}
		level = next
	}
	return resolved, nil
}

// fetchLevel reads every version of refs not yet in fetched, concurrently.
// The first failing declaration in list order decides the returned error.
func (r *Resolver) fetchLevel(ctx context.Context, refs []storage.ArtifactReference, fetched map[versionKey]*storage.StoredArtifact) error {
	var missing []storage.ArtifactReference
	queued := make(map[versionKey]bool)
	for _, ref := range refs {
		if err := validateVersion(ref); err != nil {
			return err
		}
		key := keyOf(ref)
		if _, ok := fetched[key]; ok || queued[key] {
			continue
		}
		queued[key] = true
		missing = append(missing, ref)
	}

	out := make([]*storage.StoredArtifact, len(missing))
	errs := make([]error, len(missing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, ref := range missing {
		g.Go(func() error {
			stored, err := r.store.GetArtifactVersion(gctx, ref.GroupID, ref.ArtifactID, ref.Version)
			if err != nil {
				errs[i] = err
				return nil
			}
			out[i] = stored
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, err := range errs {
		ref := missing[i]
		if err == nil {
			fetched[keyOf(ref)] = out[i]
			continue
		}
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Wrap(apperr.KindReferenceNotFound, err,
				"reference %q to %s/%s version %s not found", ref.Name, ref.GroupID, ref.ArtifactID, ref.Version)
		}
		return fmt.Errorf("failed to resolve reference %q: %w", ref.Name, err)
	}
	return nil
}

// validateVersion rejects floating versions; references pin concrete versions.
func validateVersion(ref storage.ArtifactReference) error {
	v := strings.TrimSpace(ref.Version)
	if v == "" || strings.EqualFold(v, "latest") || v == "-1" {
		return apperr.New(apperr.KindReferenceNotFound,
			"reference %q to %s/%s must name a concrete version, got %q", ref.Name, ref.GroupID, ref.ArtifactID, ref.Version)
	}
	return nil
}

func withGroup(refs []storage.ArtifactReference, groupID string) []storage.ArtifactReference {
	if groupID == "" {
		groupID = storage.DefaultGroupID
	}
	out := make([]storage.ArtifactReference, len(refs))
	for i, ref := range refs {
		if ref.GroupID == "" {
			ref.GroupID = groupID
		}
		out[i] = ref
	}
	return out
}

// SchemaReference is the reference shape of the Confluent-compatible API,
// where subjects live in the default group and versions are integers.
type SchemaReference struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Version int    `json:"version"`
}

// ToInternalRefs projects Confluent-style references onto artifact references
// in groupID.
func ToInternalRefs(groupID string, refs []SchemaReference) []storage.ArtifactReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]storage.ArtifactReference, 0, len(refs))
	for _, ref := range refs {
		out = append(out, storage.ArtifactReference{
			GroupID:    groupID,
			ArtifactID: ref.Subject,
			Version:    strconv.Itoa(ref.Version),
			Name:       ref.Name,
		})
	}
	return out
}
