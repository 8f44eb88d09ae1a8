package registry

import (
	"context"
	"errors"
	"time"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/artifacttype"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/rules"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// ResolveReferences resolves refs transitively. Resolution is all or nothing.
func (r *Registry) ResolveReferences(ctx context.Context, groupID string, refs []storage.ArtifactReference) (resolved map[string]content.Handle, err error) {
	start := time.Now()
	ctx, span := r.startSpan(ctx, "ResolveReferences", map[string]interface{}{"references": len(refs)})
	defer func() { r.finish(span, start, "resolve_references", err) }()

	return r.resolver.Resolve(ctx, groupOrDefault(groupID), refs)
}

// IsActive reports whether the version named by label exists and is
// ENABLED or DEPRECATED. Labels are resolved as in ResolveVersionLabel.
func (r *Registry) IsActive(ctx context.Context, groupID, artifactID, label string) (active bool, err error) {
	start := time.Now()
	groupID = groupOrDefault(groupID)
	ctx, span := r.startSpan(ctx, "IsActive", map[string]interface{}{"artifact.id": artifactID, "version": label})
	defer func() { r.finish(span, start, "is_active", err) }()

	version, err := r.lifecycle.ResolveVersionLabel(ctx, groupID, artifactID, label)
	if apperr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.lifecycle.IsArtifactActive(ctx, groupID, artifactID, version)
}

// ResolveVersionLabel turns "latest", "-1" or a non-negative integer into a
// concrete version label.
func (r *Registry) ResolveVersionLabel(ctx context.Context, groupID, artifactID, label string) (version string, err error) {
	start := time.Now()
	ctx, span := r.startSpan(ctx, "ResolveVersionLabel", map[string]interface{}{"artifact.id": artifactID, "version": label})
	defer func() { r.finish(span, start, "resolve_version", err) }()

	return r.lifecycle.ResolveVersionLabel(ctx, groupOrDefault(groupID), artifactID, label)
}

// DoesArtifactExist reports whether the artifact exists in any state.
func (r *Registry) DoesArtifactExist(ctx context.Context, groupID, artifactID string) (bool, error) {
	return r.artifactExists(ctx, groupOrDefault(groupID), artifactID)
}

func (r *Registry) artifactExists(ctx context.Context, groupID, artifactID string) (bool, error) {
	_, err := r.store.GetArtifactMetadata(ctx, groupID, artifactID, storage.DefaultBehavior)
	if apperr.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// DoesArtifactRuleExist reports whether the artifact has a rule of ruleType.
func (r *Registry) DoesArtifactRuleExist(ctx context.Context, groupID, artifactID string, ruleType types.RuleType) (bool, error) {
	_, err := r.store.GetArtifactRule(ctx, groupOrDefault(groupID), artifactID, ruleType)
	if apperr.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// DoesGlobalRuleExist reports whether a global rule of ruleType is configured.
func (r *Registry) DoesGlobalRuleExist(ctx context.Context, ruleType types.RuleType) (bool, error) {
	_, err := r.store.GetGlobalRule(ctx, ruleType)
	if apperr.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// AreAllSchemasDisabled reports whether any of the given versions is
// DISABLED. See lifecycle.Lifecycle.AreAllSchemasDisabled.
func (r *Registry) AreAllSchemasDisabled(ctx context.Context, globalIDs []int64) (bool, error) {
	return r.lifecycle.AreAllSchemasDisabled(ctx, globalIDs)
}

// CompatibilityRequest is the input of CheckCompatibility.
type CompatibilityRequest struct {
	GroupID      string
	ArtifactID   string
	ArtifactType string
	Content      content.Handle
	References   []storage.ArtifactReference
	// Version is the label to test against; "latest" and "-1" are accepted.
	Version string
}

// CompatibilityResult reports whether content is compatible and, if not, why.
type CompatibilityResult struct {
	Compatible bool
	Violations []artifacttype.Violation
}

// CheckCompatibility tests content against one existing version using only
// the COMPATIBILITY rule. A rule violation is a result, not an error.
func (r *Registry) CheckCompatibility(ctx context.Context, req CompatibilityRequest) (result CompatibilityResult, err error) {
	start := time.Now()
	req.GroupID = groupOrDefault(req.GroupID)
	ctx, span := r.startSpan(ctx, "CheckCompatibility", map[string]interface{}{
		"artifact.id": req.ArtifactID,
		"version":     req.Version,
	})
	defer func() { r.finish(span, start, "check_compatibility", err) }()

	version, err := r.lifecycle.ResolveVersionLabel(ctx, req.GroupID, req.ArtifactID, req.Version)
	if err != nil {
		return CompatibilityResult{}, err
	}
	meta, err := r.store.GetArtifactVersionMetadata(ctx, req.GroupID, req.ArtifactID, version)
	if err != nil {
		return CompatibilityResult{}, err
	}
	if req.ArtifactType == "" {
		req.ArtifactType = meta.ArtifactType
	}

	resolved, err := r.resolver.Resolve(ctx, req.GroupID, req.References)
	if err != nil {
		return CompatibilityResult{}, err
	}

	err = r.rules.ApplyRulesCompat(ctx, rules.Request{
		GroupID:            req.GroupID,
		ArtifactID:         req.ArtifactID,
		ArtifactType:       req.ArtifactType,
		Content:            req.Content,
		References:         req.References,
		ResolvedReferences: resolved,
	}, version)

	var violation *rules.RuleViolationError
	if errors.As(err, &violation) {
		return CompatibilityResult{Compatible: false, Violations: violation.Causes}, nil
	}
	if err != nil {
		return CompatibilityResult{}, err
	}
	return CompatibilityResult{Compatible: true}, nil
}
