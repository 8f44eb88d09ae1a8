package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/events"
	"github.com/Aleph-Alpha/schema-registry/v1/limits"
	"github.com/Aleph-Alpha/schema-registry/v1/rules"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
)

// RegisterRequest is the input of CreateOrUpdate.
type RegisterRequest struct {
	GroupID    string
	ArtifactID string
	// ArtifactType may be empty: updates inherit the artifact's type and
	// creates fall back to Config.DefaultArtifactType.
	ArtifactType string
	Content      content.Handle
	References   []storage.ArtifactReference
	// Version is an explicit label for the new version. Empty lets storage assign one.
	Version  string
	Metadata *storage.EditableMetadata
	// Client identifies the caller for request rate limiting. Empty uses the group.
	Client string
}

// CreateOrUpdate registers content under the artifact, creating the artifact
// if it does not exist yet. It does not deduplicate: identical content
// registered twice yields two versions.
func (r *Registry) CreateOrUpdate(ctx context.Context, req RegisterRequest) (md *storage.VersionMetadata, err error) {
	start := time.Now()
	req.GroupID = groupOrDefault(req.GroupID)
	ctx, span := r.startSpan(ctx, "CreateOrUpdate", map[string]interface{}{
		"group.id":    req.GroupID,
		"artifact.id": req.ArtifactID,
	})
	mode := string(rules.Create)
	defer func() {
		r.metrics.ObserveRegistration(req.ArtifactType, strings.ToLower(mode), outcome(err))
		r.finish(span, start, "create_or_update", err)
	}()

	if err := r.checkRequestRate(ctx, req.GroupID, req.Client); err != nil {
		return nil, err
	}

	existing, err := r.store.GetArtifactMetadata(ctx, req.GroupID, req.ArtifactID, storage.DefaultBehavior)
	switch {
	case apperr.IsNotFound(err):
		existing = nil
	case err != nil:
		return nil, err
	}
	applicationType := rules.Create
	if existing != nil {
		applicationType = rules.Update
	}
	mode = string(applicationType)

	if err := r.checkLimits(ctx, req.GroupID, req.ArtifactID, existing != nil, req.Content.Size(), req.Metadata); err != nil {
		return nil, err
	}

	if req.ArtifactType, err = r.artifactType(req.ArtifactType, existing); err != nil {
		return nil, err
	}
	if _, err := r.providers.Provider(req.ArtifactType); err != nil {
		return nil, err
	}

	resolved, err := r.resolver.Resolve(ctx, req.GroupID, req.References)
	if err != nil {
		return nil, err
	}

	rulesReq := rules.Request{
		GroupID:            req.GroupID,
		ArtifactID:         req.ArtifactID,
		ArtifactType:       req.ArtifactType,
		Content:            req.Content,
		References:         req.References,
		ResolvedReferences: resolved,
	}
	if err := r.rules.ApplyRules(ctx, rulesReq, applicationType); err != nil {
		var violation *rules.RuleViolationError
		if errors.As(err, &violation) {
			r.metrics.ObserveRuleViolation(string(violation.RuleType))
		}
		return nil, rules.Classify(err)
	}

	entry, err := r.identity.NewEntry(req.Content, req.ArtifactType, storage.ContentReferences(req.References), resolved)
	if err != nil {
		r.logger.Debug("content not canonicalizable, canonical hash falls back to raw hash", err, map[string]interface{}{
			"groupId":    req.GroupID,
			"artifactId": req.ArtifactID,
		})
	}

	nv := storage.NewVersion{
		GroupID:      req.GroupID,
		ArtifactID:   req.ArtifactID,
		Version:      req.Version,
		ArtifactType: req.ArtifactType,
		Entry:        entry,
		References:   req.References,
		Metadata:     req.Metadata,
	}
	eventType := events.ArtifactCreated
	if applicationType == rules.Create {
		md, err = r.store.CreateArtifact(ctx, nv)
	} else {
		md, err = r.store.UpdateArtifact(ctx, nv)
		eventType = events.ArtifactVersionCreated
	}
	if err != nil {
		return nil, err
	}

	if perr := r.publisher.Publish(ctx, events.NewVersionEvent(eventType, md)); perr != nil {
		r.logger.WarnWithContext(ctx, "failed to publish registry event", perr, map[string]interface{}{
			"groupId":    md.GroupID,
			"artifactId": md.ArtifactID,
			"version":    md.Version,
		})
	}

	r.logger.InfoWithContext(ctx, "artifact version registered", nil, map[string]interface{}{
		"groupId":    md.GroupID,
		"artifactId": md.ArtifactID,
		"version":    md.Version,
		"globalId":   md.GlobalID,
		"mode":       mode,
	})
	return md, nil
}

func (r *Registry) artifactType(requested string, existing *storage.ArtifactMetadata) (string, error) {
	requested = strings.ToUpper(strings.TrimSpace(requested))
	if existing == nil {
		if requested == "" {
			return r.cfg.DefaultArtifactType, nil
		}
		return requested, nil
	}
	if requested == "" {
		return existing.ArtifactType, nil
	}
	if !strings.EqualFold(requested, existing.ArtifactType) {
		return "", apperr.New(apperr.KindUnprocessableContent,
			"artifact %s/%s has type %s, got %s", existing.GroupID, existing.ArtifactID, existing.ArtifactType, requested)
	}
	return existing.ArtifactType, nil
}

// LimitsRequest is the input of CheckLimits.
type LimitsRequest struct {
	GroupID    string
	ArtifactID string
	Size       int64
	Metadata   *storage.EditableMetadata
}

// CheckLimits runs the size, count and metadata checks a registration of
// req would run, without registering anything.
func (r *Registry) CheckLimits(ctx context.Context, req LimitsRequest) (err error) {
	start := time.Now()
	req.GroupID = groupOrDefault(req.GroupID)
	ctx, span := r.startSpan(ctx, "CheckLimits", map[string]interface{}{
		"group.id":    req.GroupID,
		"artifact.id": req.ArtifactID,
	})
	defer func() { r.finish(span, start, "check_limits", err) }()

	exists, err := r.artifactExists(ctx, req.GroupID, req.ArtifactID)
	if err != nil {
		return err
	}
	return r.checkLimits(ctx, req.GroupID, req.ArtifactID, exists, req.Size, req.Metadata)
}

func (r *Registry) checkLimits(ctx context.Context, groupID, artifactID string, exists bool, size int64, meta *storage.EditableMetadata) error {
	var err error
	if exists {
		err = r.limits.CheckVersionCreate(ctx, groupID, artifactID, size, meta)
	} else {
		err = r.limits.CheckArtifactCreate(ctx, size, meta)
	}
	r.observeLimit(err)
	return err
}

func (r *Registry) checkRequestRate(ctx context.Context, groupID, client string) error {
	key := client
	if key == "" {
		key = "group:" + groupID
	}
	err := r.limits.CheckRequestRate(ctx, key)
	r.observeLimit(err)
	return err
}

func (r *Registry) observeLimit(err error) {
	var lerr *limits.LimitExceededError
	if errors.As(err, &lerr) {
		r.metrics.ObserveLimitRejection(lerr.Limit)
	}
}
