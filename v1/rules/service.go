// Package rules applies the configured rules to content before it is stored.
//
// Rules run in a fixed order (VALIDITY, COMPATIBILITY, INTEGRITY, then any
// other type by name) and evaluation stops at the first violation. Nothing is
// persisted by this package, so a rejected request needs no rollback.
package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/artifacttype"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// Logger is the logging interface used by the rules service.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Debug(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	Fatal(msg string, err error, fields ...map[string]interface{})
}

// ApplicationType tells whether rules run for a new artifact or a new version.
type ApplicationType string

const (
	Create ApplicationType = "CREATE"
	Update ApplicationType = "UPDATE"
)

// Config holds rules applied when neither the artifact nor the registry has
// any rule configured.
type Config struct {
	DefaultGlobalRules map[types.RuleType]string `yaml:"defaultGlobalRules"`
}

// Store is the slice of storage.Gateway used by the rules service.
type Store interface {
	GetArtifactRules(ctx context.Context, groupID, artifactID string) ([]storage.RuleConfig, error)
	GetArtifactRule(ctx context.Context, groupID, artifactID string, ruleType types.RuleType) (*storage.RuleConfig, error)
	GetGlobalRules(ctx context.Context) ([]storage.RuleConfig, error)
	GetGlobalRule(ctx context.Context, ruleType types.RuleType) (*storage.RuleConfig, error)
	GetArtifactVersions(ctx context.Context, groupID, artifactID string) ([]string, error)
	GetArtifactVersion(ctx context.Context, groupID, artifactID, version string) (*storage.StoredArtifact, error)
}

// ProviderSource selects the format provider of an artifact type.
type ProviderSource interface {
	Provider(artifactType string) (artifacttype.Provider, error)
}

// ReferenceResolver resolves the references of existing versions.
type ReferenceResolver interface {
	Resolve(ctx context.Context, groupID string, refs []storage.ArtifactReference) (map[string]content.Handle, error)
}

// Request is the content under test.
type Request struct {
	GroupID            string
	ArtifactID         string
	ArtifactType       string
	Content            content.Handle
	References         []storage.ArtifactReference
	ResolvedReferences map[string]content.Handle
}

// Applier is what the registry needs from the rules service.
//
//go:generate mockgen -source=service.go -destination=mock_applier.go -package=rules -exclude_interfaces=Logger,Store,ProviderSource,ReferenceResolver
type Applier interface {
	ApplyRules(ctx context.Context, req Request, applicationType ApplicationType) error
	ApplyRule(ctx context.Context, req Request, rule storage.RuleConfig, applicationType ApplicationType) error
	ApplyRulesForVersion(ctx context.Context, req Request, version string) error
	ApplyRulesCompat(ctx context.Context, req Request, version string) error
}

// Service is the default Applier.
type Service struct {
	cfg       Config
	store     Store
	providers ProviderSource
	resolver  ReferenceResolver
	logger    Logger
}

// NewService creates a rules service.
func NewService(cfg Config, store Store, providers ProviderSource, resolver ReferenceResolver, logger Logger) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		providers: providers,
		resolver:  resolver,
		logger:    logger,
	}
}

// versionSelector loads the existing versions a COMPATIBILITY check compares against.
type versionSelector func(ctx context.Context) ([]artifacttype.VersionContent, error)

func noVersions(context.Context) ([]artifacttype.VersionContent, error) {
	return nil, nil
}

// ApplyRules applies the effective rule set. On Create only global (or
// default) rules apply since the artifact has none yet.
func (s *Service) ApplyRules(ctx context.Context, req Request, applicationType ApplicationType) error {
	rules, err := s.effectiveRules(ctx, req, applicationType)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	var current versionSelector = noVersions
	if applicationType == Update {
		current = s.allVersions(req)
	}
	return s.applyAll(ctx, req, rules, current)
}

// ApplyRule applies a single rule with an explicit configuration.
func (s *Service) ApplyRule(ctx context.Context, req Request, rule storage.RuleConfig, applicationType ApplicationType) error {
	var current versionSelector = noVersions
	if applicationType == Update {
		current = s.allVersions(req)
	}
	return s.apply(ctx, req, rule, current)
}

// ApplyRulesForVersion applies the effective rule set with version as the only
// existing version.
func (s *Service) ApplyRulesForVersion(ctx context.Context, req Request, version string) error {
	rules, err := s.effectiveRules(ctx, req, Update)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	return s.applyAll(ctx, req, rules, s.singleVersion(req, version))
}

// ApplyRulesCompat checks only compatibility against version, using the
// artifact's COMPATIBILITY rule, else the global one. Without either the
// content is compatible.
func (s *Service) ApplyRulesCompat(ctx context.Context, req Request, version string) error {
	rule, err := s.store.GetArtifactRule(ctx, req.GroupID, req.ArtifactID, types.RuleCompatibility)
	if apperr.IsNotFound(err) {
		rule, err = s.store.GetGlobalRule(ctx, types.RuleCompatibility)
	}
	if apperr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load compatibility rule: %w", err)
	}
	return s.apply(ctx, req, *rule, s.singleVersion(req, version))
}

// effectiveRules returns artifact rules (Update only), else global rules,
// else the configured defaults, in evaluation order.
func (s *Service) effectiveRules(ctx context.Context, req Request, applicationType ApplicationType) ([]storage.RuleConfig, error) {
	var rules []storage.RuleConfig
	if applicationType == Update {
		artifactRules, err := s.store.GetArtifactRules(ctx, req.GroupID, req.ArtifactID)
		if err != nil && !apperr.IsNotFound(err) {
			return nil, fmt.Errorf("failed to load artifact rules: %w", err)
		}
		rules = artifactRules
	}
	if len(rules) == 0 {
		globalRules, err := s.store.GetGlobalRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load global rules: %w", err)
		}
		rules = globalRules
	}
	if len(rules) == 0 {
		for ruleType, cfg := range s.cfg.DefaultGlobalRules {
			rules = append(rules, storage.RuleConfig{Type: ruleType, Configuration: cfg})
		}
	}
	return orderRules(rules), nil
}

func orderRules(rules []storage.RuleConfig) []storage.RuleConfig {
	byType := make(map[types.RuleType]storage.RuleConfig, len(rules))
	ruleTypes := make([]types.RuleType, 0, len(rules))
	for _, r := range rules {
		if _, dup := byType[r.Type]; !dup {
			ruleTypes = append(ruleTypes, r.Type)
		}
		byType[r.Type] = r
	}
	ordered := make([]storage.RuleConfig, 0, len(ruleTypes))
	types.SortRuleTypes(ruleTypes)
	for _, t := range ruleTypes {
		ordered = append(ordered, byType[t])
	}
	return ordered
}

func (s *Service) applyAll(ctx context.Context, req Request, rules []storage.RuleConfig, current versionSelector) error {
	for _, rule := range rules {
		if err := s.apply(ctx, req, rule, current); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) apply(ctx context.Context, req Request, rule storage.RuleConfig, current versionSelector) error {
	provider, err := s.providers.Provider(req.ArtifactType)
	if err != nil {
		return err
	}
	check, ok := provider.RuleChecker(rule.Type)
	if !ok {
		s.logger.Warn("rule type not supported for artifact type, skipping", nil, map[string]interface{}{
			"rule":         string(rule.Type),
			"artifactType": req.ArtifactType,
		})
		return nil
	}

	rc := artifacttype.RuleContext{
		GroupID:            req.GroupID,
		ArtifactID:         req.ArtifactID,
		ArtifactType:       req.ArtifactType,
		Configuration:      rule.Configuration,
		UpdatedContent:     req.Content,
		References:         req.References,
		ResolvedReferences: req.ResolvedReferences,
	}
	if rule.Type == types.RuleCompatibility && !strings.EqualFold(strings.TrimSpace(rule.Configuration), artifacttype.CompatibilityNone) {
		rc.CurrentContent, err = current(ctx)
		if err != nil {
			return err
		}
	}

	s.logger.Debug("applying rule", nil, map[string]interface{}{
		"rule":       string(rule.Type),
		"config":     rule.Configuration,
		"groupId":    req.GroupID,
		"artifactId": req.ArtifactID,
	})

	err = check(rc)
	var verr *artifacttype.ViolationError
	if errors.As(err, &verr) {
		return &RuleViolationError{RuleType: rule.Type, Causes: verr.Causes}
	}
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return err
		}
		return fmt.Errorf("failed to apply %s rule: %w", rule.Type, err)
	}
	return nil
}

// allVersions selects every existing non-DISABLED version, oldest first.
func (s *Service) allVersions(req Request) versionSelector {
	return func(ctx context.Context) ([]artifacttype.VersionContent, error) {
		labels, err := s.store.GetArtifactVersions(ctx, req.GroupID, req.ArtifactID)
		if apperr.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list versions: %w", err)
		}
		out := make([]artifacttype.VersionContent, 0, len(labels))
		for _, label := range labels {
			vc, ok, err := s.loadVersion(ctx, req.GroupID, req.ArtifactID, label)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, vc)
			}
		}
		return out, nil
	}
}

func (s *Service) singleVersion(req Request, version string) versionSelector {
	return func(ctx context.Context) ([]artifacttype.VersionContent, error) {
		stored, err := s.store.GetArtifactVersion(ctx, req.GroupID, req.ArtifactID, version)
		if err != nil {
			return nil, err
		}
		resolved, err := s.resolver.Resolve(ctx, req.GroupID, stored.References)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve references of version %s: %w", version, err)
		}
		return []artifacttype.VersionContent{{Content: stored.Content, Resolved: resolved}}, nil
	}
}

func (s *Service) loadVersion(ctx context.Context, groupID, artifactID, version string) (artifacttype.VersionContent, bool, error) {
	stored, err := s.store.GetArtifactVersion(ctx, groupID, artifactID, version)
	if err != nil {
		return artifacttype.VersionContent{}, false, fmt.Errorf("failed to load version %s: %w", version, err)
	}
	if stored.State == types.StateDisabled {
		return artifacttype.VersionContent{}, false, nil
	}
	resolved, err := s.resolver.Resolve(ctx, groupID, stored.References)
	if err != nil {
		return artifacttype.VersionContent{}, false, fmt.Errorf("failed to resolve references of version %s: %w", version, err)
	}
	return artifacttype.VersionContent{Content: stored.Content, Resolved: resolved}, true, nil
}
