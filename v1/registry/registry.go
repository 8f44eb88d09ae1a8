// Package registry is the entry point of the schema registry core.
//
// A transport layer (REST, Confluent-compatible API, CLI) calls Registry and
// maps the apperr kind of any returned error to its own outcome. Registry
// itself is stateless: all state lives behind storage.Gateway.
//
// Registration runs a fixed pipeline:
//
//	rate limit -> existence probe -> size/count limits -> reference resolution
//	-> rules -> content identity -> storage -> event -> metrics
//
// Nothing is written before the rules pass, so a rejected request needs no
// rollback. Content lookup is a separate operation; callers wanting
// "register or return existing" call LookupByContent first.
package registry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/artifacttype"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/events"
	"github.com/Aleph-Alpha/schema-registry/v1/lifecycle"
	"github.com/Aleph-Alpha/schema-registry/v1/limits"
	"github.com/Aleph-Alpha/schema-registry/v1/metrics"
	"github.com/Aleph-Alpha/schema-registry/v1/rules"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/tracer"
)

// Logger is the logging interface used by the registry.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Debug(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	Fatal(msg string, err error, fields ...map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// ReferenceResolver resolves reference declarations to content.
type ReferenceResolver interface {
	Resolve(ctx context.Context, groupID string, refs []storage.ArtifactReference) (map[string]content.Handle, error)
}

// ProviderSource selects format providers. *artifacttype.Factory implements it.
type ProviderSource interface {
	Provider(artifactType string) (artifacttype.Provider, error)
	Canonicalizer(artifactType string) (content.Canonicalizer, error)
}

// Config holds registry-wide behaviour switches.
type Config struct {
	// CanonicalHashModeEnabled makes every lookup behave as if normalize was requested.
	CanonicalHashModeEnabled bool `yaml:"canonicalHashModeEnabled"`

	// DefaultArtifactType is used when a new artifact is registered without a type.
	DefaultArtifactType string `yaml:"defaultArtifactType"`
}

// Deps are the collaborators of a Registry. Metrics, Tracer and Publisher
// are optional.
type Deps struct {
	Store     storage.Gateway
	Providers ProviderSource
	Resolver  ReferenceResolver
	Rules     rules.Applier
	Limits    *limits.Checker
	Publisher events.Publisher
	Metrics   metrics.Recorder
	Tracer    *tracer.Tracer
	Logger    Logger
}

// Registry implements the operations exposed to the transport layer.
type Registry struct {
	cfg       Config
	store     storage.Gateway
	providers ProviderSource
	identity  *content.Identity
	resolver  ReferenceResolver
	rules     rules.Applier
	lifecycle *lifecycle.Lifecycle
	limits    *limits.Checker
	publisher events.Publisher
	metrics   metrics.Recorder
	tracer    *tracer.Tracer
	logger    Logger
}

// New creates a Registry.
func New(cfg Config, deps Deps) *Registry {
	if cfg.DefaultArtifactType == "" {
		cfg.DefaultArtifactType = "AVRO"
	}
	r := &Registry{
		cfg:       cfg,
		store:     deps.Store,
		providers: deps.Providers,
		identity:  content.NewIdentity(deps.Providers),
		resolver:  deps.Resolver,
		rules:     deps.Rules,
		lifecycle: lifecycle.New(deps.Store),
		limits:    deps.Limits,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		logger:    deps.Logger,
	}
	if r.publisher == nil {
		r.publisher = events.Noop{}
	}
	if r.metrics == nil {
		r.metrics = metrics.Noop{}
	}
	if r.limits == nil {
		r.limits = limits.NewChecker(limits.DefaultConfig(), deps.Store, nil, deps.Logger)
	}
	return r
}

// startSpan opens a span for operation. Without a tracer the returned span
// is a no-op.
func (r *Registry) startSpan(ctx context.Context, operation string, attrs map[string]interface{}) (context.Context, trace.Span) {
	if r.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	ctx, span := r.tracer.StartSpan(ctx, "registry."+operation)
	r.tracer.SetAttributes(span, attrs)
	return ctx, span
}

// finish records err on span, ends it and observes the operation duration.
func (r *Registry) finish(span trace.Span, start time.Time, operation string, err error) {
	if err != nil && r.tracer != nil {
		r.tracer.RecordErrorOnSpan(span, err)
	}
	span.End()
	r.metrics.RecordOperationDuration(start, operation)
}

func groupOrDefault(groupID string) string {
	if groupID == "" {
		return storage.DefaultGroupID
	}
	return groupID
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperr.KindOf(err))
}
