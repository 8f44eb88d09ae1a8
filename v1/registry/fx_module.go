package registry

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/schema-registry/v1/artifacttype"
	"github.com/Aleph-Alpha/schema-registry/v1/events"
	"github.com/Aleph-Alpha/schema-registry/v1/limits"
	"github.com/Aleph-Alpha/schema-registry/v1/metrics"
	"github.com/Aleph-Alpha/schema-registry/v1/references"
	"github.com/Aleph-Alpha/schema-registry/v1/rules"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/tracer"
)

// ReferenceConcurrency bounds parallel reference fetches per resolution level.
const ReferenceConcurrency = 8

// FXModule provides the format providers, reference resolver, rules service
// and the Registry. Storage, limits and the ambient modules are provided
// separately.
var FXModule = fx.Module("registry",
	fx.Provide(
		artifacttype.NewDefaultFactory,
		NewResolverWithDI,
		NewRulesWithDI,
		NewWithDI,
	),
)

// NewResolverWithDI creates the reference resolver over the store.
func NewResolverWithDI(store storage.Gateway) *references.Resolver {
	return references.NewResolver(store, ReferenceConcurrency)
}

// RulesParams groups the dependencies of NewRulesWithDI.
type RulesParams struct {
	fx.In

	Config    rules.Config
	Store     storage.Gateway
	Providers *artifacttype.Factory
	Resolver  *references.Resolver
	Logger    Logger
}

// NewRulesWithDI creates the rules service as a rules.Applier.
func NewRulesWithDI(params RulesParams) rules.Applier {
	return rules.NewService(params.Config, params.Store, params.Providers, params.Resolver, params.Logger)
}

// Params groups the dependencies of NewWithDI.
type Params struct {
	fx.In

	Config    Config
	Store     storage.Gateway
	Providers *artifacttype.Factory
	Resolver  *references.Resolver
	Rules     rules.Applier
	Limits    *limits.Checker
	Publisher events.Publisher `optional:"true"`
	Metrics   metrics.Recorder `optional:"true"`
	Tracer    *tracer.Tracer   `optional:"true"`
	Logger    Logger
}

// NewWithDI creates the Registry from injected dependencies.
func NewWithDI(params Params) *Registry {
	return New(params.Config, Deps{
		Store:     params.Store,
		Providers: params.Providers,
		Resolver:  params.Resolver,
		Rules:     params.Rules,
		Limits:    params.Limits,
		Publisher: params.Publisher,
		Metrics:   params.Metrics,
		Tracer:    params.Tracer,
		Logger:    params.Logger,
	})
}
