package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/artifacttype"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/events"
	"github.com/Aleph-Alpha/schema-registry/v1/limits"
	"github.com/Aleph-Alpha/schema-registry/v1/logger"
	"github.com/Aleph-Alpha/schema-registry/v1/metrics"
	"github.com/Aleph-Alpha/schema-registry/v1/references"
	"github.com/Aleph-Alpha/schema-registry/v1/rules"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/tracer"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

const customerAvro = `{
  "type": "record",
  "name": "Customer",
  "namespace": "com.shop",
  "fields": [{"name": "id", "type": "string"}]
}`

const orderWithRefAvro = `{
  "type": "record",
  "name": "Order",
  "namespace": "com.shop",
  "fields": [{"name": "customer", "type": "com.shop.Customer"}]
}`

const orderInlinedAvro = `{
  "type": "record",
  "name": "Order",
  "namespace": "com.shop",
  "fields": [
    {"name": "customer", "type": {"type": "record", "name": "Customer", "fields": [{"name": "id", "type": "string"}]}}
  ]
}`

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	registry  *Registry
	store     *storage.MemoryStore
	publisher *recordingPublisher
	metrics   *metrics.Metrics
}

type option func(*Config, *Deps)

func withLimits(cfg limits.Config) option {
	return func(_ *Config, d *Deps) {
		d.Limits = limits.NewChecker(cfg, d.Store, limits.NewRateLimiter(cfg, nil, logger.NewNop()), logger.NewNop())
	}
}

func withRules(a rules.Applier) option {
	return func(_ *Config, d *Deps) { d.Rules = a }
}

func withTracer(tr *tracer.Tracer) option {
	return func(_ *Config, d *Deps) { d.Tracer = tr }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()

	store := storage.NewMemoryStore()
	factory := artifacttype.NewDefaultFactory()
	resolver := references.NewResolver(store, 4)
	log := logger.NewNop()
	publisher := &recordingPublisher{}
	m := metrics.NewMetrics(metrics.Config{ServiceName: "test"})

	cfg := Config{}
	deps := Deps{
		Store:     store,
		Providers: factory,
		Resolver:  resolver,
		Rules:     rules.NewService(rules.Config{}, store, factory, resolver, log),
		Publisher: publisher,
		Metrics:   m,
		Logger:    log,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	return &fixture{registry: New(cfg, deps), store: store, publisher: publisher, metrics: m}
}

func (f *fixture) register(t *testing.T, artifactID, artifactType, body string, refs ...storage.ArtifactReference) *storage.VersionMetadata {
	t.Helper()
	md, err := f.registry.CreateOrUpdate(context.Background(), RegisterRequest{
		ArtifactID:   artifactID,
		ArtifactType: artifactType,
		Content:      content.FromString(body),
		References:   refs,
	})
	require.NoError(t, err)
	return md
}

func TestCreateOrUpdate_CreatesThenAppends(t *testing.T) {
	f := newFixture(t)

	first := f.register(t, "customer", types.Avro, customerAvro)
	assert.Equal(t, storage.DefaultGroupID, first.GroupID)
	assert.Equal(t, "1", first.Version)

	second, err := f.registry.CreateOrUpdate(context.Background(), RegisterRequest{
		ArtifactID: "customer",
		Content:    content.FromString(customerAvro),
	})
	require.NoError(t, err)
	assert.Equal(t, "2", second.Version, "registration does not deduplicate")
	assert.Equal(t, types.Avro, second.ArtifactType, "type inherited from the artifact")

	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, events.ArtifactCreated, f.publisher.events[0].Type)
	assert.Equal(t, events.ArtifactVersionCreated, f.publisher.events[1].Type)
	assert.Equal(t, "default/customer", f.publisher.events[1].Key())
}

func TestCreateOrUpdate_DefaultArtifactType(t *testing.T) {
	f := newFixture(t)

	md, err := f.registry.CreateOrUpdate(context.Background(), RegisterRequest{
		ArtifactID: "customer",
		Content:    content.FromString(customerAvro),
	})
	require.NoError(t, err)
	assert.Equal(t, types.Avro, md.ArtifactType)
}

func TestCreateOrUpdate_TypeMismatch(t *testing.T) {
	f := newFixture(t)
	f.register(t, "customer", types.Avro, customerAvro)

	_, err := f.registry.CreateOrUpdate(context.Background(), RegisterRequest{
		ArtifactID:   "customer",
		ArtifactType: types.JSON,
		Content:      content.FromString(`{"type":"object"}`),
	})
	assert.ErrorIs(t, err, apperr.ErrUnprocessableContent)
}

func TestCreateOrUpdate_UnsupportedType(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.CreateOrUpdate(context.Background(), RegisterRequest{
		ArtifactID:   "spec",
		ArtifactType: "OPENAPI",
		Content:      content.FromString(`openapi: 3.0.0`),
	})
	assert.ErrorIs(t, err, apperr.ErrUnsupportedType)

	exists, err := f.registry.DoesArtifactExist(context.Background(), "", "spec")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateOrUpdate_MissingReferencePersistsNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.CreateOrUpdate(context.Background(), RegisterRequest{
		ArtifactID:   "order",
		ArtifactType: types.Avro,
		Content:      content.FromString(orderWithRefAvro),
		References:   []storage.ArtifactReference{{ArtifactID: "customer", Version: "1", Name: "com.shop.Customer"}},
	})
	assert.ErrorIs(t, err, apperr.ErrReferenceNotFound)
	assert.Equal(t, apperr.KindReferenceNotFound, apperr.KindOf(err))

	exists, err := f.registry.DoesArtifactExist(context.Background(), "", "order")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, f.publisher.events)

	total, err := f.store.CountTotalVersions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreateOrUpdate_ValidityBeforeCompatibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SetGlobalRule(ctx, storage.RuleConfig{Type: types.RuleValidity, Configuration: artifacttype.ValidityFull}))
	require.NoError(t, f.store.SetGlobalRule(ctx, storage.RuleConfig{Type: types.RuleCompatibility, Configuration: artifacttype.CompatibilityBackward}))

	f.register(t, "customer", types.Avro, customerAvro)

	// Neither valid Avro nor compatible with version 1.
	_, err := f.registry.CreateOrUpdate(ctx, RegisterRequest{
		ArtifactID: "customer",
		Content:    content.FromString(`{"type":"record","name":"Customer","fields":[{"name":"id","type":"nope"},{"name":"x","type":"int"}]}`),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUnprocessableContent)
	assert.NotErrorIs(t, err, apperr.ErrConflict)

	var violation *rules.RuleViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, types.RuleValidity, violation.RuleType)
}

func TestCreateOrUpdate_CompatibilityViolationIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SetGlobalRule(ctx, storage.RuleConfig{Type: types.RuleCompatibility, Configuration: artifacttype.CompatibilityBackward}))
	f.register(t, "customer", types.Avro, customerAvro)

	_, err := f.registry.CreateOrUpdate(ctx, RegisterRequest{
		ArtifactID: "customer",
		Content:    content.FromString(`{"type":"record","name":"Customer","namespace":"com.shop","fields":[{"name":"id","type":"string"},{"name":"tier","type":"int"}]}`),
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	versions, err := f.store.GetArtifactVersions(ctx, storage.DefaultGroupID, "customer")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, versions)
}

func TestCreateOrUpdate_UnparsableUnderCompatibilityIsUnprocessable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SetGlobalRule(ctx, storage.RuleConfig{Type: types.RuleCompatibility, Configuration: artifacttype.CompatibilityBackward}))
	f.register(t, "customer", types.Avro, customerAvro)

	_, err := f.registry.CreateOrUpdate(ctx, RegisterRequest{
		ArtifactID:   "customer",
		ArtifactType: types.Avro,
		Content:      content.FromString(`{not json`),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUnprocessableContent)
	assert.NotErrorIs(t, err, apperr.ErrConflict)

	versions, err := f.store.GetArtifactVersions(ctx, storage.DefaultGroupID, "customer")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestCreateOrUpdate_LimitRejectsBeforeRules(t *testing.T) {
	ctrl := gomock.NewController(t)
	applier := rules.NewMockApplier(ctrl)

	cfg := limits.DefaultConfig()
	cfg.MaxVersionsPerArtifact = 1
	f := newFixture(t, withRules(applier), withLimits(cfg))

	applier.EXPECT().ApplyRules(gomock.Any(), gomock.Any(), rules.Create).Return(nil).Times(1)
	f.register(t, "customer", types.Avro, customerAvro)

	// No expectation for the update: any rule invocation fails the test.
	_, err := f.registry.CreateOrUpdate(context.Background(), RegisterRequest{
		ArtifactID: "customer",
		Content:    content.FromString(customerAvro),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrLimitExceeded)

	var lerr *limits.LimitExceededError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, limits.LimitVersionsPerArtifact, lerr.Limit)
}

func TestCreateOrUpdate_RequestRateLimit(t *testing.T) {
	cfg := limits.DefaultConfig()
	cfg.MaxRequestsPerSecond = 1
	cfg.RequestBurst = 1
	f := newFixture(t, withLimits(cfg))

	req := RegisterRequest{
		ArtifactID:   "customer",
		ArtifactType: types.Avro,
		Content:      content.FromString(customerAvro),
		Client:       "team-a",
	}
	_, err := f.registry.CreateOrUpdate(context.Background(), req)
	require.NoError(t, err)

	_, err = f.registry.CreateOrUpdate(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrLimitExceeded)

	req.Client = "team-b"
	_, err = f.registry.CreateOrUpdate(context.Background(), req)
	assert.NoError(t, err)
}

func TestCreateOrUpdate_PublishFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	md := f.register(t, "customer", types.Avro, customerAvro)
	assert.Equal(t, "1", md.Version)
}

func TestCreateOrUpdate_CanonicalHashFallsBackToRawHash(t *testing.T) {
	f := newFixture(t)

	// No rules configured, so unparsable content is accepted.
	md := f.register(t, "broken", types.Avro, `{"type":`)
	assert.Equal(t, md.ContentHash, md.CanonicalHash)
}

func TestCheckLimits(t *testing.T) {
	cfg := limits.DefaultConfig()
	cfg.MaxSchemaSizeBytes = 10
	cfg.MaxVersionsPerArtifact = 1
	f := newFixture(t, withLimits(cfg))
	ctx := context.Background()

	assert.NoError(t, f.registry.CheckLimits(ctx, LimitsRequest{ArtifactID: "customer", Size: 10}))
	assert.ErrorIs(t, f.registry.CheckLimits(ctx, LimitsRequest{ArtifactID: "customer", Size: 11}), apperr.ErrLimitExceeded)

	_, err := f.store.CreateArtifact(ctx, storage.NewVersion{
		GroupID:      storage.DefaultGroupID,
		ArtifactID:   "customer",
		ArtifactType: types.Avro,
		Entry:        content.Entry{Content: content.FromString("{}"), ContentHash: "h", CanonicalHash: "h"},
	})
	require.NoError(t, err)

	err = f.registry.CheckLimits(ctx, LimitsRequest{ArtifactID: "customer", Size: 1})
	var lerr *limits.LimitExceededError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, limits.LimitVersionsPerArtifact, lerr.Limit)
}

func TestOperationsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	f := newFixture(t, withTracer(tracer.NewWithProvider(tp, logger.NewNop())))
	f.register(t, "customer", types.Avro, customerAvro)
	_, err := f.registry.ResolveVersionLabel(context.Background(), "", "customer", "abc")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "registry.CreateOrUpdate", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "registry.ResolveVersionLabel", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
