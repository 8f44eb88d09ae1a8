package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/artifacttype"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/logger"
	"github.com/Aleph-Alpha/schema-registry/v1/references"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

const (
	stringField  = `{"type":"object","properties":{"a":{"type":"string"}}}`
	integerField = `{"type":"object","properties":{"a":{"type":"integer"}}}`
	brokenJSON   = `{"type":"object","properties":`
)

type fixture struct {
	store   *storage.MemoryStore
	service *Service
}

func newFixture(cfg Config) *fixture {
	store := storage.NewMemoryStore()
	return &fixture{
		store:   store,
		service: NewService(cfg, store, artifacttype.NewDefaultFactory(), references.NewResolver(store, 0), logger.NewNop()),
	}
}

func (f *fixture) addVersion(t *testing.T, artifactID, body string) {
	t.Helper()
	h := content.FromString(body)
	v := storage.NewVersion{
		GroupID:      "g",
		ArtifactID:   artifactID,
		ArtifactType: types.JSON,
		Entry:        content.Entry{Content: h, ContentHash: content.Digest(h), CanonicalHash: content.Digest(h)},
	}
	if _, err := f.store.CreateArtifact(context.Background(), v); err != nil {
		_, err = f.store.UpdateArtifact(context.Background(), v)
		require.NoError(t, err)
	}
}

func jsonRequest(artifactID, body string) Request {
	return Request{
		GroupID:      "g",
		ArtifactID:   artifactID,
		ArtifactType: types.JSON,
		Content:      content.FromString(body),
	}
}

func violationOf(t *testing.T, err error) *RuleViolationError {
	t.Helper()
	var v *RuleViolationError
	require.ErrorAs(t, err, &v)
	return v
}

func TestApplyRules_NoRulesAcceptsAnything(t *testing.T) {
	f := newFixture(Config{})
	assert.NoError(t, f.service.ApplyRules(context.Background(), jsonRequest("a", brokenJSON), Create))
}

func TestApplyRules_DefaultGlobalRules(t *testing.T) {
	f := newFixture(Config{DefaultGlobalRules: map[types.RuleType]string{types.RuleValidity: "FULL"}})

	err := f.service.ApplyRules(context.Background(), jsonRequest("a", brokenJSON), Create)
	v := violationOf(t, err)
	assert.Equal(t, types.RuleValidity, v.RuleType)
	assert.True(t, errors.Is(err, apperr.ErrUnprocessableContent))
	assert.Equal(t, apperr.KindUnprocessableContent, apperr.KindOf(Classify(err)))
}

func TestApplyRules_ValidityRunsBeforeCompatibility(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()
	require.NoError(t, f.store.SetGlobalRule(ctx, storage.RuleConfig{Type: types.RuleCompatibility, Configuration: "BACKWARD"}))
	require.NoError(t, f.store.SetGlobalRule(ctx, storage.RuleConfig{Type: types.RuleValidity, Configuration: "FULL"}))
	f.addVersion(t, "a", stringField)

	err := f.service.ApplyRules(ctx, jsonRequest("a", brokenJSON), Update)
	assert.Equal(t, types.RuleValidity, violationOf(t, err).RuleType)

	err = f.service.ApplyRules(ctx, jsonRequest("a", integerField), Update)
	assert.Equal(t, types.RuleCompatibility, violationOf(t, err).RuleType)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(Classify(err)))
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	assert.NoError(t, f.service.ApplyRules(ctx, jsonRequest("a", stringField), Update))
}

func TestApplyRules_CompatibilityPassesParseFailureThrough(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()
	require.NoError(t, f.store.SetGlobalRule(ctx, storage.RuleConfig{Type: types.RuleCompatibility, Configuration: "BACKWARD"}))
	f.addVersion(t, "a", stringField)

	err := f.service.ApplyRules(ctx, jsonRequest("a", brokenJSON), Update)
	require.Error(t, err)

	var v *RuleViolationError
	assert.False(t, errors.As(err, &v))
	assert.Equal(t, apperr.KindUnprocessableContent, apperr.KindOf(Classify(err)))
	assert.True(t, errors.Is(err, apperr.ErrUnprocessableContent))
}

func TestApplyRules_ArtifactRulesOverrideGlobalOnUpdate(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()
	require.NoError(t, f.store.SetGlobalRule(ctx, storage.RuleConfig{Type: types.RuleValidity, Configuration: "FULL"}))
	f.addVersion(t, "a", stringField)
	require.NoError(t, f.store.SetArtifactRule(ctx, "g", "a", storage.RuleConfig{Type: types.RuleCompatibility, Configuration: "NONE"}))

	assert.NoError(t, f.service.ApplyRules(ctx, jsonRequest("a", brokenJSON), Update))

	err := f.service.ApplyRules(ctx, jsonRequest("a", brokenJSON), Create)
	assert.Equal(t, types.RuleValidity, violationOf(t, err).RuleType)
}

func TestApplyRules_DisabledVersionsAreNotCompared(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()
	require.NoError(t, f.store.SetGlobalRule(ctx, storage.RuleConfig{Type: types.RuleCompatibility, Configuration: "BACKWARD_TRANSITIVE"}))
	f.addVersion(t, "a", integerField)
	f.addVersion(t, "a", stringField)

	err := f.service.ApplyRules(ctx, jsonRequest("a", stringField), Update)
	assert.Equal(t, types.RuleCompatibility, violationOf(t, err).RuleType)

	require.NoError(t, f.store.UpdateArtifactVersionState(ctx, "g", "a", "1", types.StateDisabled))
	assert.NoError(t, f.service.ApplyRules(ctx, jsonRequest("a", stringField), Update))
}

func TestApplyRule_Single(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	err := f.service.ApplyRule(ctx, jsonRequest("a", brokenJSON), storage.RuleConfig{Type: types.RuleValidity, Configuration: "SYNTAX_ONLY"}, Create)
	assert.Equal(t, types.RuleValidity, violationOf(t, err).RuleType)

	assert.NoError(t, f.service.ApplyRule(ctx, jsonRequest("a", brokenJSON), storage.RuleConfig{Type: types.RuleValidity, Configuration: "NONE"}, Create))
}

func TestApplyRulesForVersion(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()
	require.NoError(t, f.store.SetGlobalRule(ctx, storage.RuleConfig{Type: types.RuleCompatibility, Configuration: "BACKWARD"}))
	f.addVersion(t, "a", integerField)
	f.addVersion(t, "a", stringField)

	err := f.service.ApplyRulesForVersion(ctx, jsonRequest("a", stringField), "1")
	assert.Equal(t, types.RuleCompatibility, violationOf(t, err).RuleType)
	assert.NoError(t, f.service.ApplyRulesForVersion(ctx, jsonRequest("a", stringField), "2"))
}

func TestApplyRulesCompat(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()
	f.addVersion(t, "a", stringField)

	assert.NoError(t, f.service.ApplyRulesCompat(ctx, jsonRequest("a", integerField), "1"), "no compatibility rule configured")

	require.NoError(t, f.store.SetGlobalRule(ctx, storage.RuleConfig{Type: types.RuleCompatibility, Configuration: "BACKWARD"}))
	err := f.service.ApplyRulesCompat(ctx, jsonRequest("a", integerField), "1")
	assert.Equal(t, types.RuleCompatibility, violationOf(t, err).RuleType)

	require.NoError(t, f.store.SetArtifactRule(ctx, "g", "a", storage.RuleConfig{Type: types.RuleCompatibility, Configuration: "NONE"}))
	assert.NoError(t, f.service.ApplyRulesCompat(ctx, jsonRequest("a", integerField), "1"))
}

func TestApplyRules_UnsupportedType(t *testing.T) {
	f := newFixture(Config{DefaultGlobalRules: map[types.RuleType]string{types.RuleValidity: "FULL"}})
	req := jsonRequest("a", stringField)
	req.ArtifactType = "WSDL"

	err := f.service.ApplyRules(context.Background(), req, Create)
	assert.Equal(t, apperr.KindUnsupportedType, apperr.KindOf(err))
}

func TestOrderRules(t *testing.T) {
	ordered := orderRules([]storage.RuleConfig{
		{Type: "ZEBRA"},
		{Type: types.RuleIntegrity},
		{Type: types.RuleCompatibility},
		{Type: "ALPHA"},
		{Type: types.RuleValidity},
	})
	got := make([]types.RuleType, 0, len(ordered))
	for _, r := range ordered {
		got = append(got, r.Type)
	}
	assert.Equal(t, []types.RuleType{types.RuleValidity, types.RuleCompatibility, types.RuleIntegrity, "ALPHA", "ZEBRA"}, got)
}

func TestClassifyPassesOtherErrors(t *testing.T) {
	err := errors.New("storage down")
	assert.Same(t, err, Classify(err))
	assert.Nil(t, Classify(nil))
}
