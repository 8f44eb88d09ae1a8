package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

func newVersion(artifactID, body string) NewVersion {
	h := content.FromString(body)
	return NewVersion{
		GroupID:      DefaultGroupID,
		ArtifactID:   artifactID,
		ArtifactType: types.Avro,
		Entry: content.Entry{
			Content:       h,
			ContentHash:   content.Digest(h),
			CanonicalHash: "canonical-" + content.Digest(h),
		},
	}
}

func TestMemoryStoreCreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.CreateArtifact(ctx, newVersion("orders", `"string"`))
	require.NoError(t, err)
	assert.Equal(t, "1", first.Version)
	assert.Equal(t, types.StateEnabled, first.State)

	_, err = s.CreateArtifact(ctx, newVersion("orders", `"int"`))
	assert.ErrorIs(t, err, ErrArtifactAlreadyExists)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	second, err := s.UpdateArtifact(ctx, newVersion("orders", `"int"`))
	require.NoError(t, err)
	assert.Equal(t, "2", second.Version)
	assert.Greater(t, second.GlobalID, first.GlobalID)

	versions, err := s.GetArtifactVersions(ctx, DefaultGroupID, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, versions)

	_, err = s.UpdateArtifact(ctx, newVersion("missing", `"int"`))
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.True(t, apperr.IsNotFound(err))
}

func TestMemoryStoreExplicitLabels(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v := newVersion("orders", `"string"`)
	v.Version = "7"
	_, err := s.CreateArtifact(ctx, v)
	require.NoError(t, err)

	next, err := s.UpdateArtifact(ctx, newVersion("orders", `"long"`))
	require.NoError(t, err)
	assert.Equal(t, "8", next.Version)

	dup := newVersion("orders", `"bytes"`)
	dup.Version = "7"
	_, err = s.UpdateArtifact(ctx, dup)
	assert.ErrorIs(t, err, ErrVersionAlreadyExists)
}

func TestMemoryStoreLatestIsHighestLabel(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v := newVersion("orders", `"string"`)
	v.Version = "5"
	_, err := s.CreateArtifact(ctx, v)
	require.NoError(t, err)

	older := newVersion("orders", `"int"`)
	older.Version = "3"
	_, err = s.UpdateArtifact(ctx, older)
	require.NoError(t, err)

	md, err := s.GetArtifactMetadata(ctx, DefaultGroupID, "orders", DefaultBehavior)
	require.NoError(t, err)
	assert.Equal(t, "5", md.Version)

	versions, err := s.GetArtifactVersions(ctx, DefaultGroupID, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "5"}, versions)

	next, err := s.UpdateArtifact(ctx, newVersion("orders", `"long"`))
	require.NoError(t, err)
	assert.Equal(t, "6", next.Version)
}

func TestVersionOrder(t *testing.T) {
	assert.Equal(t, int64(12), VersionOrder("12"))
	assert.Equal(t, int64(0), VersionOrder("1.0.0"))
	assert.Equal(t, int64(0), VersionOrder("-2"))
}

func TestMemoryStoreContentSharing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, err := s.CreateArtifact(ctx, newVersion("a", `"string"`))
	require.NoError(t, err)
	b, err := s.CreateArtifact(ctx, newVersion("b", `"string"`))
	require.NoError(t, err)
	assert.Equal(t, a.ContentID, b.ContentID)
	assert.NotEqual(t, a.GlobalID, b.GlobalID)

	stored, err := s.GetArtifactVersion(ctx, DefaultGroupID, "b", "1")
	require.NoError(t, err)
	assert.Equal(t, `"string"`, stored.Content.String())
}

func TestMemoryStoreLookupByHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v := newVersion("orders", `"string"`)
	_, err := s.CreateArtifact(ctx, v)
	require.NoError(t, err)
	_, err = s.UpdateArtifact(ctx, newVersion("orders", `"string"`))
	require.NoError(t, err)

	md, err := s.GetArtifactVersionMetadataByContentHash(ctx, DefaultGroupID, "orders", false, v.Entry.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, "1", md.Version, "earliest matching version wins")

	md, err = s.GetArtifactVersionMetadataByContentHash(ctx, DefaultGroupID, "orders", true, v.Entry.CanonicalHash)
	require.NoError(t, err)
	assert.Equal(t, "1", md.Version)

	_, err = s.GetArtifactVersionMetadataByContentHash(ctx, DefaultGroupID, "orders", true, v.Entry.ContentHash)
	assert.ErrorIs(t, err, ErrVersionNotFound)

	byID, err := s.GetArtifactVersionMetadataByGlobalID(ctx, md.GlobalID)
	require.NoError(t, err)
	assert.Equal(t, "orders", byID.ArtifactID)

	_, err = s.GetArtifactVersionMetadataByGlobalID(ctx, 999)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestMemoryStoreLatestBehavior(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.CreateArtifact(ctx, newVersion("orders", `"string"`))
	require.NoError(t, err)
	_, err = s.UpdateArtifact(ctx, newVersion("orders", `"int"`))
	require.NoError(t, err)
	require.NoError(t, s.UpdateArtifactVersionState(ctx, DefaultGroupID, "orders", "2", types.StateDisabled))

	md, err := s.GetArtifactMetadata(ctx, DefaultGroupID, "orders", DefaultBehavior)
	require.NoError(t, err)
	assert.Equal(t, "2", md.Version)

	md, err = s.GetArtifactMetadata(ctx, DefaultGroupID, "orders", SkipDisabledLatest)
	require.NoError(t, err)
	assert.Equal(t, "1", md.Version)

	require.NoError(t, s.UpdateArtifactVersionState(ctx, DefaultGroupID, "orders", "1", types.StateDisabled))
	_, err = s.GetArtifactMetadata(ctx, DefaultGroupID, "orders", SkipDisabledLatest)
	assert.ErrorIs(t, err, ErrVersionNotFound)

	err = s.UpdateArtifactVersionState(ctx, DefaultGroupID, "orders", "1", "ARCHIVED")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMemoryStoreRules(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetGlobalRule(ctx, types.RuleValidity)
	assert.ErrorIs(t, err, ErrRuleNotFound)

	require.NoError(t, s.SetGlobalRule(ctx, RuleConfig{Type: types.RuleValidity, Configuration: "FULL"}))
	require.NoError(t, s.SetGlobalRule(ctx, RuleConfig{Type: types.RuleCompatibility, Configuration: "BACKWARD"}))
	rules, err := s.GetGlobalRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, []RuleConfig{
		{Type: types.RuleCompatibility, Configuration: "BACKWARD"},
		{Type: types.RuleValidity, Configuration: "FULL"},
	}, rules)
	require.NoError(t, s.DeleteGlobalRule(ctx, types.RuleValidity))
	assert.ErrorIs(t, s.DeleteGlobalRule(ctx, types.RuleValidity), ErrRuleNotFound)

	assert.ErrorIs(t, s.SetArtifactRule(ctx, DefaultGroupID, "orders", RuleConfig{Type: types.RuleIntegrity}), ErrArtifactNotFound)
	_, err = s.CreateArtifact(ctx, newVersion("orders", `"string"`))
	require.NoError(t, err)
	require.NoError(t, s.SetArtifactRule(ctx, DefaultGroupID, "orders", RuleConfig{Type: types.RuleIntegrity, Configuration: "FULL"}))

	rule, err := s.GetArtifactRule(ctx, DefaultGroupID, "orders", types.RuleIntegrity)
	require.NoError(t, err)
	assert.Equal(t, "FULL", rule.Configuration)
	require.NoError(t, s.DeleteArtifactRule(ctx, DefaultGroupID, "orders", types.RuleIntegrity))
	_, err = s.GetArtifactRule(ctx, DefaultGroupID, "orders", types.RuleIntegrity)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestMemoryStoreConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateArtifact(ctx, newVersion("orders", fmt.Sprintf(`{"v":%d}`, i)))
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrArtifactAlreadyExists)
	}
	assert.Equal(t, 1, created)

	count, err := s.CountArtifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	total, err := s.CountTotalVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
