package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

func seed(t *testing.T, versions int) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	for i := 0; i < versions; i++ {
		h := content.FromString(`{"v":` + string(rune('0'+i)) + `}`)
		v := storage.NewVersion{
			GroupID:      "g",
			ArtifactID:   "a",
			ArtifactType: types.JSON,
			Entry:        content.Entry{Content: h, ContentHash: content.Digest(h), CanonicalHash: content.Digest(h)},
		}
		var err error
		if i == 0 {
			_, err = store.CreateArtifact(context.Background(), v)
		} else {
			_, err = store.UpdateArtifact(context.Background(), v)
		}
		require.NoError(t, err)
	}
	return store
}

func TestResolveVersionLabel(t *testing.T) {
	l := New(seed(t, 3))
	ctx := context.Background()

	tests := []struct {
		label   string
		want    string
		wantErr bool
	}{
		{label: "latest", want: "3"},
		{label: "-1", want: "3"},
		{label: "2", want: "2"},
		{label: "0", want: "0"},
		{label: " 1", want: "1"},
		{label: "02", want: "2"},
		{label: "abc", wantErr: true},
		{label: "-5", wantErr: true},
		{label: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := l.ResolveVersionLabel(ctx, "g", "a", tt.label)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, storage.ErrVersionNotFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveVersionLabel_SkipsDisabled(t *testing.T) {
	store := seed(t, 3)
	l := New(store)
	ctx := context.Background()

	require.NoError(t, store.UpdateArtifactVersionState(ctx, "g", "a", "3", types.StateDisabled))
	got, err := l.ResolveVersionLabel(ctx, "g", "a", "latest")
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	require.NoError(t, store.UpdateArtifactVersionState(ctx, "g", "a", "2", types.StateDeprecated))
	got, err = l.ResolveVersionLabel(ctx, "g", "a", "-1")
	require.NoError(t, err)
	assert.Equal(t, "2", got, "deprecated versions are still active")

	md, err := store.GetArtifactVersionMetadata(ctx, "g", "a", "3")
	require.NoError(t, err)
	assert.Equal(t, types.StateDisabled, md.State, "disabled version stays retrievable by label")
}

func TestResolveVersionLabel_PaddedLabelIsActive(t *testing.T) {
	l := New(seed(t, 2))
	ctx := context.Background()

	label, err := l.ResolveVersionLabel(ctx, "g", "a", " 1")
	require.NoError(t, err)
	active, err := l.IsArtifactActive(ctx, "g", "a", label)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestResolveVersionLabel_LatestIsHighestLabel(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	for i, label := range []string{"5", "3"} {
		h := content.FromString(`{"v":` + label + `}`)
		v := storage.NewVersion{
			GroupID:      "g",
			ArtifactID:   "a",
			ArtifactType: types.JSON,
			Version:      label,
			Entry:        content.Entry{Content: h, ContentHash: content.Digest(h), CanonicalHash: content.Digest(h)},
		}
		var err error
		if i == 0 {
			_, err = store.CreateArtifact(ctx, v)
		} else {
			_, err = store.UpdateArtifact(ctx, v)
		}
		require.NoError(t, err)
	}

	got, err := New(store).ResolveVersionLabel(ctx, "g", "a", "latest")
	require.NoError(t, err)
	assert.Equal(t, "5", got)
}

func TestResolveVersionLabel_NoActiveVersion(t *testing.T) {
	store := seed(t, 1)
	l := New(store)
	ctx := context.Background()
	require.NoError(t, store.UpdateArtifactVersionState(ctx, "g", "a", "1", types.StateDisabled))

	_, err := l.ResolveVersionLabel(ctx, "g", "a", "latest")
	assert.True(t, errors.Is(err, storage.ErrVersionNotFound))

	_, err = l.ResolveVersionLabel(ctx, "g", "missing", "latest")
	assert.True(t, apperr.IsNotFound(err))
}

func TestIsArtifactActive(t *testing.T) {
	store := seed(t, 2)
	l := New(store)
	ctx := context.Background()

	active, err := l.IsArtifactActive(ctx, "g", "a", "1")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, store.UpdateArtifactVersionState(ctx, "g", "a", "1", types.StateDisabled))
	active, err = l.IsArtifactActive(ctx, "g", "a", "1")
	require.NoError(t, err)
	assert.False(t, active)

	active, err = l.IsArtifactActive(ctx, "g", "a", "9")
	require.NoError(t, err)
	assert.False(t, active)

	active, err = l.IsArtifactActive(ctx, "g", "nope", "1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestAreAllSchemasDisabled(t *testing.T) {
	store := seed(t, 3)
	l := New(store)
	ctx := context.Background()

	disabled, err := l.AreAllSchemasDisabled(ctx, nil)
	require.NoError(t, err)
	assert.False(t, disabled)

	disabled, err = l.AreAllSchemasDisabled(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.False(t, disabled)

	require.NoError(t, store.UpdateArtifactVersionState(ctx, "g", "a", "2", types.StateDisabled))
	disabled, err = l.AreAllSchemasDisabled(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.True(t, disabled, "one disabled member is enough")

	_, err = l.AreAllSchemasDisabled(ctx, []int64{42})
	assert.True(t, apperr.IsNotFound(err))
}

func TestStatePredicates(t *testing.T) {
	assert.True(t, IsActive(types.StateEnabled))
	assert.True(t, IsActive(types.StateDeprecated))
	assert.False(t, IsActive(types.StateDisabled))

	assert.True(t, ShouldFilterState(false, types.StateEnabled))
	assert.False(t, ShouldFilterState(false, types.StateDeprecated))
	assert.False(t, ShouldFilterState(false, types.StateDisabled))
	assert.True(t, ShouldFilterState(true, types.StateDisabled))

	assert.True(t, IsVisible(types.StateDeprecated, false))
	assert.False(t, IsVisible(types.StateDisabled, false))
	assert.True(t, IsVisible(types.StateDisabled, true))
}
