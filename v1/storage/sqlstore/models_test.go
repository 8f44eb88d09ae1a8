package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aleph-Alpha/schema-registry/v1/storage"
)

func TestVersionOrder(t *testing.T) {
	assert.Equal(t, int64(3), versionOrder("3"))
	assert.Equal(t, int64(0), versionOrder("0"))
	assert.Equal(t, int64(0), versionOrder("1.0.0"))
	assert.Equal(t, int64(0), versionOrder("-2"))
}

func TestReferenceRowsKeepDeclarationOrder(t *testing.T) {
	refs := []storage.ArtifactReference{
		{Name: "b.avsc", ArtifactID: "b", Version: "2"},
		{Name: "a.avsc", GroupID: "g", ArtifactID: "a", Version: "1"},
	}
	rows := toReferenceRows(refs)
	// rows come back from the database in any order
	rows[0], rows[1] = rows[1], rows[0]
	assert.Equal(t, refs, fromReferenceRows(rows))

	assert.Nil(t, toReferenceRows(nil))
	assert.Nil(t, fromReferenceRows(nil))
}

func TestBlobKey(t *testing.T) {
	assert.Equal(t, "content/abc", BlobKey("abc"))
}
