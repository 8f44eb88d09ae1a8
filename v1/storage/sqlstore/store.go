// Package sqlstore implements storage.Gateway on PostgreSQL through GORM.
//
// Contents are deduplicated by exact digest. When a BlobStore is configured,
// content bodies are written there under their digest and the database keeps
// only the key.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/postgres"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// Logger is the logging contract of this package.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Debug(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	Fatal(msg string, err error, fields ...map[string]interface{})
}

// BlobStore keeps content bodies outside the database.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Database is the part of *postgres.Postgres the store needs.
type Database interface {
	DB() *gorm.DB
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	Migrate(ctx context.Context, models ...interface{}) error
}

var _ storage.Gateway = (*Store)(nil)

// Store is a storage.Gateway backed by PostgreSQL.
type Store struct {
	db     Database
	blobs  BlobStore
	logger Logger
	now    func() time.Time
}

// New returns a Store. blobs may be nil, in which case bodies are kept in the
// database.
func New(db Database, blobs BlobStore, logger Logger) *Store {
	return &Store{db: db, blobs: blobs, logger: logger, now: time.Now}
}

// Migrate creates the registry tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.Migrate(ctx, &artifactRow{}, &contentRow{}, &versionRow{}, &referenceRow{}, &ruleRow{}); err != nil {
		return fmt.Errorf("failed to migrate registry schema: %w", err)
	}
	return nil
}

// BlobKey is the object key of a content body in the blob store.
func BlobKey(contentHash string) string {
	return "content/" + contentHash
}

func (s *Store) findArtifact(tx *gorm.DB, groupID, artifactID string) (*artifactRow, error) {
	var a artifactRow
	err := tx.Where("group_id = ? AND artifact_id = ?", groupID, artifactID).Take(&a).Error
	if err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", storage.ErrArtifactNotFound, groupID, artifactID)
		}
		return nil, fmt.Errorf("failed to load artifact %s/%s: %w", groupID, artifactID, err)
	}
	return &a, nil
}

func withVersionDetails(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Content").Preload("Refs", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

func (s *Store) findVersion(tx *gorm.DB, a *artifactRow, version string) (*versionRow, error) {
	var v versionRow
	err := withVersionDetails(tx).Where("artifact_ref = ? AND version = ?", a.ID, version).Take(&v).Error
	if err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s/%s version %s", storage.ErrVersionNotFound, a.GroupID, a.ArtifactID, version)
		}
		return nil, fmt.Errorf("failed to load version %s of %s/%s: %w", version, a.GroupID, a.ArtifactID, err)
	}
	return &v, nil
}

// storeContent inserts the content unless its digest is already known and
// returns the row ID.
func (s *Store) storeContent(tx *gorm.DB, entry content.Entry, blobKey string) (int64, error) {
	row := contentRow{
		ContentHash:   entry.ContentHash,
		CanonicalHash: entry.CanonicalHash,
		Size:          entry.Content.Size(),
		BlobKey:       blobKey,
	}
	if blobKey == "" {
		row.Body = entry.Content.Bytes()
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_hash"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return 0, fmt.Errorf("failed to store content: %w", err)
	}

	var existing contentRow
	if err := tx.Select("id").Where("content_hash = ?", entry.ContentHash).Take(&existing).Error; err != nil {
		return 0, fmt.Errorf("failed to load content id: %w", err)
	}
	return existing.ID, nil
}

// putBlob uploads the body before the transaction opens. Keys are content
// addressed, so a body left behind by a failed transaction is reused later.
func (s *Store) putBlob(ctx context.Context, entry content.Entry) (string, error) {
	if s.blobs == nil {
		return "", nil
	}
	key := BlobKey(entry.ContentHash)
	if err := s.blobs.Put(ctx, key, entry.Content.Bytes()); err != nil {
		return "", fmt.Errorf("failed to store content body: %w", err)
	}
	return key, nil
}

func (s *Store) loadBody(ctx context.Context, c contentRow) (content.Handle, error) {
	if c.BlobKey == "" {
		return content.New(c.Body), nil
	}
	if s.blobs == nil {
		return content.Handle{}, fmt.Errorf("content %d is in the blob store but none is configured", c.ID)
	}
	data, err := s.blobs.Get(ctx, c.BlobKey)
	if err != nil {
		return content.Handle{}, fmt.Errorf("failed to load content body %s: %w", c.BlobKey, err)
	}
	return content.New(data), nil
}

func (s *Store) insertVersion(tx *gorm.DB, a *artifactRow, v storage.NewVersion, blobKey string) (*storage.VersionMetadata, error) {
	label := v.Version
	if label == "" {
		var highest int64
		err := tx.Model(&versionRow{}).
			Where("artifact_ref = ?", a.ID).
			Select("COALESCE(MAX(version_order), 0)").
			Scan(&highest).Error
		if err != nil {
			return nil, fmt.Errorf("failed to compute next version: %w", err)
		}
		label = fmt.Sprintf("%d", highest+1)
	}

	contentID, err := s.storeContent(tx, v.Entry, blobKey)
	if err != nil {
		return nil, err
	}

	row := versionRow{
		ArtifactRef:  a.ID,
		Version:      label,
		VersionOrder: versionOrder(label),
		ContentID:    contentID,
		State:        types.StateEnabled,
		CreatedOn:    s.now().UTC(),
	}
	if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s/%s version %s", storage.ErrVersionAlreadyExists, a.GroupID, a.ArtifactID, label)
		}
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	if refs := toReferenceRows(v.References); len(refs) > 0 {
		for i := range refs {
			refs[i].GlobalID = row.GlobalID
		}
		if err := tx.Create(&refs).Error; err != nil {
			return nil, fmt.Errorf("failed to insert references: %w", err)
		}
	}

	created, err := s.findVersion(tx, a, label)
	if err != nil {
		return nil, err
	}
	return versionMetadata(a, created), nil
}

// GetArtifactMetadata implements storage.Gateway.
func (s *Store) GetArtifactMetadata(ctx context.Context, groupID, artifactID string, behavior storage.RetrievalBehavior) (*storage.ArtifactMetadata, error) {
	db := s.db.DB().WithContext(ctx)
	a, err := s.findArtifact(db, groupID, artifactID)
	if err != nil {
		return nil, err
	}

	q := db.Where("artifact_ref = ?", a.ID)
	if behavior == storage.SkipDisabledLatest {
		q = q.Where("state <> ?", types.StateDisabled)
	}
	var v versionRow
	if err := q.Order("version_order DESC, global_id DESC").Take(&v).Error; err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s/%s has no active version", storage.ErrVersionNotFound, groupID, artifactID)
		}
		return nil, fmt.Errorf("failed to load latest version of %s/%s: %w", groupID, artifactID, err)
	}

	return &storage.ArtifactMetadata{
		GroupID:          a.GroupID,
		ArtifactID:       a.ArtifactID,
		ArtifactType:     a.ArtifactType,
		Version:          v.Version,
		GlobalID:         v.GlobalID,
		ContentID:        v.ContentID,
		State:            v.State,
		CreatedOn:        a.CreatedOn,
		ModifiedOn:       a.ModifiedOn,
		EditableMetadata: a.metadata(),
	}, nil
}

// CreateArtifact implements storage.Gateway.
func (s *Store) CreateArtifact(ctx context.Context, v storage.NewVersion) (*storage.VersionMetadata, error) {
	blobKey, err := s.putBlob(ctx, v.Entry)
	if err != nil {
		return nil, err
	}

	var md *storage.VersionMetadata
	err = s.db.Transaction(ctx, func(tx *gorm.DB) error {
		now := s.now().UTC()
		a := artifactRow{
			GroupID:      v.GroupID,
			ArtifactID:   v.ArtifactID,
			ArtifactType: v.ArtifactType,
			CreatedOn:    now,
			ModifiedOn:   now,
		}
		a.setMetadata(v.Metadata)
		if err := tx.Create(&a).Error; err != nil {
			if errors.Is(postgres.TranslateError(err), postgres.ErrDuplicateKey) {
				return fmt.Errorf("%w: %s/%s", storage.ErrArtifactAlreadyExists, v.GroupID, v.ArtifactID)
			}
			return fmt.Errorf("failed to insert artifact: %w", err)
		}
		var err error
		md, err = s.insertVersion(tx, &a, v, blobKey)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("artifact stored", nil, map[string]interface{}{
		"groupId":    md.GroupID,
		"artifactId": md.ArtifactID,
		"globalId":   md.GlobalID,
	})
	return md, nil
}

// UpdateArtifact implements storage.Gateway. The artifact row is locked so
// concurrent appends get distinct labels.
func (s *Store) UpdateArtifact(ctx context.Context, v storage.NewVersion) (*storage.VersionMetadata, error) {
	blobKey, err := s.putBlob(ctx, v.Entry)
	if err != nil {
		return nil, err
	}

	var md *storage.VersionMetadata
	err = s.db.Transaction(ctx, func(tx *gorm.DB) error {
		a, err := s.findArtifact(tx.Clauses(clause.Locking{Strength: "UPDATE"}), v.GroupID, v.ArtifactID)
		if err != nil {
			return err
		}
		a.setMetadata(v.Metadata)
		a.ModifiedOn = s.now().UTC()
		if err := tx.Save(a).Error; err != nil {
			return fmt.Errorf("failed to update artifact: %w", err)
		}
		md, err = s.insertVersion(tx, a, v, blobKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return md, nil
}

// GetArtifactVersions implements storage.Gateway.
func (s *Store) GetArtifactVersions(ctx context.Context, groupID, artifactID string) ([]string, error) {
	db := s.db.DB().WithContext(ctx)
	a, err := s.findArtifact(db, groupID, artifactID)
	if err != nil {
		return nil, err
	}
	var labels []string
	err = db.Model(&versionRow{}).
		Where("artifact_ref = ?", a.ID).
		Order("version_order, global_id").
		Pluck("version", &labels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of %s/%s: %w", groupID, artifactID, err)
	}
	return labels, nil
}

// GetArtifactVersion implements storage.Gateway.
func (s *Store) GetArtifactVersion(ctx context.Context, groupID, artifactID, version string) (*storage.StoredArtifact, error) {
	db := s.db.DB().WithContext(ctx)
	a, err := s.findArtifact(db, groupID, artifactID)
	if err != nil {
		return nil, err
	}
	v, err := s.findVersion(db, a, version)
	if err != nil {
		return nil, err
	}
	body, err := s.loadBody(ctx, v.Content)
	if err != nil {
		return nil, err
	}
	return &storage.StoredArtifact{
		GlobalID:   v.GlobalID,
		ContentID:  v.ContentID,
		Version:    v.Version,
		State:      v.State,
		Content:    body,
		References: fromReferenceRows(v.Refs),
	}, nil
}

// GetArtifactVersionMetadata implements storage.Gateway.
func (s *Store) GetArtifactVersionMetadata(ctx context.Context, groupID, artifactID, version string) (*storage.VersionMetadata, error) {
	db := s.db.DB().WithContext(ctx)
	a, err := s.findArtifact(db, groupID, artifactID)
	if err != nil {
		return nil, err
	}
	v, err := s.findVersion(db, a, version)
	if err != nil {
		return nil, err
	}
	return versionMetadata(a, v), nil
}

// GetArtifactVersionMetadataByContentHash implements storage.Gateway.
func (s *Store) GetArtifactVersionMetadataByContentHash(ctx context.Context, groupID, artifactID string, canonical bool, hash string) (*storage.VersionMetadata, error) {
	db := s.db.DB().WithContext(ctx)
	a, err := s.findArtifact(db, groupID, artifactID)
	if err != nil {
		return nil, err
	}

	column := "registry_contents.content_hash"
	if canonical {
		column = "registry_contents.canonical_hash"
	}
	var v versionRow
	err = withVersionDetails(db).
		Joins("JOIN registry_contents ON registry_contents.id = registry_versions.content_id").
		Where("registry_versions.artifact_ref = ? AND "+column+" = ?", a.ID, hash).
		Order("registry_versions.version_order, registry_versions.global_id").
		Take(&v).Error
	if err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no version of %s/%s matches content", storage.ErrVersionNotFound, groupID, artifactID)
		}
		return nil, fmt.Errorf("failed to look up content of %s/%s: %w", groupID, artifactID, err)
	}
	return versionMetadata(a, &v), nil
}

// GetArtifactVersionMetadataByGlobalID implements storage.Gateway.
func (s *Store) GetArtifactVersionMetadataByGlobalID(ctx context.Context, globalID int64) (*storage.VersionMetadata, error) {
	var v versionRow
	err := withVersionDetails(s.db.DB().WithContext(ctx)).Preload("Artifact").
		Where("global_id = ?", globalID).
		Take(&v).Error
	if err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: global id %d", storage.ErrVersionNotFound, globalID)
		}
		return nil, fmt.Errorf("failed to load global id %d: %w", globalID, err)
	}
	return versionMetadata(&v.Artifact, &v), nil
}

// UpdateArtifactVersionState implements storage.Gateway.
func (s *Store) UpdateArtifactVersionState(ctx context.Context, groupID, artifactID, version string, state types.ArtifactState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", storage.ErrInvalidState, state)
	}
	return s.db.Transaction(ctx, func(tx *gorm.DB) error {
		a, err := s.findArtifact(tx, groupID, artifactID)
		if err != nil {
			return err
		}
		res := tx.Model(&versionRow{}).
			Where("artifact_ref = ? AND version = ?", a.ID, version).
			Update("state", state)
		if res.Error != nil {
			return fmt.Errorf("failed to update state: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s/%s version %s", storage.ErrVersionNotFound, groupID, artifactID, version)
		}
		return tx.Model(a).Update("modified_on", s.now().UTC()).Error
	})
}

// CountArtifacts implements storage.Gateway.
func (s *Store) CountArtifacts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.DB().WithContext(ctx).Model(&artifactRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count artifacts: %w", err)
	}
	return n, nil
}

// CountArtifactVersions implements storage.Gateway.
func (s *Store) CountArtifactVersions(ctx context.Context, groupID, artifactID string) (int64, error) {
	db := s.db.DB().WithContext(ctx)
	a, err := s.findArtifact(db, groupID, artifactID)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Model(&versionRow{}).Where("artifact_ref = ?", a.ID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count versions of %s/%s: %w", groupID, artifactID, err)
	}
	return n, nil
}

// CountTotalVersions implements storage.Gateway.
func (s *Store) CountTotalVersions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.DB().WithContext(ctx).Model(&versionRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count versions: %w", err)
	}
	return n, nil
}
