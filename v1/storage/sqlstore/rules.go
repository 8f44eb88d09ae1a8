package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/schema-registry/v1/postgres"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

const globalScope int64 = 0

func (s *Store) listRules(ctx context.Context, scope int64) ([]storage.RuleConfig, error) {
	var rows []ruleRow
	err := s.db.DB().WithContext(ctx).Where("artifact_ref = ?", scope).Order("type").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	out := make([]storage.RuleConfig, 0, len(rows))
	for _, r := range rows {
		out = append(out, storage.RuleConfig{Type: r.Type, Configuration: r.Configuration})
	}
	return out, nil
}

func (s *Store) getRule(ctx context.Context, scope int64, ruleType types.RuleType, notFound string) (*storage.RuleConfig, error) {
	var row ruleRow
	err := s.db.DB().WithContext(ctx).Where("artifact_ref = ? AND type = ?", scope, ruleType).Take(&row).Error
	if err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s on %s", storage.ErrRuleNotFound, ruleType, notFound)
		}
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	return &storage.RuleConfig{Type: row.Type, Configuration: row.Configuration}, nil
}

func (s *Store) setRule(tx *gorm.DB, scope int64, rule storage.RuleConfig) error {
	row := ruleRow{ArtifactRef: scope, Type: rule.Type, Configuration: rule.Configuration}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "artifact_ref"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"configuration"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to store rule: %w", err)
	}
	return nil
}

func (s *Store) deleteRule(ctx context.Context, scope int64, ruleType types.RuleType, notFound string) error {
	res := s.db.DB().WithContext(ctx).Where("artifact_ref = ? AND type = ?", scope, ruleType).Delete(&ruleRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s on %s", storage.ErrRuleNotFound, ruleType, notFound)
	}
	return nil
}

func (s *Store) artifactScope(ctx context.Context, groupID, artifactID string) (int64, error) {
	a, err := s.findArtifact(s.db.DB().WithContext(ctx), groupID, artifactID)
	if err != nil {
		return 0, err
	}
	return a.ID, nil
}

// GetArtifactRules implements storage.Gateway.
func (s *Store) GetArtifactRules(ctx context.Context, groupID, artifactID string) ([]storage.RuleConfig, error) {
	scope, err := s.artifactScope(ctx, groupID, artifactID)
	if err != nil {
		return nil, err
	}
	return s.listRules(ctx, scope)
}

// GetArtifactRule implements storage.Gateway.
func (s *Store) GetArtifactRule(ctx context.Context, groupID, artifactID string, ruleType types.RuleType) (*storage.RuleConfig, error) {
	scope, err := s.artifactScope(ctx, groupID, artifactID)
	if err != nil {
		return nil, err
	}
	return s.getRule(ctx, scope, ruleType, groupID+"/"+artifactID)
}

// SetArtifactRule implements storage.Gateway.
func (s *Store) SetArtifactRule(ctx context.Context, groupID, artifactID string, rule storage.RuleConfig) error {
	return s.db.Transaction(ctx, func(tx *gorm.DB) error {
		a, err := s.findArtifact(tx, groupID, artifactID)
		if err != nil {
			return err
		}
		return s.setRule(tx, a.ID, rule)
	})
}

// DeleteArtifactRule implements storage.Gateway.
func (s *Store) DeleteArtifactRule(ctx context.Context, groupID, artifactID string, ruleType types.RuleType) error {
	scope, err := s.artifactScope(ctx, groupID, artifactID)
	if err != nil {
		return err
	}
	return s.deleteRule(ctx, scope, ruleType, groupID+"/"+artifactID)
}

// GetGlobalRules implements storage.Gateway.
func (s *Store) GetGlobalRules(ctx context.Context) ([]storage.RuleConfig, error) {
	return s.listRules(ctx, globalScope)
}

// GetGlobalRule implements storage.Gateway.
func (s *Store) GetGlobalRule(ctx context.Context, ruleType types.RuleType) (*storage.RuleConfig, error) {
	return s.getRule(ctx, globalScope, ruleType, "global")
}

// SetGlobalRule implements storage.Gateway.
func (s *Store) SetGlobalRule(ctx context.Context, rule storage.RuleConfig) error {
	return s.setRule(s.db.DB().WithContext(ctx), globalScope, rule)
}

// DeleteGlobalRule implements storage.Gateway.
func (s *Store) DeleteGlobalRule(ctx context.Context, ruleType types.RuleType) error {
	return s.deleteRule(ctx, globalScope, ruleType, "global")
}
