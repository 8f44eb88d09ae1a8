package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortRuleTypes(t *testing.T) {
	ruleTypes := []RuleType{"ZETA", RuleIntegrity, "ALPHA", RuleCompatibility, RuleValidity}
	SortRuleTypes(ruleTypes)
	assert.Equal(t, []RuleType{RuleValidity, RuleCompatibility, RuleIntegrity, "ALPHA", "ZETA"}, ruleTypes)
}

func TestArtifactStateIsActive(t *testing.T) {
	assert.True(t, StateEnabled.IsActive())
	assert.True(t, StateDeprecated.IsActive())
	assert.False(t, StateDisabled.IsActive())
	assert.False(t, ArtifactState("UNKNOWN").IsActive())
	assert.False(t, ArtifactState("UNKNOWN").Valid())
}
