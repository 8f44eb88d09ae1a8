// Package types holds the small enumerations shared across the registry:
// artifact types, artifact states and rule types.
package types

import "sort"

// Artifact types understood by the bundled format providers.
const (
	Avro     = "AVRO"
	Protobuf = "PROTOBUF"
	JSON     = "JSON"
)

// ArtifactState is the lifecycle state of a single artifact version.
type ArtifactState string

const (
	StateEnabled    ArtifactState = "ENABLED"
	StateDeprecated ArtifactState = "DEPRECATED"
	StateDisabled   ArtifactState = "DISABLED"
)

// IsActive reports whether a version in this state is visible to clients.
func (s ArtifactState) IsActive() bool {
	return s == StateEnabled || s == StateDeprecated
}

// Valid reports whether s is a known state.
func (s ArtifactState) Valid() bool {
	switch s {
	case StateEnabled, StateDeprecated, StateDisabled:
		return true
	}
	return false
}

// RuleType names a content check. The set is open: providers may register
// checkers for types not listed here.
type RuleType string

const (
	RuleValidity      RuleType = "VALIDITY"
	RuleCompatibility RuleType = "COMPATIBILITY"
	RuleIntegrity     RuleType = "INTEGRITY"
)

// rulePriority fixes the evaluation order of the well-known rules.
// A document must be valid before it is compared against earlier versions.
var rulePriority = map[RuleType]int{
	RuleValidity:      0,
	RuleCompatibility: 1,
	RuleIntegrity:     2,
}

// SortRuleTypes orders rule types for evaluation: VALIDITY, COMPATIBILITY,
// INTEGRITY, then all others by name.
func SortRuleTypes(ruleTypes []RuleType) {
	sort.SliceStable(ruleTypes, func(i, j int) bool {
		pi, iKnown := rulePriority[ruleTypes[i]]
		pj, jKnown := rulePriority[ruleTypes[j]]
		switch {
		case iKnown && jKnown:
			return pi < pj
		case iKnown:
			return true
		case jKnown:
			return false
		}
		return ruleTypes[i] < ruleTypes[j]
	})
}
