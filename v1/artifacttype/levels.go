package artifacttype

import (
	"fmt"
	"strings"

	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// Validity levels.
const (
	ValidityNone       = "NONE"
	ValiditySyntaxOnly = "SYNTAX_ONLY"
	ValidityFull       = "FULL"
)

// Compatibility levels.
const (
	CompatibilityNone               = "NONE"
	CompatibilityBackward           = "BACKWARD"
	CompatibilityBackwardTransitive = "BACKWARD_TRANSITIVE"
	CompatibilityForward            = "FORWARD"
	CompatibilityForwardTransitive  = "FORWARD_TRANSITIVE"
	CompatibilityFull               = "FULL"
	CompatibilityFullTransitive     = "FULL_TRANSITIVE"
)

// Integrity levels.
const (
	IntegrityNone         = "NONE"
	IntegrityRefsExist    = "REFS_EXIST"
	IntegrityNoDuplicates = "NO_DUPLICATES"
	IntegrityFull         = "FULL"
)

func normalizeLevel(cfg, fallback string) string {
	cfg = strings.ToUpper(strings.TrimSpace(cfg))
	if cfg == "" {
		return fallback
	}
	return cfg
}

// validityLevel parses a VALIDITY configuration. Empty means FULL.
func validityLevel(cfg string) (string, error) {
	level := normalizeLevel(cfg, ValidityFull)
	switch level {
	case ValidityNone, ValiditySyntaxOnly, ValidityFull:
		return level, nil
	}
	return "", fmt.Errorf("invalid %s configuration %q", types.RuleValidity, cfg)
}

// compatibilityPlan describes which existing versions a compatibility level
// compares against and in which direction.
type compatibilityPlan struct {
	targets  []VersionContent
	backward bool // new schema must read data written with the target
	forward  bool // target must read data written with the new schema
}

func planCompatibility(cfg string, current []VersionContent) (compatibilityPlan, error) {
	level := normalizeLevel(cfg, CompatibilityBackward)
	var plan compatibilityPlan
	transitive := false
	switch level {
	case CompatibilityNone:
		return plan, nil
	case CompatibilityBackward:
		plan.backward = true
	case CompatibilityBackwardTransitive:
		plan.backward, transitive = true, true
	case CompatibilityForward:
		plan.forward = true
	case CompatibilityForwardTransitive:
		plan.forward, transitive = true, true
	case CompatibilityFull:
		plan.backward, plan.forward = true, true
	case CompatibilityFullTransitive:
		plan.backward, plan.forward, transitive = true, true, true
	default:
		return plan, fmt.Errorf("invalid %s configuration %q", types.RuleCompatibility, cfg)
	}
	if len(current) == 0 {
		return plan, nil
	}
	if transitive {
		plan.targets = current
	} else {
		plan.targets = current[len(current)-1:]
	}
	return plan, nil
}

// checkIntegrity is the INTEGRITY rule shared by every provider. It only looks
// at the reference declarations, never at the document.
func checkIntegrity(rc RuleContext) error {
	level := normalizeLevel(rc.Configuration, IntegrityFull)
	var checkExist, checkDuplicates bool
	switch level {
	case IntegrityNone:
		return nil
	case IntegrityRefsExist:
		checkExist = true
	case IntegrityNoDuplicates:
		checkDuplicates = true
	case IntegrityFull:
		checkExist, checkDuplicates = true, true
	default:
		return fmt.Errorf("invalid %s configuration %q", types.RuleIntegrity, rc.Configuration)
	}

	var causes []Violation
	seen := make(map[string]bool, len(rc.References))
	for _, ref := range rc.References {
		if checkDuplicates && seen[ref.Name] {
			causes = append(causes, Violation{
				Description: fmt.Sprintf("duplicate reference name %q", ref.Name),
				Context:     ref.Name,
			})
		}
		seen[ref.Name] = true
		if checkExist {
			if _, ok := rc.ResolvedReferences[ref.Name]; !ok {
				causes = append(causes, Violation{
					Description: fmt.Sprintf("reference %q to %s/%s version %s does not resolve", ref.Name, ref.GroupID, ref.ArtifactID, ref.Version),
					Context:     ref.Name,
				})
			}
		}
	}
	if len(causes) > 0 {
		return &ViolationError{Causes: causes}
	}
	return nil
}
