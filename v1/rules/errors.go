package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/artifacttype"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// RuleViolationError reports the rule that rejected content and why.
type RuleViolationError struct {
	RuleType types.RuleType
	Causes   []artifacttype.Violation
}

func (e *RuleViolationError) Error() string {
	if len(e.Causes) == 0 {
		return fmt.Sprintf("%s rule violated", e.RuleType)
	}
	parts := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		if c.Context != "" {
			parts = append(parts, c.Description+" at "+c.Context)
		} else {
			parts = append(parts, c.Description)
		}
	}
	return fmt.Sprintf("%s rule violated: %s", e.RuleType, strings.Join(parts, "; "))
}

// Kind classifies the violation. VALIDITY means the content itself is
// malformed; every other rule is a policy conflict.
func (e *RuleViolationError) Kind() apperr.Kind {
	if e.RuleType == types.RuleValidity {
		return apperr.KindUnprocessableContent
	}
	return apperr.KindConflict
}

// Is lets errors.Is match the apperr sentinel of the violation's kind.
func (e *RuleViolationError) Is(target error) bool {
	switch e.Kind() {
	case apperr.KindUnprocessableContent:
		return target == apperr.ErrUnprocessableContent
	case apperr.KindConflict:
		return target == apperr.ErrConflict
	}
	return false
}

// Classify wraps a violation into the apperr taxonomy. Other errors pass through.
func Classify(err error) error {
	var v *RuleViolationError
	if errors.As(err, &v) {
		return apperr.Wrap(v.Kind(), err, "content rejected")
	}
	return err
}
