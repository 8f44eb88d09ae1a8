package limits

import (
	"fmt"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
)

// LimitExceededError names the ceiling a request would have crossed.
// Checker returns it wrapped in an apperr.KindLimitExceeded error.
type LimitExceededError struct {
	Limit  string
	Max    int64
	Actual int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s is %d, got %d", e.Limit, e.Max, e.Actual)
}

func exceeded(limit string, max, actual int64) error {
	return apperr.Wrap(apperr.KindLimitExceeded, &LimitExceededError{Limit: limit, Max: max, Actual: actual}, "limit %s exceeded", limit)
}

// check fails when actual crosses an enforced max.
func check(limit string, max, actual int64) error {
	if enforced(max) && actual > max {
		return exceeded(limit, max, actual)
	}
	return nil
}
