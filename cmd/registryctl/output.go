package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/artifacttype"
	"github.com/Aleph-Alpha/schema-registry/v1/rules"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
	exitRejected = 4
)

type usageErr struct{ msg string }

func (e *usageErr) Error() string { return e.msg }

func usageError(format string, args ...interface{}) error {
	return &usageErr{msg: fmt.Sprintf(format, args...)}
}

// errorBody is the JSON shape of a failed command.
type errorBody struct {
	Error  string                   `json:"error"`
	Kind   string                   `json:"kind,omitempty"`
	Causes []artifacttype.Violation `json:"causes,omitempty"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportError writes err as JSON and returns the exit code for it.
func reportError(w io.Writer, err error) int {
	var usage *usageErr
	if errors.As(err, &usage) {
		_ = writeJSON(w, errorBody{Error: usage.msg, Kind: "USAGE"})
		return exitUsage
	}

	kind := apperr.KindOf(err)
	body := errorBody{Error: err.Error(), Kind: string(kind)}
	var violation *rules.RuleViolationError
	if errors.As(err, &violation) {
		body.Causes = violation.Causes
	}
	_ = writeJSON(w, body)

	switch kind {
	case apperr.KindNotFound, apperr.KindReferenceNotFound:
		return exitNotFound
	case apperr.KindUnprocessableContent, apperr.KindConflict, apperr.KindLimitExceeded,
		apperr.KindUnsupportedType, apperr.KindUnsupportedFormat:
		return exitRejected
	}
	return exitFailure
}
