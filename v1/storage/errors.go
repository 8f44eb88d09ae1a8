package storage

import (
	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
)

// Storage errors. Each one is classified, so callers can match either the
// specific sentinel or the apperr kind:
//
//	errors.Is(err, storage.ErrVersionNotFound) // specific
//	errors.Is(err, apperr.ErrNotFound)         // any not-found
var (
	// ErrArtifactNotFound is returned when no artifact exists for a group/artifact pair
	ErrArtifactNotFound = apperr.New(apperr.KindNotFound, "artifact not found")

	// ErrVersionNotFound is returned when a version label, global ID or content
	// digest does not match any stored version
	ErrVersionNotFound = apperr.New(apperr.KindNotFound, "version not found")

	// ErrRuleNotFound is returned when no rule of the requested type is configured
	ErrRuleNotFound = apperr.New(apperr.KindNotFound, "rule not found")

	// ErrArtifactAlreadyExists is returned when a concurrent request created the
	// same artifact first
	ErrArtifactAlreadyExists = apperr.New(apperr.KindConflict, "artifact already exists")

	// ErrInvalidState is returned for an unknown version state
	ErrInvalidState = apperr.New(apperr.KindUnprocessableContent, "invalid artifact state")
)

// ErrVersionAlreadyExists is returned when an explicit version label is reused.
var ErrVersionAlreadyExists = apperr.New(apperr.KindConflict, "version already exists")
