// Package apperr defines the error taxonomy shared by the registry core.
//
// Every failure that leaves the core carries a Kind. Transport layers map the
// kind to their own outcome (not found, bad request, conflict, ...) and must
// keep UnprocessableContent and Conflict apart, since clients treat malformed
// content and policy violations differently.
//
// Kinds are matched with errors.Is against the exported sentinels:
//
//	if errors.Is(err, apperr.ErrConflict) {
//	    // content is well-formed but violates a rule
//	}
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a registry failure.
type Kind string

const (
	KindNotFound             Kind = "NOT_FOUND"
	KindReferenceNotFound    Kind = "REFERENCE_NOT_FOUND"
	KindUnprocessableContent Kind = "UNPROCESSABLE_CONTENT"
	KindConflict             Kind = "CONFLICT"
	KindLimitExceeded        Kind = "LIMIT_EXCEEDED"
	KindUnsupportedType      Kind = "UNSUPPORTED_TYPE"
	KindUnsupportedFormat    Kind = "UNSUPPORTED_FORMAT"
	KindInternal             Kind = "INTERNAL"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
// ErrReferenceNotFound errors also match ErrNotFound.
var (
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "not found"}
	ErrReferenceNotFound    = &Error{Kind: KindReferenceNotFound, Message: "reference not found"}
	ErrUnprocessableContent = &Error{Kind: KindUnprocessableContent, Message: "unprocessable content"}
	ErrConflict             = &Error{Kind: KindConflict, Message: "conflict"}
	ErrLimitExceeded        = &Error{Kind: KindLimitExceeded, Message: "limit exceeded"}
	ErrUnsupportedType      = &Error{Kind: KindUnsupportedType, Message: "unsupported type"}
	ErrUnsupportedFormat    = &Error{Kind: KindUnsupportedFormat, Message: "unsupported format"}
)

// Error is a classified registry failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	if target == ErrNotFound && e.Kind == KindReferenceNotFound {
		return true
	}
	s, ok := sentinels[e.Kind]
	return ok && target == s
}

var sentinels = map[Kind]*Error{
	KindNotFound:             ErrNotFound,
	KindReferenceNotFound:    ErrReferenceNotFound,
	KindUnprocessableContent: ErrUnprocessableContent,
	KindConflict:             ErrConflict,
	KindLimitExceeded:        ErrLimitExceeded,
	KindUnsupportedType:      ErrUnsupportedType,
	KindUnsupportedFormat:    ErrUnsupportedFormat,
}

// New creates a classified error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindInternal when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a NotFound (including ReferenceNotFound).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NotFound builds a NotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// Unprocessable wraps err as UnprocessableContent.
func Unprocessable(err error, format string, args ...interface{}) error {
	return Wrap(KindUnprocessableContent, err, format, args...)
}
