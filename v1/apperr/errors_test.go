package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("registering: %w", New(KindConflict, "rule %s violated", "COMPATIBILITY"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrUnprocessableContent))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "registering: rule COMPATIBILITY violated", err.Error())
}

func TestReferenceNotFoundIsNotFound(t *testing.T) {
	err := New(KindReferenceNotFound, "reference %q not found", "dep")
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, ErrReferenceNotFound))
	assert.False(t, errors.Is(NotFound("artifact"), ErrReferenceNotFound))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(KindInternal, nil, "ignored"))

	cause := errors.New("unexpected token")
	err := Unprocessable(cause, "invalid %s content", "AVRO")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrUnprocessableContent)
	assert.Equal(t, "invalid AVRO content: unexpected token", err.Error())
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}
