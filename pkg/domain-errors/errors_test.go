package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "consent store unavailable")

	require.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeUnavailable))
	assert.Equal(t, "consent store unavailable", MessageOf(err))
	assert.Nil(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestIsComparesCodeAndMessage(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(CodeBadRequest, "invalid request body"))

	require.ErrorIs(t, err, New(CodeBadRequest, "invalid request body"))
	assert.NotErrorIs(t, err, New(CodeBadRequest, "other"))
	assert.True(t, Is(err, CodeBadRequest))
	assert.False(t, Is(errors.New("plain"), CodeBadRequest))
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeConflict, CodeOf(New(CodeConflict, "x")))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(CodeRateLimited))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Code("unknown")))
}
