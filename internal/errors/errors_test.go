package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "not found", err: NotFound("approval_workflow", "wf-1"), want: ErrCodeNotFound},
		{name: "wrapped app error", err: fmt.Errorf("outer: %w", InvalidTransition("done")), want: ErrCodeInvalidTransition},
		{name: "plain error", err: stderrors.New("boom"), want: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("connection refused")

	err := Wrap(cause, ErrCodeInternal, "failed to create approval workflow")

	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "failed to create approval workflow")
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: NotFound("approval_step", "s-1"), want: http.StatusNotFound},
		{err: InvalidInput("currency", "bad"), want: http.StatusBadRequest},
		{err: Unauthenticated("no actor"), want: http.StatusUnauthorized},
		{err: New(ErrCodeForbidden, "nope"), want: http.StatusForbidden},
		{err: New(ErrCodeConflict, "stale"), want: http.StatusConflict},
		{err: InvalidTransition("terminal"), want: http.StatusConflict},
		{err: stderrors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestIs(t *testing.T) {
	assert.True(t, Is(New(ErrCodeConflict, "x"), ErrCodeConflict))
	assert.False(t, Is(nil, ErrCodeConflict))
	assert.False(t, Is(New(ErrCodeConflict, "x"), ErrCodeNotFound))
}
