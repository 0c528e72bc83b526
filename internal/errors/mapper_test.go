package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapError_RateLimitedMessagesMapToErrRateLimited(t *testing.T) {
	m := NewDefaultErrorMapper()

	for _, msg := range []string{"rate limit exceeded", "quota exceeded", "too many requests"} {
		mapped := m.MapError(errors.New(msg))
		assert.True(t, errors.Is(mapped, ErrRateLimited), "message %q should map to ErrRateLimited", msg)
	}
}

func TestMapError_NilIsNil(t *testing.T) {
	m := NewDefaultErrorMapper()
	assert.NoError(t, m.MapError(nil))
}

func TestIsRetryable_RateLimitedIsRetryable(t *testing.T) {
	m := NewDefaultErrorMapper()
	assert.True(t, m.IsRetryable(RateLimited("too many calls")))
}

func TestCategory_RateLimited(t *testing.T) {
	m := NewDefaultErrorMapper()
	assert.Equal(t, "ErrRateLimited", m.Category(RateLimited("budget exhausted")))
}

func TestIsRetryable_PackageLevelMatchesRateLimited(t *testing.T) {
	assert.True(t, IsRetryable(RateLimited("shed load")))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"rate limited", RateLimited("too many"), http.StatusTooManyRequests},
		{"unauthorized webhook", UnauthorizedWebhook("bad signature"), http.StatusUnauthorized},
		{"permission denied", PermissionDenied("nope"), http.StatusForbidden},
		{"invalid input", InvalidInput("bad"), http.StatusBadRequest},
		{"not found", NotFound("gone"), http.StatusNotFound},
		{"duplicate event", ErrDuplicateEvent, http.StatusOK},
		{"transient", Transient("retry me"), http.StatusServiceUnavailable},
		{"circuit open", CircuitOpen("tripped"), http.StatusServiceUnavailable},
		{"internal", Internal("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}
