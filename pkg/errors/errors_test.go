package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeStreamNotFound, http.StatusNotFound},
		{ErrCodeSessionNotFound, http.StatusNotFound},
		{ErrCodeStreamBusy, http.StatusConflict},
		{ErrCodeAdmissionDenied, http.StatusForbidden},
		{ErrCodeNotSVC, http.StatusBadRequest},
		{ErrCodeInvalidSDP, http.StatusBadRequest},
		{ErrCodeIceFailure, http.StatusBadGateway},
		{ErrCodeUpstreamError, http.StatusBadGateway},
		{ErrCodeUpstreamTimeout, http.StatusBadGateway},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		got := New(tc.code, "x")
		assert.Equal(t, tc.want, got.HTTPStatus, tc.code)
	}
}

func TestGetAppErrorUnwraps(t *testing.T) {
	base := StreamNotFound("room1")
	wrapped := fmt.Errorf("context: %w", base)

	got := GetAppError(wrapped)
	assert.NotNil(t, got)
	assert.Equal(t, ErrCodeStreamNotFound, got.Code)
}

func TestGetAppErrorNonAppError(t *testing.T) {
	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}

func TestWithContext(t *testing.T) {
	err := StreamBusy("room1")
	assert.Equal(t, "room1", err.Context["stream_id"])
}
