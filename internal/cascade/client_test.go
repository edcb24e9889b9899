package cascade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "live777go/pkg/errors"
)

func newTestClient() *Client {
	return NewClient(nil, nil, time.Second, 2*time.Second, zap.NewNop())
}

func TestPostSDPReturnsAnswerAndResourceURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/sdp", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Location", "/session/abc")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("v=0\r\no=answer\r\n"))
	}))
	defer srv.Close()

	c := newTestClient()
	answer, resourceURL, err := c.postSDP(context.Background(), srv.URL, "secret", "v=0\r\no=offer\r\n")
	require.NoError(t, err)
	assert.Equal(t, "v=0\r\no=answer\r\n", answer)
	assert.Equal(t, "/session/abc", resourceURL)
}

func TestPostSDPOmitsAuthorizationWhenTokenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient()
	_, _, err := c.postSDP(context.Background(), srv.URL, "", "v=0\r\n")
	require.NoError(t, err)
}

func TestPostSDPReturnsUpstreamErrorOnUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient()
	_, _, err := c.postSDP(context.Background(), srv.URL, "tok", "v=0\r\n")
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeUpstreamError, appErr.Code)
}

func TestPostSDPReturnsUpstreamTimeoutOnUnreachablePeer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused: simulates an unreachable cascade peer

	c := newTestClient()
	_, _, err := c.postSDP(context.Background(), url, "tok", "v=0\r\n")
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeUpstreamTimeout, appErr.Code)
}

func TestHTTPStatusErrorMessage(t *testing.T) {
	err := httpStatusError(502)
	assert.Contains(t, err.Error(), "502")
}

func TestTeardownIssuesDeleteWithBearerToken(t *testing.T) {
	var gotMethod, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient()
	err := c.Teardown(context.Background(), srv.URL+"/session/abc", "secret")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestTeardownTreatsNotFoundAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient()
	err := c.Teardown(context.Background(), srv.URL+"/session/gone", "")
	require.NoError(t, err)
}

func TestTeardownReturnsUpstreamErrorOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient()
	err := c.Teardown(context.Background(), srv.URL+"/session/abc", "")
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeUpstreamError, appErr.Code)
}
