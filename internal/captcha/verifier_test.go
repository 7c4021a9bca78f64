package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MustafaBasol/crm-sub006/internal/config"
)

func newVerifyServer(t *testing.T, handler http.HandlerFunc) (*HTTPVerifier, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	v := NewHTTPVerifier(config.CaptchaConfig{
		VerifyURL: srv.URL,
		Secret:    "server-side-secret",
		Timeout:   time.Second,
	})
	return v, srv
}

func TestHTTPVerifierSuccess(t *testing.T) {
	var gotSecret, gotResponse, gotRemoteIP string
	v, _ := newVerifyServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotSecret = r.PostFormValue("secret")
		gotResponse = r.PostFormValue("response")
		gotRemoteIP = r.PostFormValue("remoteip")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true}`))
	})

	ok, err := v.Verify(context.Background(), "challenge-token", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "server-side-secret", gotSecret)
	assert.Equal(t, "challenge-token", gotResponse)
	assert.Equal(t, "203.0.113.7", gotRemoteIP)
}

func TestHTTPVerifierFailure(t *testing.T) {
	v, _ := newVerifyServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": false, "error-codes": ["invalid-input-response"]}`))
	})

	ok, err := v.Verify(context.Background(), "bad-token", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPVerifierEmptyTokenShortCircuits(t *testing.T) {
	called := false
	v, _ := newVerifyServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	ok, err := v.Verify(context.Background(), "", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, called, "empty token must not hit the endpoint")
}

func TestHTTPVerifierNonOKStatus(t *testing.T) {
	v, _ := newVerifyServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := v.Verify(context.Background(), "challenge-token", "")
	assert.Error(t, err)
}

func TestHTTPVerifierEndpointDown(t *testing.T) {
	v, srv := newVerifyServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := v.Verify(context.Background(), "challenge-token", "")
	assert.Error(t, err)
}

func TestStaticVerifier(t *testing.T) {
	ok, err := Static{Result: true}.Verify(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Static{Result: false}.Verify(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.False(t, ok)
}
