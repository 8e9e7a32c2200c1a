package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyIDCapturingHandler(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = KeyIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth_SkipsExemptPaths(t *testing.T) {
	svc := newTestSecurityService(t)
	var captured string
	h := APIKeyAuth(svc)(keyIDCapturingHandler(&captured))

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, captured)
}

func TestAPIKeyAuth_MissingKeyRejected(t *testing.T) {
	svc := newTestSecurityService(t)
	var captured string
	h := APIKeyAuth(svc)(keyIDCapturingHandler(&captured))

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuth_BearerTokenAccepted(t *testing.T) {
	svc := newTestSecurityService(t)
	plaintext, rec, err := svc.CreateAPIKey(context.Background(), "test")
	require.NoError(t, err)

	var captured string
	h := APIKeyAuth(svc)(keyIDCapturingHandler(&captured))

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	r.Header.Set("Authorization", "Bearer "+plaintext)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, rec.ID, captured)
}

func TestAPIKeyAuth_XApiKeyHeaderAccepted(t *testing.T) {
	svc := newTestSecurityService(t)
	plaintext, _, err := svc.CreateAPIKey(context.Background(), "test")
	require.NoError(t, err)

	var captured string
	h := APIKeyAuth(svc)(keyIDCapturingHandler(&captured))

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	r.Header.Set("X-Api-Key", plaintext)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyAuth_RevokedKeyRejected(t *testing.T) {
	svc := newTestSecurityService(t)
	ctx := context.Background()
	plaintext, rec, err := svc.CreateAPIKey(ctx, "test")
	require.NoError(t, err)
	require.NoError(t, svc.RevokeAPIKey(ctx, rec.ID))

	var captured string
	h := APIKeyAuth(svc)(keyIDCapturingHandler(&captured))

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	r.Header.Set("Authorization", "Bearer "+plaintext)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
