package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyLimit_RejectsDeclaredOversizeBody(t *testing.T) {
	svc := newTestSecurityService(t)
	ctx := context.Background()
	p, err := svc.GetPolicy(ctx)
	require.NoError(t, err)
	p.BodyLimits.MaxBytes = 10
	require.NoError(t, svc.SetPolicy(ctx, p))

	h := BodyLimit(svc.GetPolicy)(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(strings.Repeat("x", 100)))
	r.ContentLength = 100
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestBodyLimit_AllowsWithinLimit(t *testing.T) {
	svc := newTestSecurityService(t)
	ctx := context.Background()
	p, err := svc.GetPolicy(ctx)
	require.NoError(t, err)
	p.BodyLimits.MaxBytes = 1000
	require.NoError(t, svc.SetPolicy(ctx, p))

	h := BodyLimit(svc.GetPolicy)(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("small body"))
	r.ContentLength = int64(len("small body"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}
