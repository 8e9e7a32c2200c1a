package proxy

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceProtection_RejectsPastCeiling(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	blocking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	})
	h := ResourceProtection(2)(blocking)

	var wg sync.WaitGroup
	results := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))
			results[i] = w.Code
		}(i)
	}

	// wait until both in-flight slots are actually occupied before probing
	// the third, otherwise the ceiling check could race ahead of them.
	<-entered
	<-entered

	w3 := httptest.NewRecorder()
	h.ServeHTTP(w3, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w3.Code)

	close(release)
	wg.Wait()
	assert.Equal(t, http.StatusOK, results[0])
	assert.Equal(t, http.StatusOK, results[1])
}

func TestResourceProtection_DefaultCeilingUsedWhenUnset(t *testing.T) {
	h := ResourceProtection(0)(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
