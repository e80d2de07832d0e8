package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bookpay/settlement-service/internal/store"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var testFallbackOrigins = []string{"https://bookpay.app", "http://localhost:3000"}

func corsRequest(t *testing.T, allowList *OriginAllowList, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	handler := CORSMiddleware(allowList)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(method, "/payments/client", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCORS_ReflectsAllowedOrigin(t *testing.T) {
	repo := store.NewMemoryRepository()
	repo.SetAllowedOrigins([]string{"https://studio.bookpay.app/", "https://admin.bookpay.app"})
	allowList := NewOriginAllowList(repo, testFallbackOrigins, time.Minute, zap.NewNop())

	rr := corsRequest(t, allowList, http.MethodGet, "https://studio.bookpay.app")
	assert.Equal(t, "https://studio.bookpay.app", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestCORS_DisallowedOriginGetsDefault(t *testing.T) {
	repo := store.NewMemoryRepository()
	repo.SetAllowedOrigins([]string{"https://studio.bookpay.app"})
	allowList := NewOriginAllowList(repo, testFallbackOrigins, time.Minute, zap.NewNop())

	rr := corsRequest(t, allowList, http.MethodGet, "https://evil.example.com")
	assert.Equal(t, "https://studio.bookpay.app", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightIsAnswered(t *testing.T) {
	allowList := NewOriginAllowList(nil, testFallbackOrigins, time.Minute, zap.NewNop())

	rr := corsRequest(t, allowList, http.MethodOptions, "http://localhost:3000")
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.Less(t, rr.Code, 300)
}

func TestOriginAllowList_FallsBackWhenStoreFailsOrIsEmpty(t *testing.T) {
	repo := store.NewMemoryRepository()
	repo.FailNext("GetAllowedOrigins", errors.New("connection refused"))
	allowList := NewOriginAllowList(repo, testFallbackOrigins, time.Minute, zap.NewNop())
	assert.Equal(t, testFallbackOrigins, allowList.Origins(context.Background()))

	empty := NewOriginAllowList(store.NewMemoryRepository(), testFallbackOrigins, time.Minute, zap.NewNop())
	assert.True(t, empty.IsAllowed(context.Background(), "HTTPS://BOOKPAY.APP/"))
	assert.False(t, empty.IsAllowed(context.Background(), ""))
}

func TestOriginAllowList_CachesUntilTTL(t *testing.T) {
	repo := store.NewMemoryRepository()
	repo.SetAllowedOrigins([]string{"https://one.bookpay.app"})
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	allowList := NewOriginAllowList(repo, testFallbackOrigins, time.Minute, zap.NewNop())
	allowList.now = func() time.Time { return now }

	assert.Equal(t, "https://one.bookpay.app", allowList.DefaultOrigin(context.Background()))

	repo.SetAllowedOrigins([]string{"https://two.bookpay.app"})
	now = now.Add(30 * time.Second)
	assert.Equal(t, "https://one.bookpay.app", allowList.DefaultOrigin(context.Background()))

	now = now.Add(time.Minute)
	assert.Equal(t, "https://two.bookpay.app", allowList.DefaultOrigin(context.Background()))
}
