/**
 * @description
 * Origin allow-list for the payment API. Allowed origins live in the runtime configuration
 * store so they can change without a deploy. They are cached for a short TTL, and a
 * hardcoded fallback list is used whenever the store is empty or unreachable.
 *
 * @dependencies
 * - github.com/go-chi/cors: preflight handling and origin reflection.
 */
package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

var (
	corsAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsAllowedHeaders = []string{"Accept", "Authorization", "Content-Type", "X-Client-Info", "Apikey", "X-Paystack-Signature"}
)

// OriginSource returns the configured allow-list.
type OriginSource interface {
	GetAllowedOrigins(ctx context.Context) ([]string, error)
}

// OriginAllowList answers whether a browser origin may call the API.
type OriginAllowList struct {
	source   OriginSource
	fallback []string
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	cached  []string
	expires time.Time
}

func NewOriginAllowList(source OriginSource, fallback []string, ttl time.Duration, logger *zap.Logger) *OriginAllowList {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &OriginAllowList{
		source:   source,
		fallback: normalizeOrigins(fallback),
		ttl:      ttl,
		logger:   logger.Named("cors"),
		now:      time.Now,
	}
}

// Origins returns the current allow-list, refreshing it from the store when the cached
// copy has expired.
func (a *OriginAllowList) Origins(ctx context.Context) []string {
	a.mu.RLock()
	if a.cached != nil && a.now().Before(a.expires) {
		origins := a.cached
		a.mu.RUnlock()
		return origins
	}
	a.mu.RUnlock()

	origins := a.fallback
	if a.source != nil {
		loaded, err := a.source.GetAllowedOrigins(ctx)
		switch {
		case err != nil:
			a.logger.Warn("failed to load allowed origins, using fallback list", zap.Error(err))
		case len(normalizeOrigins(loaded)) > 0:
			origins = normalizeOrigins(loaded)
		}
	}

	a.mu.Lock()
	a.cached = origins
	a.expires = a.now().Add(a.ttl)
	a.mu.Unlock()
	return origins
}

// IsAllowed reports whether origin is on the allow-list.
func (a *OriginAllowList) IsAllowed(ctx context.Context, origin string) bool {
	origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
	if origin == "" {
		return false
	}
	for _, allowed := range a.Origins(ctx) {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// DefaultOrigin is reflected to callers whose origin is not allowed.
func (a *OriginAllowList) DefaultOrigin(ctx context.Context) string {
	if origins := a.Origins(ctx); len(origins) > 0 {
		return origins[0]
	}
	return ""
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSuffix(strings.TrimSpace(origin), "/"); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// CORSMiddleware gives every response an Access-Control-Allow-Origin header: the caller's
// origin when it is allowed, the default origin otherwise.
func CORSMiddleware(allowList *OriginAllowList) func(http.Handler) http.Handler {
	handler := cors.New(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return allowList.IsAllowed(r.Context(), origin)
		},
		AllowedMethods: corsAllowedMethods,
		AllowedHeaders: corsAllowedHeaders,
		MaxAge:         300,
	})
	allowHeaders := strings.Join(corsAllowedHeaders, ", ")
	allowMethods := strings.Join(corsAllowedMethods, ", ")

	return func(next http.Handler) http.Handler {
		wrapped := handler.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers := w.Header()
			if def := allowList.DefaultOrigin(r.Context()); def != "" {
				headers.Set("Access-Control-Allow-Origin", def)
			}
			headers.Set("Access-Control-Allow-Headers", allowHeaders)
			headers.Set("Access-Control-Allow-Methods", allowMethods)
			wrapped.ServeHTTP(w, r)
		})
	}
}
