/**
 * @description
 * HTTP router setup for the settlement service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterConfig wires the handlers into the router.
type RouterConfig struct {
	Webhook       http.Handler
	Payments      *PaymentHandlers
	Origins       *OriginAllowList
	AuthJWTSecret string
	Logger        *zap.Logger
}

// NewRouter creates a new Chi router and registers the webhook, payment and health routes.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if cfg.Origins != nil {
		r.Use(CORSMiddleware(cfg.Origins))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Webhook != nil {
		r.Method(http.MethodPost, "/", cfg.Webhook)
		r.Method(http.MethodPost, "/webhooks/paystack", cfg.Webhook)
	}

	if cfg.Payments != nil {
		r.Route("/payments", func(r chi.Router) {
			r.Use(BearerAuthMiddleware(cfg.AuthJWTSecret, cfg.Logger))
			r.Post("/client", cfg.Payments.handleInitiateClientPayment)
			r.Post("/subscription", cfg.Payments.handleInitiateSubscriptionPayment)
			r.Get("/verify/{reference}", cfg.Payments.handleVerifyPayment)
		})
	}

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request handled",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
