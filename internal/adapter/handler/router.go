package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rl1809/review-platform/internal/observability"
)

// NewRouter registers every HTTP route. purchaseLimiter guards only the seckill purchase endpoint.
func NewRouter(h *HTTPHandler, logger *zap.Logger, purchaseLimiter *rate.Limiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(RecoverMiddleware(logger))
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.HandleFunc("/shop/{id:[0-9]+}", h.GetShop).Methods(http.MethodGet)
	router.HandleFunc("/shop", h.UpdateShop).Methods(http.MethodPut)
	router.HandleFunc("/shop-type/list", h.ListShopTypes).Methods(http.MethodGet)
	router.HandleFunc("/voucher/seckill", h.AddSeckillVoucher).Methods(http.MethodPost)

	purchase := router.PathPrefix("/voucher-order").Subrouter()
	purchase.Use(RateLimitMiddleware(purchaseLimiter))
	purchase.HandleFunc("/seckill/{id:[0-9]+}", h.PurchaseVoucher).Methods(http.MethodPost)

	return router
}
