package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rl1809/review-platform/internal/core/domain"
	"github.com/rl1809/review-platform/internal/core/service"
)

type ShopService interface {
	GetShop(ctx context.Context, id int64) (domain.Shop, error)
	UpdateShop(ctx context.Context, shop domain.Shop) error
	ListShopTypes(ctx context.Context) ([]domain.ShopType, error)
}

type VoucherService interface {
	PurchaseVoucher(ctx context.Context, voucherID, userID int64) (int64, error)
	AddSeckillVoucher(ctx context.Context, voucher domain.SeckillVoucher) error
}

// Result is the response envelope for every JSON endpoint.
type Result struct {
	Success  bool        `json:"success"`
	ErrorMsg string      `json:"errorMsg,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

type HTTPHandler struct {
	shops    ShopService
	vouchers VoucherService
	ping     func(ctx context.Context) error
	logger   *zap.Logger
}

// NewHTTPHandler wires the handlers. ping, when set, backs the health check.
func NewHTTPHandler(shops ShopService, vouchers VoucherService, ping func(ctx context.Context) error, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{shops: shops, vouchers: vouchers, ping: ping, logger: logger}
}

// GetShop handles GET /shop/{id}.
func (h *HTTPHandler) GetShop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeFail(w, http.StatusBadRequest, "invalid shop id")
		return
	}

	shop, err := h.shops.GetShop(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true, Data: shop})
}

// UpdateShop handles PUT /shop.
func (h *HTTPHandler) UpdateShop(w http.ResponseWriter, r *http.Request) {
	var shop domain.Shop
	if err := json.NewDecoder(r.Body).Decode(&shop); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.shops.UpdateShop(r.Context(), shop); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true})
}

// ListShopTypes handles GET /shop-type/list.
func (h *HTTPHandler) ListShopTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.shops.ListShopTypes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true, Data: types})
}

// AddSeckillVoucher handles POST /voucher/seckill.
func (h *HTTPHandler) AddSeckillVoucher(w http.ResponseWriter, r *http.Request) {
	var voucher domain.SeckillVoucher
	if err := json.NewDecoder(r.Body).Decode(&voucher); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.vouchers.AddSeckillVoucher(r.Context(), voucher); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true, Data: voucher.VoucherID})
}

// PurchaseVoucher handles POST /voucher-order/seckill/{id}. The caller is identified by X-User-ID.
func (h *HTTPHandler) PurchaseVoucher(w http.ResponseWriter, r *http.Request) {
	voucherID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || voucherID <= 0 {
		writeFail(w, http.StatusBadRequest, "invalid voucher id")
		return
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get("X-User-ID")), 10, 64)
	if err != nil || userID <= 0 {
		writeFail(w, http.StatusUnauthorized, "user not logged in")
		return
	}

	orderID, err := h.vouchers.PurchaseVoucher(r.Context(), voucherID, userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true, Data: orderID})
}

// HealthCheck handles GET /health.
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			loggerFrom(r, h.logger).Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		loggerFrom(r, h.logger).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeFail(w, status, message)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid argument"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrDuplicatePurchase):
		return http.StatusConflict, "each user may buy only once"
	case errors.Is(err, domain.ErrOutOfStock):
		return http.StatusGone, "sold out"
	case errors.Is(err, domain.ErrEnded):
		return http.StatusGone, "sale has ended"
	case errors.Is(err, domain.ErrNotYetOpen):
		return http.StatusTooEarly, "sale has not started"
	case errors.Is(err, service.ErrCacheBusy):
		return http.StatusServiceUnavailable, "busy, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Result{Success: false, ErrorMsg: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
