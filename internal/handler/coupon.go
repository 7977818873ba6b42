package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/coupon"
)

// CouponHandler exposes the cart-preview coupon check.
type CouponHandler struct {
	svc coupon.Service
}

func NewCouponHandler(svc coupon.Service) *CouponHandler {
	return &CouponHandler{svc: svc}
}

type applyCouponRequest struct {
	Code        string            `json:"code"`
	Cart        []coupon.CartItem `json:"cart"`
	OrderAmount int64             `json:"orderAmount"`
}

// Apply evaluates a coupon against the caller's cart without recording usage.
func (h *CouponHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	if len(req.Cart) == 0 {
		respondWithError(w, r, apperr.New(apperr.KindValidation, "cart is empty"))
		return
	}

	discount, err := h.svc.Apply(r.Context(), req.Code, req.Cart, req.OrderAmount, identityFrom(r).UserID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"discount": discount,
	})
}
