package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/order"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	svc order.Service
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Create places a new order. Anonymous checkouts are allowed; a signed-in
// caller's id overrides whatever the body claims.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	if id := identityFrom(r); id.UserID != "" {
		req.CustomerID = id.UserID
	}

	result, err := h.svc.Create(r.Context(), req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	resp := map[string]any{
		"order":   result.Order,
		"success": true,
	}
	if result.RedirectURL != "" {
		resp["redirectUrl"] = result.RedirectURL
	}
	if result.BookingError != nil {
		resp["warning"] = "order placed but shipment booking is pending"
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

// Get returns one order. Guests may read recently placed orders, or present
// the gateway transaction id as ?transactionId=.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	id := identityFrom(r)
	claims := order.AccessClaims{
		UserID:        id.UserID,
		Role:          id.Role,
		TransactionID: r.URL.Query().Get("transactionId"),
	}

	o, err := h.svc.GetByID(r.Context(), orderID, claims)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}

// ListMine returns the caller's orders, newest first.
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListByCustomer(r.Context(), identityFrom(r).UserID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, orders)
}

// ListAll returns the admin order overview.
func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.ListAll(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summaries)
}

type cancellationRequest struct {
	Reason string `json:"reason"`
}

// RequestCancellation flags an order for cancellation without changing its
// state; an admin completes it via Cancel.
func (h *OrderHandler) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	var req cancellationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	if req.Reason == "" {
		respondWithError(w, r, apperr.New(apperr.KindValidation, "cancellation reason is required"))
		return
	}

	o, err := h.svc.RequestCancellation(r.Context(), chi.URLParam(r, "orderId"), identityFrom(r).UserID, req.Reason)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}

// Cancel performs the real cancellation, refunding paid gateway orders.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancellationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}

	o, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "orderId"), req.Reason)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}

// RefundStatus reconciles an order's refund against the gateway.
func (h *OrderHandler) RefundStatus(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.CheckRefundStatus(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"orderId":      o.OrderID,
		"refundId":     o.RefundID,
		"refundStatus": o.RefundStatus,
		"refundAmount": o.RefundAmount,
	})
}
