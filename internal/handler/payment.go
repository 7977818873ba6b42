package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/order"
)

// PaymentHandler converges gateway callbacks and frontend status polls onto
// the order orchestrator.
type PaymentHandler struct {
	svc         order.Service
	frontendURL string
}

func NewPaymentHandler(svc order.Service, frontendURL string) *PaymentHandler {
	return &PaymentHandler{svc: svc, frontendURL: strings.TrimRight(frontendURL, "/")}
}

// Status is the polling endpoint: it re-verifies the payment with the gateway
// and returns the reconciled order.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		respondWithError(w, r, apperr.New(apperr.KindValidation, "orderId is required"))
		return
	}

	o, err := h.svc.ConfirmPayment(r.Context(), orderID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"orderId":       o.OrderID,
		"status":        o.Status,
		"paymentStatus": o.PaymentStatus,
		"transactionId": o.TransactionID,
	})
}

// Callback is where the gateway's hosted checkout sends the customer back.
// It reconciles the payment, then redirects the browser to the storefront's
// success or failure page. Reconciliation errors still redirect: the browser
// is not an API client, and the poll endpoint will catch up.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		http.Redirect(w, r, h.frontendURL+"/payment-failed", http.StatusFound)
		return
	}

	o, err := h.svc.ConfirmPayment(r.Context(), orderID)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("payment callback reconciliation failed")
		http.Redirect(w, r, h.failureURL(orderID), http.StatusFound)
		return
	}

	if o.PaymentStatus == order.PaymentPaid {
		target := fmt.Sprintf("%s/order-confirmation?orderId=%s&transactionId=%s",
			h.frontendURL, url.QueryEscape(o.OrderID), url.QueryEscape(o.TransactionID))
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	http.Redirect(w, r, h.failureURL(orderID), http.StatusFound)
}

func (h *PaymentHandler) failureURL(orderID string) string {
	return fmt.Sprintf("%s/payment-failed?orderId=%s", h.frontendURL, url.QueryEscape(orderID))
}
