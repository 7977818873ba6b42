package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/order"
	"github.com/ankitchauhan1221/maluk-backend/internal/shipping"
)

// ShippingHandler ingests carrier tracking webhooks.
type ShippingHandler struct {
	svc order.Service
}

func NewShippingHandler(svc order.Service) *ShippingHandler {
	return &ShippingHandler{svc: svc}
}

// Webhook accepts a carrier tracking notification. Duplicate deliveries are
// harmless; the carrier expects a 200 either way once the payload parses.
func (h *ShippingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload shipping.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, r, apperr.New(apperr.KindValidation, "invalid webhook payload"))
		return
	}

	updates, err := payload.Updates()
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	if err := h.svc.IngestTracking(r.Context(), payload.Shipment.ShipmentNo, updates); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}
