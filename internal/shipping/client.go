// Package shipping wraps the Shipsy/DTDC carrier API: consignment booking and
// shipment cancellation. Inbound tracking webhooks are decoded here too but
// applied by the order orchestrator.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/config"
	"github.com/ankitchauhan1221/maluk-backend/internal/extcall"
	"github.com/ankitchauhan1221/maluk-backend/internal/order"
)

type Client struct {
	cfg   config.ShipsyConfig
	http  *http.Client
	retry extcall.Policy
	now   func() time.Time
}

func NewClient(cfg config.ShipsyConfig) *Client {
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		retry: extcall.DefaultPolicy,
		now:   time.Now,
	}
}

type partyDetails struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	AlternatePhone string `json:"alternate_phone"`
	AddressLine1   string `json:"address_line_1"`
	AddressLine2   string `json:"address_line_2"`
	Pincode        string `json:"pincode"`
	City           string `json:"city"`
	State          string `json:"state"`
	Country        string `json:"country,omitempty"`
	Email          string `json:"email,omitempty"`
}

type consignment struct {
	CustomerCode            string       `json:"customer_code"`
	ServiceTypeID           string       `json:"service_type_id"`
	LoadType                string       `json:"load_type"`
	ConsignmentType         string       `json:"consignment_type"`
	DimensionUnit           string       `json:"dimension_unit"`
	Length                  string       `json:"length"`
	Width                   string       `json:"width"`
	Height                  string       `json:"height"`
	WeightUnit              string       `json:"weight_unit"`
	Weight                  string       `json:"weight"`
	DeclaredValue           string       `json:"declared_value"`
	EwayBill                string       `json:"eway_bill"`
	InvoiceNumber           string       `json:"invoice_number"`
	InvoiceDate             string       `json:"invoice_date"`
	NumPieces               int          `json:"num_pieces"`
	OriginDetails           partyDetails `json:"origin_details"`
	DestinationDetails      partyDetails `json:"destination_details"`
	ReturnDetails           partyDetails `json:"return_details"`
	CustomerReferenceNumber string       `json:"customer_reference_number"`
	CODCollectionMode       string       `json:"cod_collection_mode"`
	CODAmount               string       `json:"cod_amount"`
	CommodityID             string       `json:"commodity_id"`
	Description             string       `json:"description"`
	ReferenceNumber         string       `json:"reference_number"`
}

type bookRequest struct {
	Consignments []consignment `json:"consignments"`
}

type bookResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Success         bool   `json:"success"`
		ReferenceNumber string `json:"reference_number"`
		Message         string `json:"message"`
	} `json:"data"`
	Message string `json:"message"`
}

// Book submits a consignment built from the order's snapshot data. The
// declared value is the payable amount; COD orders carry it as cash to
// collect. Returns the carrier tracking number.
func (c *Client) Book(ctx context.Context, o *order.Order) (string, error) {
	isCOD := o.PaymentMethod == order.MethodCOD

	serviceType := "B2C PRIORITY"
	codMode, codAmount := "", "0"
	if isCOD {
		serviceType = "B2C SMART EXPRESS"
		codMode = "CASH"
		codAmount = rupees(o.PayableAmount)
	}

	names := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		names = append(names, item.Name)
	}

	payload := bookRequest{Consignments: []consignment{{
		CustomerCode:    c.cfg.CustomerCode,
		ServiceTypeID:   serviceType,
		LoadType:        "NON-DOCUMENT",
		ConsignmentType: "Forward",
		DimensionUnit:   "cm",
		Length:          "10.0",
		Width:           "10.0",
		Height:          "10.0",
		WeightUnit:      "kg",
		Weight:          "0.5",
		DeclaredValue:   rupees(o.PayableAmount),
		InvoiceNumber:   o.OrderID,
		InvoiceDate:     c.now().UTC().Format("2006-01-02"),
		NumPieces:       1,
		OriginDetails: partyDetails{
			Name:           c.cfg.WarehouseName,
			Phone:          c.cfg.WarehousePhone,
			AlternatePhone: c.cfg.WarehousePhone,
			AddressLine1:   c.cfg.WarehouseAddress,
			Pincode:        c.cfg.WarehousePincode,
			City:           c.cfg.WarehouseCity,
			State:          c.cfg.WarehouseState,
		},
		DestinationDetails: partyDetails{
			Name:           o.ShippingAddress.Name,
			Phone:          o.ShippingAddress.Phone,
			AlternatePhone: o.ShippingAddress.Phone,
			AddressLine1:   o.ShippingAddress.StreetAddress,
			AddressLine2:   o.ShippingAddress.Apartment,
			Pincode:        o.ShippingAddress.Zip,
			City:           o.ShippingAddress.City,
			State:          o.ShippingAddress.State,
		},
		ReturnDetails: partyDetails{
			Name:           c.cfg.ReturnName,
			Phone:          c.cfg.ReturnPhone,
			AlternatePhone: c.cfg.ReturnPhone,
			AddressLine1:   c.cfg.ReturnAddress,
			Pincode:        c.cfg.ReturnPincode,
			City:           c.cfg.ReturnCity,
			State:          c.cfg.ReturnState,
			Country:        "India",
			Email:          c.cfg.ReturnEmail,
		},
		CustomerReferenceNumber: o.OrderID,
		CODCollectionMode:       codMode,
		CODAmount:               codAmount,
		CommodityID:             "2",
		Description:             strings.Join(names, ", "),
	}}}

	var resp bookResponse
	if err := c.post(ctx, c.cfg.BookURL, payload, &resp); err != nil {
		return "", err
	}

	if resp.Status != "OK" || len(resp.Data) == 0 {
		msg := resp.Message
		if msg == "" {
			msg = "invalid response"
		}
		return "", apperr.Newf(apperr.KindExternalPermanent, "carrier booking failed: %s", msg)
	}
	result := resp.Data[0]
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "unknown error"
		}
		return "", apperr.Newf(apperr.KindExternalPermanent, "carrier booking failed: %s", msg)
	}
	if result.ReferenceNumber == "" {
		return "", apperr.New(apperr.KindExternalPermanent, "carrier booking returned no tracking number")
	}

	log.Info().Str("order_id", o.OrderID).Str("tracking_number", result.ReferenceNumber).Msg("shipment booked")
	return result.ReferenceNumber, nil
}

type cancelRequest struct {
	CustomerCode string `json:"customer_code"`
	AWBNumber    string `json:"awb_number"`
	Reason       string `json:"reason"`
}

type cancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Cancel asks the carrier to cancel a booked shipment.
func (c *Client) Cancel(ctx context.Context, trackingNumber, reason string) error {
	if reason == "" {
		reason = "Customer requested cancellation"
	}
	payload := cancelRequest{
		CustomerCode: c.cfg.CustomerCode,
		AWBNumber:    trackingNumber,
		Reason:       reason,
	}

	var resp cancelResponse
	if err := c.post(ctx, c.cfg.CancelURL, payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "unknown error"
		}
		return apperr.Newf(apperr.KindExternalPermanent, "carrier cancellation failed: %s", msg)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, payload, out any) error {
	return c.retry.Do(ctx, func() error {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal carrier payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("failed to build carrier request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("api-key", c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return apperr.Wrap(apperr.KindExternalTransient, "carrier request failed", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperr.Wrap(apperr.KindExternalTransient, "failed to read carrier response", err)
		}

		switch {
		case resp.StatusCode >= 500:
			return apperr.Newf(apperr.KindExternalTransient, "carrier returned %d", resp.StatusCode)
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return apperr.Newf(apperr.KindExternalAuth, "carrier credential rejected with %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return apperr.Newf(apperr.KindExternalPermanent, "carrier rejected request with %d", resp.StatusCode)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return apperr.Wrap(apperr.KindExternalTransient, "failed to decode carrier response", err)
		}
		return nil
	})
}

// rupees renders a minor-unit amount the way the carrier expects, e.g.
// 51000 -> "510.00".
func rupees(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
