// Package payment wraps the PhonePe-style payment gateway: credential
// caching, payment initiation, settlement verification, and refunds. Amounts
// cross this boundary in minor currency units.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/config"
	"github.com/ankitchauhan1221/maluk-backend/internal/extcall"
)

// State is the gateway's settlement state, normalised to three values.
type State string

const (
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StatePending   State = "PENDING"
)

// VerifyResult is the outcome of a settlement-status lookup.
type VerifyResult struct {
	State         State
	TransactionID string
	Amount        int64
}

type Client struct {
	cfg   config.PhonePeConfig
	http  *http.Client
	retry extcall.Policy
	now   func() time.Time

	// The access token is a process-wide cached resource. Racing refreshes
	// are harmless (each produces an equally valid token); the mutex only
	// avoids redundant network calls.
	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
}

func NewClient(cfg config.PhonePeConfig) *Client {
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		retry: extcall.DefaultPolicy,
		now:   time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// authenticate fetches a fresh client-credentials token. Callers hold c.mu.
func (c *Client) authenticate(ctx context.Context) error {
	form := url.Values{
		"client_id":      {c.cfg.ClientID},
		"client_version": {c.cfg.ClientVersion},
		"client_secret":  {c.cfg.ClientSecret},
		"grant_type":     {"client_credentials"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindExternalTransient, "gateway auth request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindExternalTransient, "failed to read gateway auth response", err)
	}
	if resp.StatusCode >= 500 {
		return apperr.Newf(apperr.KindExternalTransient, "gateway auth returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.Newf(apperr.KindExternalAuth, "gateway auth rejected with %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return apperr.Wrap(apperr.KindExternalTransient, "failed to decode gateway auth response", err)
	}
	if tok.AccessToken == "" {
		return apperr.New(apperr.KindExternalAuth, "gateway auth returned no access token")
	}

	c.token = tok.AccessToken
	c.tokenExpiresAt = time.Unix(tok.ExpiresAt, 0)
	log.Debug().Time("expires_at", c.tokenExpiresAt).Msg("gateway auth token refreshed")
	return nil
}

// ensureToken returns a token that is valid for at least another minute,
// refreshing it when needed.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiresAt.Add(-60*time.Second)) {
		return c.token, nil
	}

	if err := c.retry.Do(ctx, func() error { return c.authenticate(ctx) }); err != nil {
		return "", err
	}
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

type gatewayError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// call performs one authenticated gateway request with bounded retries for
// transient failures and a single re-authentication retry for 401s. The
// response body is decoded into out.
func (c *Client) call(ctx context.Context, method, path string, payload any, out any) error {
	reauthed := false

	attempt := func() error {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}

		var body io.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("failed to marshal gateway payload: %w", err)
			}
			body = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
		if err != nil {
			return fmt.Errorf("failed to build gateway request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "O-Bearer "+token)

		resp, err := c.http.Do(req)
		if err != nil {
			return apperr.Wrap(apperr.KindExternalTransient, "gateway request failed", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperr.Wrap(apperr.KindExternalTransient, "failed to read gateway response", err)
		}

		switch {
		case resp.StatusCode >= 500:
			return apperr.Newf(apperr.KindExternalTransient, "gateway returned %d", resp.StatusCode)
		case resp.StatusCode == http.StatusUnauthorized:
			return apperr.New(apperr.KindExternalAuth, "gateway credential rejected")
		case resp.StatusCode >= 400:
			var gwErr gatewayError
			_ = json.Unmarshal(raw, &gwErr)
			msg := gwErr.Message
			if msg == "" {
				msg = fmt.Sprintf("gateway rejected request with %d", resp.StatusCode)
			}
			return apperr.New(apperr.KindExternalPermanent, msg)
		}

		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return apperr.Wrap(apperr.KindExternalTransient, "failed to decode gateway response", err)
			}
		}
		return nil
	}

	return c.retry.Do(ctx, func() error {
		err := attempt()
		if apperr.IsKind(err, apperr.KindExternalAuth) && !reauthed {
			// One re-auth retry on an expired credential; no backoff loop.
			reauthed = true
			c.invalidateToken()
			err = attempt()
		}
		return err
	})
}

type initiateRequest struct {
	MerchantOrderID string      `json:"merchantOrderId"`
	Amount          int64       `json:"amount"`
	ExpireAfter     int         `json:"expireAfter"`
	PaymentFlow     paymentFlow `json:"paymentFlow"`
}

type paymentFlow struct {
	Type         string       `json:"type"`
	Message      string       `json:"message"`
	MerchantURLs merchantURLs `json:"merchantUrls"`
}

type merchantURLs struct {
	RedirectURL string `json:"redirectUrl"`
}

type initiateResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// Initiate starts a checkout for the order and returns the gateway redirect
// URL. The order's own identifier is the merchant order id, which is what
// makes later Verify calls idempotent.
func (c *Client) Initiate(ctx context.Context, orderID string, amount int64, redirectURL string) (string, error) {
	payload := initiateRequest{
		MerchantOrderID: orderID,
		Amount:          amount,
		ExpireAfter:     1200,
		PaymentFlow: paymentFlow{
			Type:         "PG_CHECKOUT",
			Message:      "Payment for order " + orderID,
			MerchantURLs: merchantURLs{RedirectURL: redirectURL},
		},
	}

	var resp initiateResponse
	if err := c.call(ctx, http.MethodPost, "/checkout/v2/pay", payload, &resp); err != nil {
		return "", err
	}
	if resp.RedirectURL == "" {
		return "", apperr.New(apperr.KindExternalPermanent, "payment initiation failed: no redirect URL in response")
	}
	return resp.RedirectURL, nil
}

type statusResponse struct {
	State          string `json:"state"`
	OrderID        string `json:"orderId"`
	Amount         int64  `json:"amount"`
	PaymentDetails []struct {
		TransactionID string `json:"transactionId"`
	} `json:"paymentDetails"`
}

// Verify looks up the settlement state for an order. Unknown gateway states
// are reported as pending so callers keep polling instead of failing orders.
func (c *Client) Verify(ctx context.Context, orderID string) (VerifyResult, error) {
	var resp statusResponse
	if err := c.call(ctx, http.MethodGet, "/checkout/v2/order/"+orderID+"/status?details=true", nil, &resp); err != nil {
		return VerifyResult{}, err
	}

	transactionID := orderID
	if len(resp.PaymentDetails) > 0 && resp.PaymentDetails[0].TransactionID != "" {
		transactionID = resp.PaymentDetails[0].TransactionID
	} else if resp.OrderID != "" {
		transactionID = resp.OrderID
	}

	result := VerifyResult{TransactionID: transactionID, Amount: resp.Amount}
	switch resp.State {
	case string(StateCompleted):
		result.State = StateCompleted
	case string(StateFailed):
		result.State = StateFailed
	default:
		result.State = StatePending
	}
	return result, nil
}

type refundRequest struct {
	MerchantRefundID        string `json:"merchantRefundId"`
	OriginalMerchantOrderID string `json:"originalMerchantOrderId"`
	OriginalTransactionID   string `json:"originalTransactionId,omitempty"`
	Amount                  int64  `json:"amount"`
}

type refundResponse struct {
	RefundID string `json:"refundId"`
}

// Refund initiates a refund against a settled payment and returns the refund
// identifier used for later status reconciliation.
func (c *Client) Refund(ctx context.Context, orderID, transactionID string, amount int64) (string, error) {
	merchantRefundID, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("failed to generate refund id: %w", err)
	}

	payload := refundRequest{
		MerchantRefundID:        merchantRefundID.String(),
		OriginalMerchantOrderID: orderID,
		OriginalTransactionID:   transactionID,
		Amount:                  amount,
	}

	var resp refundResponse
	if err := c.call(ctx, http.MethodPost, "/payments/v2/refund", payload, &resp); err != nil {
		return "", err
	}
	if resp.RefundID == "" {
		resp.RefundID = merchantRefundID.String()
	}

	log.Info().Str("order_id", orderID).Str("refund_id", resp.RefundID).Msg("gateway refund initiated")
	return resp.RefundID, nil
}

type refundStatusResponse struct {
	State string `json:"state"`
}

// RefundStatus reads the asynchronous refund outcome by refund identifier.
func (c *Client) RefundStatus(ctx context.Context, refundID string) (State, error) {
	var resp refundStatusResponse
	if err := c.call(ctx, http.MethodGet, "/payments/v2/refund/"+refundID+"/status", nil, &resp); err != nil {
		return "", err
	}

	switch resp.State {
	case string(StateCompleted):
		return StateCompleted, nil
	case string(StateFailed):
		return StateFailed, nil
	default:
		return StatePending, nil
	}
}
