package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/order"
)

type mockOrderService struct {
	createFunc              func(ctx context.Context, req order.CreateRequest) (*order.CreateResult, error)
	getByIDFunc             func(ctx context.Context, orderID string, claims order.AccessClaims) (*order.Order, error)
	listByCustomerFunc      func(ctx context.Context, customerID string) ([]order.Order, error)
	listAllFunc             func(ctx context.Context) ([]order.Summary, error)
	confirmPaymentFunc      func(ctx context.Context, orderID string) (*order.Order, error)
	ingestTrackingFunc      func(ctx context.Context, trackingNumber string, updates []order.TrackingUpdate) error
	requestCancellationFunc func(ctx context.Context, orderID, userID, reason string) (*order.Order, error)
	cancelFunc              func(ctx context.Context, orderID, reason string) (*order.Order, error)
	checkRefundStatusFunc   func(ctx context.Context, orderID string) (*order.Order, error)
}

func (m *mockOrderService) Create(ctx context.Context, req order.CreateRequest) (*order.CreateResult, error) {
	return m.createFunc(ctx, req)
}

func (m *mockOrderService) GetByID(ctx context.Context, orderID string, claims order.AccessClaims) (*order.Order, error) {
	return m.getByIDFunc(ctx, orderID, claims)
}

func (m *mockOrderService) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	return m.listByCustomerFunc(ctx, customerID)
}

func (m *mockOrderService) ListAll(ctx context.Context) ([]order.Summary, error) {
	return m.listAllFunc(ctx)
}

func (m *mockOrderService) ConfirmPayment(ctx context.Context, orderID string) (*order.Order, error) {
	return m.confirmPaymentFunc(ctx, orderID)
}

func (m *mockOrderService) IngestTracking(ctx context.Context, trackingNumber string, updates []order.TrackingUpdate) error {
	return m.ingestTrackingFunc(ctx, trackingNumber, updates)
}

func (m *mockOrderService) RequestCancellation(ctx context.Context, orderID, userID, reason string) (*order.Order, error) {
	return m.requestCancellationFunc(ctx, orderID, userID, reason)
}

func (m *mockOrderService) Cancel(ctx context.Context, orderID, reason string) (*order.Order, error) {
	return m.cancelFunc(ctx, orderID, reason)
}

func (m *mockOrderService) CheckRefundStatus(ctx context.Context, orderID string) (*order.Order, error) {
	return m.checkRefundStatusFunc(ctx, orderID)
}

func newOrderRouter(svc order.Service) *chi.Mux {
	h := NewOrderHandler(svc)
	r := chi.NewRouter()
	r.Use(WithIdentity)
	r.Post("/api/orders", RequireAuth(h.Create))
	r.Get("/api/orders", RequireAuth(h.ListMine))
	r.Get("/api/orders/all", RequireAdmin(h.ListAll))
	r.Get("/api/orders/{orderId}", h.Get)
	r.Post("/api/orders/{orderId}/cancellation-request", RequireAuth(h.RequestCancellation))
	r.Post("/api/orders/{orderId}/cancel", RequireAdmin(h.Cancel))
	return r
}

func TestOrderHandler_Create(t *testing.T) {
	svc := &mockOrderService{
		createFunc: func(_ context.Context, req order.CreateRequest) (*order.CreateResult, error) {
			assert.Equal(t, "user-1", req.CustomerID)
			return &order.CreateResult{
				Order:       &order.Order{OrderID: "ORD26000001", Status: order.StatusProcessing},
				RedirectURL: "",
			}, nil
		},
	}
	body := `{"customerId":"spoofed","products":[{"productId":"p1","quantity":1}],"paymentMethod":"COD"}`

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(body))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.NotContains(t, resp, "redirectUrl")
}

func TestOrderHandler_CreateWithRedirect(t *testing.T) {
	svc := &mockOrderService{
		createFunc: func(context.Context, order.CreateRequest) (*order.CreateResult, error) {
			return &order.CreateResult{
				Order:       &order.Order{OrderID: "ORD26000001", Status: order.StatusPendingPayment},
				RedirectURL: "https://pay.example.com/xyz",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(`{"paymentMethod":"PhonePe"}`))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://pay.example.com/xyz", resp["redirectUrl"])
}

func TestOrderHandler_CreateInvalidBody(t *testing.T) {
	svc := &mockOrderService{}

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(`{not json`))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHandler_CreateRequiresAuth(t *testing.T) {
	svc := &mockOrderService{
		createFunc: func(context.Context, order.CreateRequest) (*order.CreateResult, error) {
			t.Fatal("anonymous request must not reach the service")
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(`{"paymentMethod":"COD"}`))
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrderHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantInBody string
	}{
		{"validation", apperr.New(apperr.KindValidation, "bad input"), http.StatusBadRequest, "bad input"},
		{"not_found", apperr.New(apperr.KindNotFound, "order not found"), http.StatusNotFound, ""},
		{"conflict", apperr.New(apperr.KindConflict, "already cancelled"), http.StatusConflict, ""},
		{"unauthenticated", apperr.New(apperr.KindUnauthenticated, "sign in"), http.StatusUnauthorized, ""},
		{"permission_denied", apperr.New(apperr.KindPermissionDenied, "not yours"), http.StatusForbidden, ""},
		{"gateway_down", apperr.New(apperr.KindExternalTransient, "timeout"), http.StatusBadGateway, ""},
		{"gateway_rejected", apperr.New(apperr.KindExternalPermanent, "amount below gateway minimum"), http.StatusUnprocessableEntity, "amount below gateway minimum"},
		{"unclassified", assert.AnError, http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{
				getByIDFunc: func(context.Context, string, order.AccessClaims) (*order.Order, error) {
					return nil, tt.err
				},
			}

			req := httptest.NewRequest(http.MethodGet, "/api/orders/ORD26000001", nil)
			rec := httptest.NewRecorder()
			newOrderRouter(svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantInBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantInBody)
			}
		})
	}
}

func TestOrderHandler_GetPassesClaims(t *testing.T) {
	svc := &mockOrderService{
		getByIDFunc: func(_ context.Context, orderID string, claims order.AccessClaims) (*order.Order, error) {
			assert.Equal(t, "ORD26000001", orderID)
			assert.Equal(t, "user-1", claims.UserID)
			assert.Equal(t, "TXN42", claims.TransactionID)
			return &order.Order{OrderID: orderID}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/orders/ORD26000001?transactionId=TXN42", nil)
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderHandler_ListMineRequiresAuth(t *testing.T) {
	svc := &mockOrderService{
		listByCustomerFunc: func(_ context.Context, customerID string) ([]order.Order, error) {
			assert.Equal(t, "user-1", customerID)
			return []order.Order{{OrderID: "ORD26000001"}}, nil
		},
	}

	t.Run("anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		rec := httptest.NewRecorder()
		newOrderRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("signed_in", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("X-User-Id", "user-1")
		rec := httptest.NewRecorder()
		newOrderRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestOrderHandler_AdminEndpoints(t *testing.T) {
	svc := &mockOrderService{
		listAllFunc: func(context.Context) ([]order.Summary, error) {
			return []order.Summary{{ID: "ORD26000001"}}, nil
		},
	}

	t.Run("non_admin_forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders/all", nil)
		req.Header.Set("X-User-Id", "user-1")
		rec := httptest.NewRecorder()
		newOrderRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin_allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders/all", nil)
		req.Header.Set("X-User-Id", "staff-1")
		req.Header.Set("X-User-Role", "admin")
		rec := httptest.NewRecorder()
		newOrderRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestOrderHandler_RequestCancellation(t *testing.T) {
	svc := &mockOrderService{
		requestCancellationFunc: func(_ context.Context, orderID, userID, reason string) (*order.Order, error) {
			assert.Equal(t, "ORD26000001", orderID)
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, "changed my mind", reason)
			return &order.Order{OrderID: orderID, CancellationRequested: true}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders/ORD26000001/cancellation-request",
		bytes.NewBufferString(`{"reason":"changed my mind"}`))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderHandler_RequestCancellationNeedsReason(t *testing.T) {
	svc := &mockOrderService{}

	req := httptest.NewRequest(http.MethodPost, "/api/orders/ORD26000001/cancellation-request",
		bytes.NewBufferString(`{}`))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
