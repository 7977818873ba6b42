package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/config"
	"github.com/ankitchauhan1221/maluk-backend/internal/extcall"
	"github.com/ankitchauhan1221/maluk-backend/internal/order"
)

func testOrder(method order.PaymentMethod) *order.Order {
	return &order.Order{
		OrderID:       "ORD26000001",
		PayableAmount: 51000,
		PaymentMethod: method,
		Items: []order.Item{
			{ProductID: "p1", Name: "Face Cream", Price: 25000, Quantity: 2},
			{ProductID: "p2", Name: "Hair Oil", Price: 10000, Quantity: 1},
		},
		ShippingAddress: order.Address{
			Name:          "Priya",
			Phone:         "+919876543210",
			StreetAddress: "12 MG Road",
			City:          "Bengaluru",
			State:         "Karnataka",
			Zip:           "560001",
		},
	}
}

func newTestCarrier(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := &Client{
		cfg: config.ShipsyConfig{
			APIKey:           "key-1",
			BookURL:          srv.URL + "/book",
			CancelURL:        srv.URL + "/cancel",
			CustomerCode:     "CUST1",
			WarehouseName:    "Main Warehouse",
			WarehousePhone:   "+911112223334",
			WarehouseAddress: "Plot 1",
			WarehousePincode: "201301",
			WarehouseCity:    "Noida",
			WarehouseState:   "Uttar Pradesh",
			ReturnName:       "Returns Desk",
			ReturnPhone:      "+911112223334",
			ReturnAddress:    "Plot 1",
			ReturnPincode:    "201301",
			ReturnCity:       "Noida",
			ReturnState:      "Uttar Pradesh",
			ReturnEmail:      "returns@example.com",
		},
		http:  srv.Client(),
		retry: extcall.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		now:   func() time.Time { return time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC) },
	}
	return c, srv
}

func TestBook_CODConsignment(t *testing.T) {
	var got bookRequest
	c, _ := newTestCarrier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"data":   []map[string]any{{"success": true, "reference_number": "AWB777"}},
		})
	})

	awb, err := c.Book(context.Background(), testOrder(order.MethodCOD))

	require.NoError(t, err)
	assert.Equal(t, "AWB777", awb)
	require.Len(t, got.Consignments, 1)
	cons := got.Consignments[0]
	assert.Equal(t, "CUST1", cons.CustomerCode)
	assert.Equal(t, "B2C SMART EXPRESS", cons.ServiceTypeID)
	assert.Equal(t, "CASH", cons.CODCollectionMode)
	assert.Equal(t, "510.00", cons.CODAmount)
	assert.Equal(t, "510.00", cons.DeclaredValue)
	assert.Equal(t, "ORD26000001", cons.CustomerReferenceNumber)
	assert.Equal(t, "ORD26000001", cons.InvoiceNumber)
	assert.Equal(t, "2026-04-01", cons.InvoiceDate)
	assert.Equal(t, "Face Cream, Hair Oil", cons.Description)
	assert.Equal(t, "Priya", cons.DestinationDetails.Name)
	assert.Equal(t, "560001", cons.DestinationDetails.Pincode)
}

func TestBook_PrepaidConsignment(t *testing.T) {
	var got bookRequest
	c, _ := newTestCarrier(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"data":   []map[string]any{{"success": true, "reference_number": "AWB778"}},
		})
	})

	_, err := c.Book(context.Background(), testOrder(order.MethodPhonePe))

	require.NoError(t, err)
	cons := got.Consignments[0]
	assert.Equal(t, "B2C PRIORITY", cons.ServiceTypeID)
	assert.Equal(t, "", cons.CODCollectionMode)
	assert.Equal(t, "0", cons.CODAmount)
	assert.Equal(t, "510.00", cons.DeclaredValue)
}

func TestBook_CarrierRejection(t *testing.T) {
	c, _ := newTestCarrier(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"data":   []map[string]any{{"success": false, "message": "pincode not serviceable"}},
		})
	})

	_, err := c.Book(context.Background(), testOrder(order.MethodCOD))

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalPermanent))
	assert.Contains(t, err.Error(), "pincode not serviceable")
}

func TestBook_RetriesServerErrors(t *testing.T) {
	calls := 0
	c, _ := newTestCarrier(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"data":   []map[string]any{{"success": true, "reference_number": "AWB779"}},
		})
	})

	awb, err := c.Book(context.Background(), testOrder(order.MethodCOD))

	require.NoError(t, err)
	assert.Equal(t, "AWB779", awb)
	assert.Equal(t, 3, calls)
}

func TestCancel(t *testing.T) {
	var got cancelRequest
	c, _ := newTestCarrier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cancel", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	err := c.Cancel(context.Background(), "AWB777", "customer request")

	require.NoError(t, err)
	assert.Equal(t, "CUST1", got.CustomerCode)
	assert.Equal(t, "AWB777", got.AWBNumber)
	assert.Equal(t, "customer request", got.Reason)
}

func TestCancel_Failure(t *testing.T) {
	c, _ := newTestCarrier(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "already in transit"})
	})

	err := c.Cancel(context.Background(), "AWB777", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in transit")
}

func TestRupees(t *testing.T) {
	assert.Equal(t, "510.00", rupees(51000))
	assert.Equal(t, "0.99", rupees(99))
	assert.Equal(t, "1234.05", rupees(123405))
}
