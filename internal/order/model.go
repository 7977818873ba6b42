package order

import "time"

type Status string

const (
	StatusPending        Status = "Pending"          // created, payment not initiated
	StatusPendingPayment Status = "Pending Payment"  // gateway payment initiated, not settled
	StatusProcessing     Status = "Processing"       // paid (or COD booked), being prepared
	StatusShipped        Status = "Shipped"          // picked up by the carrier
	StatusOutForDelivery Status = "Out for Delivery" //
	StatusDelivered      Status = "Delivered"        //
	StatusCancelled      Status = "Cancelled"        //
	StatusFailed         Status = "Failed"           // payment or delivery failed
	StatusReturnToOrigin Status = "Return to Origin" // RTO initiated
	StatusReturned       Status = "Returned"         // RTO completed
)

func (s Status) String() string {
	return string(s)
}

// PaymentStatus tracks the money side independently from fulfillment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentInitiated PaymentStatus = "Initiated"
	PaymentPaid      PaymentStatus = "Paid"
	PaymentFailed    PaymentStatus = "Failed"
)

func (s PaymentStatus) String() string {
	return string(s)
}

type PaymentMethod string

const (
	MethodCOD     PaymentMethod = "COD"
	MethodPhonePe PaymentMethod = "PhonePe"
)

type RefundStatus string

const (
	RefundNone      RefundStatus = ""
	RefundInitiated RefundStatus = "initiated"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
)

type Address struct {
	Name          string `json:"name"`
	Lastname      string `json:"lastname"`
	CompanyName   string `json:"companyName,omitempty"`
	Country       string `json:"country"`
	StreetAddress string `json:"streetAddress"`
	Apartment     string `json:"apartment,omitempty"`
	City          string `json:"city"`
	State         string `json:"state"`
	Zip           string `json:"zip"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
}

// Item is a line item snapshotted at order creation. Catalog edits after that
// never alter historical orders.
type Item struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"` // unit price, minor units
	Quantity  int    `json:"quantity"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// TrackingUpdate is one carrier event. The sequence on an order is append-only
// and is the audit trail for fulfillment.
type TrackingUpdate struct {
	Action         string    `json:"action"`     // carrier action code, e.g. "BKD", "DLV"
	ActionDesc     string    `json:"actionDesc"` //
	Origin         string    `json:"origin,omitempty"`
	ActionDate     string    `json:"actionDate"` // DDMMYYYY
	ActionTime     string    `json:"actionTime"` // HHMM
	Remarks        string    `json:"remarks,omitempty"`
	Latitude       string    `json:"latitude,omitempty"`
	Longitude      string    `json:"longitude,omitempty"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// Order is the central aggregate. All monetary fields are minor units.
type Order struct {
	OrderID         string        `json:"orderId"`
	CustomerID      string        `json:"customerId"`
	Items           []Item        `json:"products"`
	TotalAmount     int64         `json:"totalAmount"` // sum of line items before shipping/discount
	ShippingCost    int64         `json:"shippingCost"`
	CouponCode      string        `json:"couponCode,omitempty"`
	DiscountAmount  int64         `json:"discountAmount"`
	PayableAmount   int64         `json:"payableAmount"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	TransactionID   string        `json:"transactionId,omitempty"`
	ReferenceNumber string        `json:"reference_number,omitempty"` // carrier tracking number

	RefundStatus RefundStatus `json:"refundStatus,omitempty"`
	RefundID     string       `json:"refundId,omitempty"`
	RefundAmount int64        `json:"refundAmount,omitempty"`

	CancellationRequested bool   `json:"cancellationRequested"`
	CancellationReason    string `json:"cancellationReason,omitempty"`

	ShippingAddress Address          `json:"shippingAddress"`
	BillingAddress  Address          `json:"billingAddress"`
	TrackingUpdates []TrackingUpdate `json:"trackingUpdates"`

	// Version is the optimistic-lock counter; every persisted mutation bumps it.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecomputePayable re-derives payableAmount from its inputs. It is called at
// every stage that could change totalAmount, shippingCost, or discountAmount;
// the result is the only amount ever sent to the gateway or carrier.
func (o *Order) RecomputePayable() {
	p := o.TotalAmount + o.ShippingCost - o.DiscountAmount
	if p < 0 {
		p = 0
	}
	o.PayableAmount = p
}

// Booked reports whether a carrier shipment exists. The presence of a tracking
// number is the idempotency key for shipment booking.
func (o *Order) Booked() bool {
	return o.ReferenceNumber != ""
}

// HasTrackingAction reports whether an event with the given carrier action
// code was already recorded.
func (o *Order) HasTrackingAction(action string) bool {
	for _, u := range o.TrackingUpdates {
		if u.Action == action {
			return true
		}
	}
	return false
}

// Summary is the privileged list-all projection.
type Summary struct {
	ID              string `json:"id"`
	Customer        string `json:"customer"`
	Date            string `json:"date"`
	Total           int64  `json:"total"`
	Status          string `json:"status"`
	Items           int    `json:"items"`
	PaymentMethod   string `json:"paymentMethod"`
	ReferenceNumber string `json:"reference_number"`
}
