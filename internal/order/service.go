package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/catalog"
	"github.com/ankitchauhan1221/maluk-backend/internal/coupon"
	"github.com/ankitchauhan1221/maluk-backend/internal/payment"
)

// PaymentGateway is the slice of the gateway client the orchestrator needs.
type PaymentGateway interface {
	Initiate(ctx context.Context, orderID string, amount int64, redirectURL string) (string, error)
	Verify(ctx context.Context, orderID string) (payment.VerifyResult, error)
	Refund(ctx context.Context, orderID, transactionID string, amount int64) (string, error)
	RefundStatus(ctx context.Context, refundID string) (payment.State, error)
}

// Carrier books and cancels shipments.
type Carrier interface {
	Book(ctx context.Context, o *Order) (string, error)
	Cancel(ctx context.Context, trackingNumber, reason string) error
}

// Notifier receives lifecycle events worth emailing the customer about.
// Implementations must not block.
type Notifier interface {
	OrderConfirmation(o *Order)
	CancellationRequestReceived(o *Order)
	CancellationNotice(o *Order)
	DeliveryNotice(o *Order)
}

// allowedTransitions is the order state machine. A status maps to the set of
// statuses it may move to; anything else is rejected. Delivered, Cancelled
// and Returned are terminal.
var allowedTransitions = map[Status][]Status{
	StatusPending:        {StatusPendingPayment, StatusProcessing, StatusFailed, StatusCancelled},
	StatusPendingPayment: {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing:     {StatusShipped, StatusOutForDelivery, StatusDelivered, StatusFailed, StatusCancelled},
	StatusShipped:        {StatusOutForDelivery, StatusDelivered, StatusFailed, StatusReturnToOrigin, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusFailed, StatusReturnToOrigin},
	StatusFailed:         {StatusProcessing, StatusOutForDelivery, StatusReturnToOrigin, StatusReturned, StatusCancelled},
	StatusReturnToOrigin: {StatusReturned, StatusDelivered},
	StatusDelivered:      {},
	StatusCancelled:      {},
	StatusReturned:       {},
}

func canTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AccessClaims is what the caller proved about themselves. A guest tracking a
// gateway order presents the gateway transaction id instead of logging in.
type AccessClaims struct {
	UserID        string
	Role          string
	TransactionID string
}

const RoleAdmin = "admin"

// Guest read windows for orders placed without an account.
const (
	guestWindowCOD     = 5 * time.Minute
	guestWindowGateway = 24 * time.Hour
)

type ItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CreateRequest struct {
	CustomerID      string        `json:"customerId"`
	Items           []ItemRequest `json:"products"`
	ShippingCost    int64         `json:"shippingCost"`
	CouponCode      string        `json:"couponCode"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	ShippingAddress Address       `json:"shippingAddress"`
	BillingAddress  Address       `json:"billingAddress"`
}

// CreateResult reports a created order. RedirectURL is set for gateway orders
// and sends the customer to the hosted checkout. BookingError is set when a
// cash-on-delivery order was saved but the carrier booking failed; the order
// survives in Pending for operational retry.
type CreateResult struct {
	Order        *Order
	RedirectURL  string
	BookingError error
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	GetByID(ctx context.Context, orderID string, claims AccessClaims) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Summary, error)
	// ConfirmPayment reconciles the order against the gateway's settlement
	// state. Callback redirects and status polls both land here; the call is
	// idempotent.
	ConfirmPayment(ctx context.Context, orderID string) (*Order, error)
	// IngestTracking applies a batch of carrier scan events to the order
	// owning the tracking number.
	IngestTracking(ctx context.Context, trackingNumber string, updates []TrackingUpdate) error
	RequestCancellation(ctx context.Context, orderID, userID, reason string) (*Order, error)
	Cancel(ctx context.Context, orderID, reason string) (*Order, error)
	CheckRefundStatus(ctx context.Context, orderID string) (*Order, error)
}

type Deps struct {
	Repo     Repository
	IDs      *IDGenerator
	Catalog  catalog.Store
	Coupons  coupon.Service
	Gateway  PaymentGateway
	Carrier  Carrier
	Notifier Notifier

	// MinPayable is the smallest amount the gateway accepts, minor units.
	MinPayable int64
	// BackendURL is the base for the gateway callback redirect.
	BackendURL string
	Now        func() time.Time
}

type service struct {
	Deps
}

func NewService(deps Deps) Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{Deps: deps}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	items, total, err := s.snapshotItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	o := &Order{
		CustomerID:      req.CustomerID,
		Items:           items,
		TotalAmount:     total,
		ShippingCost:    req.ShippingCost,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if code := strings.TrimSpace(req.CouponCode); code != "" {
		cart := make([]coupon.CartItem, 0, len(items))
		for _, item := range items {
			cart = append(cart, coupon.CartItem{ProductID: item.ProductID, Price: item.Price, Quantity: item.Quantity})
		}
		discount, err := s.Coupons.Apply(ctx, code, cart, total, req.CustomerID)
		if err != nil {
			return nil, err
		}
		o.CouponCode = strings.ToUpper(code)
		o.DiscountAmount = discount
	}
	o.RecomputePayable()

	if req.PaymentMethod == MethodPhonePe && o.PayableAmount < s.MinPayable {
		return nil, apperr.Newf(apperr.KindValidation, "payable amount %d is below the gateway minimum %d", o.PayableAmount, s.MinPayable)
	}

	if err := s.createWithFreshID(ctx, o); err != nil {
		return nil, err
	}
	log.Info().
		Str("order_id", o.OrderID).
		Str("payment_method", string(o.PaymentMethod)).
		Int64("payable_amount", o.PayableAmount).
		Msg("order created")

	switch req.PaymentMethod {
	case MethodCOD:
		return s.finalizeCOD(ctx, o)
	default:
		return s.initiateGatewayPayment(ctx, o)
	}
}

func validateCreate(req CreateRequest) error {
	switch {
	case req.CustomerID == "":
		return apperr.New(apperr.KindValidation, "customer id is required")
	case len(req.Items) == 0:
		return apperr.New(apperr.KindValidation, "order must contain at least one item")
	case req.PaymentMethod != MethodCOD && req.PaymentMethod != MethodPhonePe:
		return apperr.Newf(apperr.KindValidation, "unsupported payment method %q", req.PaymentMethod)
	case req.ShippingCost < 0:
		return apperr.New(apperr.KindValidation, "shipping cost cannot be negative")
	}
	for _, item := range req.Items {
		if item.ProductID == "" {
			return apperr.New(apperr.KindValidation, "item product id is required")
		}
		if item.Quantity <= 0 {
			return apperr.Newf(apperr.KindValidation, "item %s has non-positive quantity", item.ProductID)
		}
	}
	addr := req.ShippingAddress
	if addr.Name == "" || addr.Phone == "" || addr.StreetAddress == "" || addr.City == "" || addr.State == "" || addr.Zip == "" {
		return apperr.New(apperr.KindValidation, "shipping address is incomplete")
	}
	return nil
}

// snapshotItems resolves each requested product against the catalog and
// freezes name/price into the order.
func (s *service) snapshotItems(ctx context.Context, reqs []ItemRequest) ([]Item, int64, error) {
	items := make([]Item, 0, len(reqs))
	var total int64
	for _, req := range reqs {
		snap, err := s.Catalog.Get(ctx, req.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, 0, apperr.Newf(apperr.KindValidation, "product %s not found", req.ProductID)
			}
			return nil, 0, fmt.Errorf("failed to resolve product %s: %w", req.ProductID, err)
		}
		items = append(items, Item{
			ProductID: snap.ProductID,
			Name:      snap.Name,
			Price:     snap.Price,
			Quantity:  req.Quantity,
			Thumbnail: snap.Thumbnail,
		})
		total += snap.Price * int64(req.Quantity)
	}
	return items, total, nil
}

// createWithFreshID persists the order, regenerating the id on the rare
// duplicate collision.
func (s *service) createWithFreshID(ctx context.Context, o *Order) error {
	for attempt := 0; attempt < 3; attempt++ {
		id, err := s.IDs.Next(ctx)
		if err != nil {
			return fmt.Errorf("failed to generate order id: %w", err)
		}
		o.OrderID = id

		err = s.Repo.Create(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateOrderID) {
			return fmt.Errorf("failed to save order: %w", err)
		}
		log.Warn().Str("order_id", id).Msg("order id collision, regenerating")
	}
	return apperr.New(apperr.KindConflict, "could not allocate a unique order id")
}

// finalizeCOD redeems the coupon, books the shipment and confirms the order.
// A failed booking leaves the order in Pending with the error reported to the
// caller; nothing is rolled back.
func (s *service) finalizeCOD(ctx context.Context, o *Order) (*CreateResult, error) {
	s.redeemCoupon(ctx, o)

	trackingNumber, err := s.Carrier.Book(ctx, o)
	if err != nil {
		log.Error().Err(err).Str("order_id", o.OrderID).Msg("carrier booking failed, order left pending")
		return &CreateResult{Order: o, BookingError: err}, nil
	}

	updated, err := s.mutate(ctx, o.OrderID, func(cur *Order) error {
		cur.ReferenceNumber = trackingNumber
		cur.Status = StatusProcessing
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordBooked(ctx, updated)

	s.Notifier.OrderConfirmation(updated)
	return &CreateResult{Order: updated}, nil
}

// recordBooked appends a synthetic BKD event so the tracking trail starts at
// booking. The (action, date, time) uniqueness of the trail absorbs the
// carrier's own BKD scan when it arrives later.
func (s *service) recordBooked(ctx context.Context, o *Order) {
	now := s.Now().UTC()
	if err := s.Repo.AppendTrackingUpdates(ctx, o.OrderID, []TrackingUpdate{{
		Action:         ActionBooked,
		ActionDesc:     "Shipment booked",
		ActionDate:     now.Format("02012006"),
		ActionTime:     now.Format("1504"),
		TrackingNumber: o.ReferenceNumber,
		ReceivedAt:     now,
	}}); err != nil {
		log.Warn().Err(err).Str("order_id", o.OrderID).Msg("failed to record booking event")
	}
}

func (s *service) initiateGatewayPayment(ctx context.Context, o *Order) (*CreateResult, error) {
	redirectTarget := fmt.Sprintf("%s/api/payments/callback?orderId=%s", strings.TrimRight(s.BackendURL, "/"), o.OrderID)

	redirectURL, err := s.Gateway.Initiate(ctx, o.OrderID, o.PayableAmount, redirectTarget)
	if err != nil {
		// The order survives so the failure is visible; nothing was charged.
		if _, markErr := s.mutate(ctx, o.OrderID, func(cur *Order) error {
			cur.Status = StatusFailed
			cur.PaymentStatus = PaymentFailed
			return nil
		}); markErr != nil {
			log.Error().Err(markErr).Str("order_id", o.OrderID).Msg("failed to mark order failed after initiation error")
		}
		return nil, fmt.Errorf("failed to initiate payment for %s: %w", o.OrderID, err)
	}

	updated, err := s.mutate(ctx, o.OrderID, func(cur *Order) error {
		cur.Status = StatusPendingPayment
		cur.PaymentStatus = PaymentInitiated
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CreateResult{Order: updated, RedirectURL: redirectURL}, nil
}

func (s *service) GetByID(ctx context.Context, orderID string, claims AccessClaims) (*Order, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(o, claims); err != nil {
		return nil, err
	}
	return o, nil
}

// authorizeRead enforces ownership. Guests get a short window after placing a
// COD order, or a day when they can present the gateway transaction id.
func (s *service) authorizeRead(o *Order, claims AccessClaims) error {
	if claims.Role == RoleAdmin {
		return nil
	}
	if claims.UserID != "" {
		if claims.UserID == o.CustomerID {
			return nil
		}
		return apperr.New(apperr.KindPermissionDenied, "order belongs to another customer")
	}

	age := s.Now().UTC().Sub(o.CreatedAt)
	if o.PaymentMethod == MethodCOD && age <= guestWindowCOD {
		return nil
	}
	if claims.TransactionID != "" && claims.TransactionID == o.TransactionID && age <= guestWindowGateway {
		return nil
	}
	return apperr.New(apperr.KindUnauthenticated, "sign in to view this order")
}

func (s *service) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	orders, err := s.Repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for customer %s: %w", customerID, err)
	}
	return orders, nil
}

func (s *service) ListAll(ctx context.Context) ([]Summary, error) {
	orders, err := s.Repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	summaries := make([]Summary, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		count := 0
		for _, item := range o.Items {
			count += item.Quantity
		}
		customer := strings.TrimSpace(o.ShippingAddress.Name + " " + o.ShippingAddress.Lastname)
		summaries = append(summaries, Summary{
			ID:              o.OrderID,
			Customer:        customer,
			Date:            o.CreatedAt.Format("2006-01-02"),
			Total:           o.PayableAmount,
			Status:          o.Status.String(),
			Items:           count,
			PaymentMethod:   string(o.PaymentMethod),
			ReferenceNumber: o.ReferenceNumber,
		})
	}
	return summaries, nil
}

func (s *service) ConfirmPayment(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.PaymentMethod == MethodCOD {
		// Recovery path for a COD order whose booking failed at creation.
		return s.ensureBookedAndConfirmed(ctx, o)
	}

	result, err := s.Gateway.Verify(ctx, o.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify payment for %s: %w", o.OrderID, err)
	}

	switch result.State {
	case payment.StateCompleted:
		return s.settlePayment(ctx, o, result)
	case payment.StateFailed:
		if o.PaymentStatus == PaymentPaid {
			// A settled order never regresses on a stale FAILED poll.
			log.Warn().Str("order_id", o.OrderID).Msg("ignoring FAILED verification for a paid order")
			return o, nil
		}
		return s.mutate(ctx, o.OrderID, func(cur *Order) error {
			if cur.PaymentStatus == PaymentPaid {
				return nil
			}
			cur.PaymentStatus = PaymentFailed
			if canTransition(cur.Status, StatusFailed) {
				cur.Status = StatusFailed
			}
			return nil
		})
	default:
		return o, nil
	}
}

// settlePayment is the single convergence point for COMPLETED verifications,
// no matter how many webhooks and polls deliver them. Coupon redemption and
// the confirmation email fire only on the transition into Paid; shipment
// booking is keyed on the tracking number.
func (s *service) settlePayment(ctx context.Context, o *Order, result payment.VerifyResult) (*Order, error) {
	var wasPaid bool
	updated, err := s.mutate(ctx, o.OrderID, func(cur *Order) error {
		wasPaid = cur.PaymentStatus == PaymentPaid
		cur.PaymentStatus = PaymentPaid
		if result.TransactionID != "" {
			cur.TransactionID = result.TransactionID
		}
		switch cur.Status {
		case StatusPending, StatusPendingPayment, StatusFailed:
			cur.Status = StatusProcessing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !wasPaid {
		s.redeemCoupon(ctx, updated)
		s.Notifier.OrderConfirmation(updated)
		log.Info().Str("order_id", updated.OrderID).Str("transaction_id", updated.TransactionID).Msg("payment settled")
	}

	return s.ensureBooked(ctx, updated)
}

func (s *service) ensureBookedAndConfirmed(ctx context.Context, o *Order) (*Order, error) {
	updated, err := s.ensureBooked(ctx, o)
	if err != nil {
		return nil, err
	}
	if updated.Status == StatusPending && updated.Booked() {
		return s.mutate(ctx, updated.OrderID, func(cur *Order) error {
			if canTransition(cur.Status, StatusProcessing) {
				cur.Status = StatusProcessing
			}
			return nil
		})
	}
	return updated, nil
}

// ensureBooked books a shipment if none exists yet. Booking failure is logged
// and the order returned as-is: payment state must never be held hostage by
// the carrier.
func (s *service) ensureBooked(ctx context.Context, o *Order) (*Order, error) {
	if o.Booked() {
		return o, nil
	}
	trackingNumber, err := s.Carrier.Book(ctx, o)
	if err != nil {
		log.Error().Err(err).Str("order_id", o.OrderID).Msg("carrier booking failed")
		return o, nil
	}
	updated, err := s.mutate(ctx, o.OrderID, func(cur *Order) error {
		if cur.ReferenceNumber == "" {
			cur.ReferenceNumber = trackingNumber
		}
		if cur.Status == StatusPendingPayment {
			cur.Status = StatusProcessing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordBooked(ctx, updated)
	return updated, nil
}

// redeemCoupon records coupon usage for a confirmed order. A usage-limit race
// lost at this point is logged, not propagated: the customer has already
// committed to the order at the quoted price.
func (s *service) redeemCoupon(ctx context.Context, o *Order) {
	if o.CouponCode == "" {
		return
	}
	if err := s.Coupons.Redeem(ctx, o.CouponCode, o.CustomerID, o.OrderID); err != nil {
		log.Warn().Err(err).
			Str("order_id", o.OrderID).
			Str("coupon_code", o.CouponCode).
			Msg("coupon redemption failed for confirmed order")
	}
}

func (s *service) IngestTracking(ctx context.Context, trackingNumber string, updates []TrackingUpdate) error {
	o, err := s.Repo.GetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return apperr.Newf(apperr.KindNotFound, "no order for tracking number %s", trackingNumber)
		}
		return fmt.Errorf("failed to load order for tracking number %s: %w", trackingNumber, err)
	}

	now := s.Now().UTC()
	for i := range updates {
		updates[i].TrackingNumber = trackingNumber
		if updates[i].ReceivedAt.IsZero() {
			updates[i].ReceivedAt = now
		}
	}
	if err := s.Repo.AppendTrackingUpdates(ctx, o.OrderID, updates); err != nil {
		return fmt.Errorf("failed to record tracking updates for %s: %w", o.OrderID, err)
	}

	// Only the last event that maps to a status decides the order's new
	// status; earlier events in the batch land in the trail only.
	target := o.Status
	lastAction := ""
	for _, ev := range updates {
		next, ok := StatusForAction(ev.Action)
		if !ok {
			if ev.Action != ActionBooked {
				log.Warn().Str("order_id", o.OrderID).Str("action", ev.Action).Msg("unknown carrier action")
			}
			continue
		}
		target = next
		lastAction = ev.Action
	}

	if target == o.Status {
		return nil
	}
	if !canTransition(o.Status, target) {
		log.Warn().
			Str("order_id", o.OrderID).
			Str("action", lastAction).
			Str("from", o.Status.String()).
			Str("to", target.String()).
			Msg("carrier event ignored for status, transition not allowed")
		return nil
	}

	delivered := false
	updated, err := s.mutate(ctx, o.OrderID, func(cur *Order) error {
		if !canTransition(cur.Status, target) {
			return nil
		}
		delivered = target == StatusDelivered && cur.Status != StatusDelivered
		cur.Status = target
		if target == StatusDelivered && cur.PaymentMethod == MethodCOD {
			// Cash collected on the doorstep.
			cur.PaymentStatus = PaymentPaid
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("order_id", updated.OrderID).
		Str("tracking_number", trackingNumber).
		Str("status", updated.Status.String()).
		Msg("tracking updates applied")

	if delivered {
		s.Notifier.DeliveryNotice(updated)
	}
	return nil
}

func (s *service) RequestCancellation(ctx context.Context, orderID, userID, reason string) (*Order, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID != "" && o.CustomerID != userID {
		return nil, apperr.New(apperr.KindPermissionDenied, "order belongs to another customer")
	}
	if o.Status == StatusDelivered || o.Status == StatusCancelled {
		return nil, apperr.Newf(apperr.KindConflict, "order is already %s", strings.ToLower(o.Status.String()))
	}
	if o.CancellationRequested {
		return o, nil
	}

	updated, err := s.mutate(ctx, orderID, func(cur *Order) error {
		cur.CancellationRequested = true
		cur.CancellationReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.CancellationRequestReceived(updated)
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, orderID, reason string) (*Order, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch {
	case o.Status == StatusCancelled:
		return nil, apperr.New(apperr.KindConflict, "order is already cancelled")
	case o.Status == StatusDelivered:
		return nil, apperr.New(apperr.KindConflict, "delivered orders cannot be cancelled")
	case o.RefundStatus == RefundInitiated || o.RefundStatus == RefundCompleted:
		return nil, apperr.New(apperr.KindConflict, "a refund was already initiated for this order")
	case o.PaymentMethod == MethodCOD && pastProcessing(o.Status):
		return nil, apperr.New(apperr.KindConflict, "cash-on-delivery orders cannot be cancelled after dispatch")
	}

	refundID, refundAmount := "", int64(0)
	if o.PaymentMethod == MethodPhonePe && o.PaymentStatus == PaymentPaid {
		refundAmount = o.TotalAmount
		refundID, err = s.Gateway.Refund(ctx, o.OrderID, o.TransactionID, refundAmount)
		if err != nil {
			// No refund record means no cancellation; the money question
			// stays open otherwise.
			return nil, fmt.Errorf("failed to initiate refund for %s: %w", o.OrderID, err)
		}
		log.Info().Str("order_id", o.OrderID).Str("refund_id", refundID).Int64("refund_amount", refundAmount).Msg("refund initiated")
	}

	if o.Booked() {
		if err := s.Carrier.Cancel(ctx, o.ReferenceNumber, reason); err != nil {
			log.Warn().Err(err).Str("order_id", o.OrderID).Str("tracking_number", o.ReferenceNumber).Msg("carrier cancellation failed")
		}
	}

	now := s.Now().UTC()
	updated, err := s.mutate(ctx, orderID, func(cur *Order) error {
		cur.Status = StatusCancelled
		cur.CancellationReason = reason
		if refundID != "" {
			cur.RefundStatus = RefundInitiated
			cur.RefundID = refundID
			cur.RefundAmount = refundAmount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if appendErr := s.Repo.AppendTrackingUpdates(ctx, updated.OrderID, []TrackingUpdate{{
		Action:         ActionCancelled,
		ActionDesc:     "Order cancelled",
		ActionDate:     now.Format("02012006"),
		ActionTime:     now.Format("1504"),
		Remarks:        reason,
		TrackingNumber: updated.ReferenceNumber,
		ReceivedAt:     now,
	}}); appendErr != nil {
		log.Warn().Err(appendErr).Str("order_id", updated.OrderID).Msg("failed to record cancellation event")
	}

	s.Notifier.CancellationNotice(updated)
	return updated, nil
}

func pastProcessing(s Status) bool {
	switch s {
	case StatusShipped, StatusOutForDelivery, StatusDelivered:
		return true
	}
	return false
}

func (s *service) CheckRefundStatus(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.RefundID == "" {
		return nil, apperr.New(apperr.KindValidation, "no refund exists for this order")
	}
	if o.RefundStatus == RefundCompleted {
		return o, nil
	}

	state, err := s.Gateway.RefundStatus(ctx, o.RefundID)
	if err != nil {
		return nil, fmt.Errorf("failed to check refund status for %s: %w", o.OrderID, err)
	}

	var target RefundStatus
	switch state {
	case payment.StateCompleted:
		target = RefundCompleted
	case payment.StateFailed:
		target = RefundFailed
	default:
		return o, nil
	}

	return s.mutate(ctx, orderID, func(cur *Order) error {
		cur.RefundStatus = target
		return nil
	})
}

func (s *service) getOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.Repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "order %s not found", orderID)
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	return o, nil
}

// mutate applies fn to a fresh read of the order and persists it, retrying a
// few times when a concurrent writer wins the version race.
func (s *service) mutate(ctx context.Context, orderID string, fn func(cur *Order) error) (*Order, error) {
	for attempt := 0; attempt < 3; attempt++ {
		o, err := s.getOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := fn(o); err != nil {
			return nil, err
		}
		o.UpdatedAt = s.Now().UTC()

		err = s.Repo.Update(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("failed to update order %s: %w", orderID, err)
		}
		log.Debug().Str("order_id", orderID).Int("attempt", attempt+1).Msg("version conflict, retrying update")
	}
	return nil, apperr.Newf(apperr.KindConflict, "order %s is being modified concurrently", orderID)
}
