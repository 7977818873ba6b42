package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateOrderID = errors.New("order with this ID already exists")
	// ErrVersionConflict signals a lost optimistic-lock race; the caller
	// re-reads the order and retries the mutation.
	ErrVersionConflict = errors.New("order was modified concurrently")
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, orderID string) (*Order, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	// Update persists every mutable order field guarded by the version the
	// order was read at. A stale version yields ErrVersionConflict.
	Update(ctx context.Context, o *Order) error
	// AppendTrackingUpdates inserts carrier events, silently skipping events
	// already recorded at the same (action, date, time).
	AppendTrackingUpdates(ctx context.Context, orderID string, updates []TrackingUpdate) error
	// NextSequence atomically increments the named durable counter.
	NextSequence(ctx context.Context, name string) (int64, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) (err error) {
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("repository: failed to marshal shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("repository: failed to marshal billing address: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Str("order_id", o.OrderID).Msg("repository: failed to rollback transaction")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Version = 1

	queryOrder := `
		INSERT INTO orders (
			order_id, customer_id, total_amount, shipping_cost, coupon_code,
			discount_amount, payable_amount, status, payment_status, payment_method,
			transaction_id, reference_number, refund_status, refund_id, refund_amount,
			cancellation_requested, cancellation_reason, shipping_address, billing_address,
			version, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`
	_, err = tx.Exec(ctx, queryOrder,
		o.OrderID, o.CustomerID, o.TotalAmount, o.ShippingCost, o.CouponCode,
		o.DiscountAmount, o.PayableAmount, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod),
		o.TransactionID, o.ReferenceNumber, string(o.RefundStatus), o.RefundID, o.RefundAmount,
		o.CancellationRequested, o.CancellationReason, shippingJSON, billingJSON,
		o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateOrderID
		}
		return fmt.Errorf("repository: failed to insert order %s: %w", o.OrderID, err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, name, price, quantity, thumbnail, position)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`
	for i, item := range o.Items {
		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
		}
		_, err = tx.Exec(ctx, queryItem,
			itemID, o.OrderID, item.ProductID, item.Name, item.Price, item.Quantity, item.Thumbnail, i,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.OrderID, err)
		}
	}

	return nil
}

const orderColumns = `
	order_id, customer_id, total_amount, shipping_cost, coupon_code,
	discount_amount, payable_amount, status, payment_status, payment_method,
	transaction_id, reference_number, refund_status, refund_id, refund_amount,
	cancellation_requested, cancellation_reason, shipping_address, billing_address,
	version, created_at, updated_at
`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status, paymentStatus, paymentMethod, refundStatus string
	var shippingJSON, billingJSON []byte

	err := row.Scan(
		&o.OrderID, &o.CustomerID, &o.TotalAmount, &o.ShippingCost, &o.CouponCode,
		&o.DiscountAmount, &o.PayableAmount, &status, &paymentStatus, &paymentMethod,
		&o.TransactionID, &o.ReferenceNumber, &refundStatus, &o.RefundID, &o.RefundAmount,
		&o.CancellationRequested, &o.CancellationReason, &shippingJSON, &billingJSON,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(paymentStatus)
	o.PaymentMethod = PaymentMethod(paymentMethod)
	o.RefundStatus = RefundStatus(refundStatus)

	if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(billingJSON, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal billing address: %w", err)
	}

	return &o, nil
}

func (r *postgresRepository) getBy(ctx context.Context, where string, arg any) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where

	o, err := scanOrder(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order: %w", err)
	}

	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	if err := r.loadTrackingUpdates(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, orderID string) (*Order, error) {
	return r.getBy(ctx, "order_id = $1", orderID)
}

func (r *postgresRepository) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*Order, error) {
	return r.getBy(ctx, "reference_number = $1", trackingNumber)
}

func (r *postgresRepository) loadItems(ctx context.Context, o *Order) error {
	query := `
		SELECT product_id, name, price, quantity, thumbnail
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`
	rows, err := r.db.Query(ctx, query, o.OrderID)
	if err != nil {
		return fmt.Errorf("repository: failed to query order items for %s: %w", o.OrderID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity, &item.Thumbnail); err != nil {
			return fmt.Errorf("repository: failed to scan order item for %s: %w", o.OrderID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating order items for %s: %w", o.OrderID, err)
	}
	o.Items = items
	return nil
}

func (r *postgresRepository) loadTrackingUpdates(ctx context.Context, o *Order) error {
	query := `
		SELECT action, action_desc, origin, action_date, action_time, remarks,
		       latitude, longitude, tracking_number, received_at
		FROM tracking_updates
		WHERE order_id = $1
		ORDER BY received_at, id
	`
	rows, err := r.db.Query(ctx, query, o.OrderID)
	if err != nil {
		return fmt.Errorf("repository: failed to query tracking updates for %s: %w", o.OrderID, err)
	}
	defer rows.Close()

	updates := make([]TrackingUpdate, 0)
	for rows.Next() {
		var u TrackingUpdate
		if err := rows.Scan(&u.Action, &u.ActionDesc, &u.Origin, &u.ActionDate, &u.ActionTime,
			&u.Remarks, &u.Latitude, &u.Longitude, &u.TrackingNumber, &u.ReceivedAt); err != nil {
			return fmt.Errorf("repository: failed to scan tracking update for %s: %w", o.OrderID, err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating tracking updates for %s: %w", o.OrderID, err)
	}
	o.TrackingUpdates = updates
	return nil
}

func (r *postgresRepository) list(ctx context.Context, where string, args ...any) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ` + where + ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	for i := range orders {
		if err := r.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
		if err := r.loadTrackingUpdates(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *postgresRepository) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	return r.list(ctx, "WHERE customer_id = $1", customerID)
}

func (r *postgresRepository) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx, "")
}

func (r *postgresRepository) Update(ctx context.Context, o *Order) error {
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("repository: failed to marshal shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("repository: failed to marshal billing address: %w", err)
	}

	query := `
		UPDATE orders
		SET customer_id = $2, total_amount = $3, shipping_cost = $4, coupon_code = $5,
		    discount_amount = $6, payable_amount = $7, status = $8, payment_status = $9,
		    transaction_id = $10, reference_number = $11, refund_status = $12,
		    refund_id = $13, refund_amount = $14, cancellation_requested = $15,
		    cancellation_reason = $16, shipping_address = $17, billing_address = $18,
		    version = version + 1, updated_at = $19
		WHERE order_id = $1 AND version = $20
	`
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, query,
		o.OrderID, o.CustomerID, o.TotalAmount, o.ShippingCost, o.CouponCode,
		o.DiscountAmount, o.PayableAmount, string(o.Status), string(o.PaymentStatus),
		o.TransactionID, o.ReferenceNumber, string(o.RefundStatus),
		o.RefundID, o.RefundAmount, o.CancellationRequested,
		o.CancellationReason, shippingJSON, billingJSON,
		now, o.Version,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order %s: %w", o.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)`, o.OrderID).Scan(&exists); err != nil {
			return fmt.Errorf("repository: failed to check order %s: %w", o.OrderID, err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return ErrVersionConflict
	}

	o.Version++
	o.UpdatedAt = now
	return nil
}

func (r *postgresRepository) AppendTrackingUpdates(ctx context.Context, orderID string, updates []TrackingUpdate) error {
	query := `
		INSERT INTO tracking_updates (
			id, order_id, action, action_desc, origin, action_date, action_time,
			remarks, latitude, longitude, tracking_number, received_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (order_id, action, action_date, action_time) DO NOTHING
	`
	for _, u := range updates {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate tracking update ID: %w", err)
		}
		receivedAt := u.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = time.Now().UTC()
		}
		_, err = r.db.Exec(ctx, query,
			id, orderID, u.Action, u.ActionDesc, u.Origin, u.ActionDate, u.ActionTime,
			u.Remarks, u.Latitude, u.Longitude, u.TrackingNumber, receivedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert tracking update for %s: %w", orderID, err)
		}
	}
	return nil
}

func (r *postgresRepository) NextSequence(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO order_sequences (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = order_sequences.value + 1
		RETURNING value
	`
	var value int64
	if err := r.db.QueryRow(ctx, query, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("repository: failed to advance sequence %s: %w", name, err)
	}
	return value, nil
}
