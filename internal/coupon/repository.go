package coupon

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var ErrCouponNotFound = errors.New("coupon not found")

type Repository interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	MarkExpired(ctx context.Context, code string) error
	// UsageFor loads the per-user history used by first-time-only rules.
	UsageFor(ctx context.Context, code, userID string) (Usage, error)
	// Redeem records that the coupon was applied to a confirmed order and
	// increments usedCount, atomically checked against usageLimit. Redeeming
	// the same (code, orderID) twice is a no-op, so retried confirmations
	// cannot double-increment.
	Redeem(ctx context.Context, code, userID, orderID string) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	query := `
		SELECT code, discount_type, discount_value, min_order_amount, max_discount_amount,
		       start_date, end_date, status, usage_limit, used_count, first_time_users_only,
		       coupon_type, buy_quantity, get_quantity, required_quantity,
		       combo_discount_amount, applicable_products
		FROM coupons
		WHERE code = $1
	`
	var c Coupon
	var discountType, status, couponType string
	err := r.db.QueryRow(ctx, query, code).Scan(
		&c.Code, &discountType, &c.DiscountValue, &c.MinOrderAmount, &c.MaxDiscountAmount,
		&c.StartDate, &c.EndDate, &status, &c.UsageLimit, &c.UsedCount, &c.FirstTimeUsersOnly,
		&couponType, &c.BuyQuantity, &c.GetQuantity, &c.RequiredQuantity,
		&c.ComboDiscountAmount, &c.ApplicableProducts,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("repository: failed to select coupon %s: %w", code, err)
	}
	c.DiscountType = DiscountType(discountType)
	c.Status = Status(status)
	c.Type = Type(couponType)
	return &c, nil
}

func (r *postgresRepository) MarkExpired(ctx context.Context, code string) error {
	query := `UPDATE coupons SET status = 'expired', updated_at = now() WHERE code = $1 AND status <> 'expired'`
	if _, err := r.db.Exec(ctx, query, code); err != nil {
		return fmt.Errorf("repository: failed to mark coupon %s expired: %w", code, err)
	}
	return nil
}

func (r *postgresRepository) UsageFor(ctx context.Context, code, userID string) (Usage, error) {
	var usage Usage

	queryThis := `
		SELECT EXISTS (
			SELECT 1 FROM coupon_redemptions WHERE coupon_code = $1 AND user_id = $2
		)
	`
	if err := r.db.QueryRow(ctx, queryThis, code, userID).Scan(&usage.UsedThisCoupon); err != nil {
		return Usage{}, fmt.Errorf("repository: failed to check coupon usage for %s: %w", code, err)
	}

	queryAnyFirstTime := `
		SELECT EXISTS (
			SELECT 1
			FROM coupon_redemptions cr
			JOIN coupons c ON c.code = cr.coupon_code
			WHERE cr.user_id = $1 AND c.first_time_users_only
		)
	`
	if err := r.db.QueryRow(ctx, queryAnyFirstTime, userID).Scan(&usage.UsedAnyFirstTimeCoupon); err != nil {
		return Usage{}, fmt.Errorf("repository: failed to check first-time coupon usage: %w", err)
	}

	return usage, nil
}

func (r *postgresRepository) Redeem(ctx context.Context, code, userID, orderID string) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Str("coupon_code", code).Msg("repository: failed to rollback redemption")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit redemption: %w", commitErr)
		}
	}()

	insert := `
		INSERT INTO coupon_redemptions (coupon_code, user_id, order_id, redeemed_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (coupon_code, order_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, insert, code, userID, orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to record redemption of %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		// Already redeemed for this order; retried confirmation.
		return nil
	}

	// Increment-and-check in one statement so concurrent redemptions cannot
	// both pass the limit.
	increment := `
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = now()
		WHERE code = $1 AND (usage_limit = 0 OR used_count < usage_limit)
		RETURNING used_count, usage_limit
	`
	var usedCount, usageLimit int64
	if err := tx.QueryRow(ctx, increment, code).Scan(&usedCount, &usageLimit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if checkErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`, code).Scan(&exists); checkErr != nil {
				return fmt.Errorf("repository: failed to check coupon %s: %w", code, checkErr)
			}
			if !exists {
				return ErrCouponNotFound
			}
			return ErrUsageLimitReached
		}
		return fmt.Errorf("repository: failed to increment usage of %s: %w", code, err)
	}

	if usageLimit > 0 && usedCount >= usageLimit {
		if _, err := tx.Exec(ctx, `UPDATE coupons SET status = 'inactive' WHERE code = $1 AND status = 'active'`, code); err != nil {
			return fmt.Errorf("repository: failed to deactivate exhausted coupon %s: %w", code, err)
		}
	}

	return nil
}
