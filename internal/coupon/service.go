package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
)

// Service exposes coupon evaluation and redemption to the order orchestrator
// and to the cart-preview endpoint.
type Service interface {
	// Apply is a dry-run evaluation: it computes the discount for the cart
	// without touching usedCount or per-user records.
	Apply(ctx context.Context, code string, cart []CartItem, orderAmount int64, userID string) (int64, error)
	// Redeem records usage against a confirmed order, exactly once per order.
	Redeem(ctx context.Context, code, userID, orderID string) error
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) Apply(ctx context.Context, code string, cart []CartItem, orderAmount int64, userID string) (int64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return 0, apperr.New(apperr.KindValidation, "coupon code is required")
	}

	c, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return 0, apperr.New(apperr.KindNotFound, "coupon not found or inactive")
		}
		return 0, fmt.Errorf("failed to load coupon %s: %w", code, err)
	}

	usage, err := s.repo.UsageFor(ctx, code, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load coupon usage for %s: %w", code, err)
	}

	discount, err := Evaluate(c, cart, orderAmount, usage, s.now())
	if err != nil {
		if errors.Is(err, ErrExpired) {
			if markErr := s.repo.MarkExpired(ctx, code); markErr != nil {
				log.Error().Err(markErr).Str("coupon_code", code).Msg("failed to persist expired coupon status")
			}
		}
		return 0, rejectionError(err)
	}

	return discount, nil
}

func (s *service) Redeem(ctx context.Context, code, userID, orderID string) error {
	code = strings.ToUpper(strings.TrimSpace(code))

	err := s.repo.Redeem(ctx, code, userID, orderID)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return apperr.New(apperr.KindNotFound, "coupon not found")
		}
		if errors.Is(err, ErrUsageLimitReached) {
			return apperr.New(apperr.KindConflict, ErrUsageLimitReached.Error())
		}
		return fmt.Errorf("failed to redeem coupon %s: %w", code, err)
	}

	log.Info().Str("coupon_code", code).Str("order_id", orderID).Msg("coupon redeemed")
	return nil
}

// rejectionError classifies evaluator rejections for the HTTP layer: usage
// races are conflicts, everything else is a validation-grade rejection.
func rejectionError(err error) error {
	switch {
	case errors.Is(err, ErrUsageLimitReached),
		errors.Is(err, ErrAlreadyUsedByUser),
		errors.Is(err, ErrFirstTimeOnly):
		return apperr.Wrap(apperr.KindConflict, "", err)
	default:
		return apperr.Wrap(apperr.KindValidation, "", err)
	}
}
