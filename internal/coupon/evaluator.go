package coupon

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Rejection reasons, checked in this order by Evaluate.
var (
	ErrInactive             = errors.New("coupon is inactive")
	ErrExpired              = errors.New("coupon has expired")
	ErrNotStarted           = errors.New("coupon is not yet active")
	ErrMinOrderAmount       = errors.New("minimum order amount not met")
	ErrUsageLimitReached    = errors.New("coupon usage limit reached")
	ErrAlreadyUsedByUser    = errors.New("this coupon can only be used once per user")
	ErrFirstTimeOnly        = errors.New("this coupon is only for first-time users")
	ErrNoEligibleItems      = errors.New("no qualifying items in the cart")
	ErrInsufficientQuantity = errors.New("not enough qualifying items for this coupon")
	ErrInvalidQuantityRule  = errors.New("coupon has invalid buy/get quantities")
	ErrMissingComboProducts = errors.New("all specified products must be in the cart for this combo coupon")
)

// Evaluate decides eligibility and computes the discount for a cart against a
// coupon. It is a pure dry run: redemption bookkeeping (usedCount, per-user
// records) happens only when an order is confirmed. A result of ErrExpired
// means the caller should also persist status=expired on the coupon.
func Evaluate(c *Coupon, cart []CartItem, orderAmount int64, usage Usage, now time.Time) (int64, error) {
	if c.Status == StatusInactive {
		return 0, ErrInactive
	}

	if now.After(c.EndDate) {
		return 0, ErrExpired
	}

	// Start is compared by calendar day so a coupon starting "today" works
	// from midnight regardless of its stored time-of-day.
	if dateOnly(now.UTC()).Before(dateOnly(c.StartDate.UTC())) {
		return 0, ErrNotStarted
	}

	if orderAmount < c.MinOrderAmount {
		return 0, fmt.Errorf("%w: minimum order amount of %d required", ErrMinOrderAmount, c.MinOrderAmount)
	}

	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return 0, ErrUsageLimitReached
	}

	if c.FirstTimeUsersOnly {
		if usage.UsedThisCoupon {
			return 0, ErrAlreadyUsedByUser
		}
		// Strict rule: any prior first-time-only redemption disqualifies the
		// user from every other first-time-only coupon.
		if usage.UsedAnyFirstTimeCoupon {
			return 0, ErrFirstTimeOnly
		}
	}

	eligible := eligibleItems(c, cart)
	if len(c.ApplicableProducts) > 0 && len(eligible) == 0 {
		return 0, ErrNoEligibleItems
	}

	var discount int64
	switch c.Type {
	case TypeBuyXGetY:
		d, err := buyXGetYDiscount(c, eligible)
		if err != nil {
			return 0, err
		}
		discount = d
	case TypeCombo:
		if !hasAllComboProducts(c, cart) {
			return 0, ErrMissingComboProducts
		}
		discount = capDiscount(c, c.ComboDiscountAmount)
	case TypeSameProduct:
		if !hasRequiredQuantity(c, eligible) {
			return 0, fmt.Errorf("%w: at least %d units of a qualifying product required", ErrInsufficientQuantity, c.RequiredQuantity)
		}
		discount = capDiscount(c, c.DiscountValue)
	default: // standard
		discount = standardDiscount(c, eligible)
	}

	if discount > orderAmount {
		discount = orderAmount
	}
	if discount < 0 {
		discount = 0
	}
	return discount, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func eligibleItems(c *Coupon, cart []CartItem) []CartItem {
	if len(c.ApplicableProducts) == 0 {
		return cart
	}
	allowed := make(map[string]bool, len(c.ApplicableProducts))
	for _, id := range c.ApplicableProducts {
		allowed[id] = true
	}
	eligible := make([]CartItem, 0, len(cart))
	for _, item := range cart {
		if allowed[item.ProductID] {
			eligible = append(eligible, item)
		}
	}
	return eligible
}

func standardDiscount(c *Coupon, eligible []CartItem) int64 {
	if c.DiscountType == DiscountFixed {
		return c.DiscountValue
	}
	var eligibleAmount int64
	for _, item := range eligible {
		eligibleAmount += item.Price * int64(item.Quantity)
	}
	return capDiscount(c, eligibleAmount*c.DiscountValue/100)
}

// buyXGetYDiscount gives away the cheapest eligible units: for every
// buy+get block of units in the cart, get units are free.
func buyXGetYDiscount(c *Coupon, eligible []CartItem) (int64, error) {
	// Unset quantities would divide by zero below.
	if c.BuyQuantity <= 0 || c.GetQuantity <= 0 {
		return 0, ErrInvalidQuantityRule
	}

	var total int
	for _, item := range eligible {
		total += item.Quantity
	}
	if total < c.BuyQuantity {
		return 0, fmt.Errorf("%w: at least %d qualifying items required", ErrInsufficientQuantity, c.BuyQuantity)
	}

	freeCount := total / (c.BuyQuantity + c.GetQuantity) * c.GetQuantity
	if freeCount == 0 {
		return 0, nil
	}

	sorted := make([]CartItem, len(eligible))
	copy(sorted, eligible)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	var discount int64
	remaining := freeCount
	for _, item := range sorted {
		n := item.Quantity
		if n > remaining {
			n = remaining
		}
		discount += item.Price * int64(n)
		remaining -= n
		if remaining == 0 {
			break
		}
	}
	return capDiscount(c, discount), nil
}

func hasAllComboProducts(c *Coupon, cart []CartItem) bool {
	for _, id := range c.ApplicableProducts {
		found := false
		for _, item := range cart {
			if item.ProductID == id && item.Quantity > 0 {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasRequiredQuantity(c *Coupon, eligible []CartItem) bool {
	for _, item := range eligible {
		if item.Quantity >= c.RequiredQuantity {
			return true
		}
	}
	return false
}

func capDiscount(c *Coupon, discount int64) int64 {
	if c.MaxDiscountAmount > 0 && discount > c.MaxDiscountAmount {
		return c.MaxDiscountAmount
	}
	return discount
}
