package coupon

import "time"

type Type string

const (
	TypeStandard    Type = "standard"
	TypeBuyXGetY    Type = "buy_x_get_y"
	TypeCombo       Type = "combo"
	TypeSameProduct Type = "same_product_discount"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
)

// Coupon is a discount rule. Admin mutation lives outside this service; the
// evaluator consumes it read-only. Monetary fields are minor units;
// DiscountValue is a percent for percentage coupons.
type Coupon struct {
	Code              string       `json:"code"`
	DiscountType      DiscountType `json:"discountType"`
	DiscountValue     int64        `json:"discountValue"`
	MinOrderAmount    int64        `json:"minOrderAmount"`
	MaxDiscountAmount int64        `json:"maxDiscountAmount"` // 0 means uncapped
	StartDate         time.Time    `json:"startDate"`
	EndDate           time.Time    `json:"endDate"`
	Status            Status       `json:"status"`
	UsageLimit        int64        `json:"usageLimit"` // 0 means unlimited
	UsedCount         int64        `json:"usedCount"`
	FirstTimeUsersOnly bool        `json:"firstTimeUsersOnly"`

	Type             Type  `json:"couponType"`
	BuyQuantity      int   `json:"buyQuantity"`
	GetQuantity      int   `json:"getQuantity"`
	RequiredQuantity int   `json:"requiredQuantity"`
	// ComboDiscountAmount is the fixed discount granted when every product of
	// a combo coupon is present in the cart.
	ComboDiscountAmount int64 `json:"comboDiscountAmount"`

	// ApplicableProducts restricts which cart lines count toward eligibility
	// and discount computation. Empty means all lines count.
	ApplicableProducts []string `json:"applicableProducts"`
}

// CartItem is the evaluator's view of one cart line.
type CartItem struct {
	ProductID string `json:"productId"`
	Price     int64  `json:"price"` // unit price, minor units
	Quantity  int    `json:"quantity"`
}

// Usage is the per-user history the evaluator needs for first-time-only rules.
type Usage struct {
	// UsedThisCoupon is true when the user already redeemed this coupon.
	UsedThisCoupon bool
	// UsedAnyFirstTimeCoupon is true when the user redeemed any
	// first-time-only coupon, this one or another.
	UsedAnyFirstTimeCoupon bool
}
