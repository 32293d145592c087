package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

// CouponRules are optional eligibility constraints; zero values disable a
// rule.
type CouponRules struct {
	NewUserOnly     bool            `json:"new_user_only"`
	MinOrders       int             `json:"min_orders"`
	MinCartAmount   decimal.Decimal `json:"min_cart_amount"`
	MinInactiveDays int             `json:"min_inactive_days"`
}

type Coupon struct {
	ID          string           `json:"id"`
	Code        string           `json:"code"`
	Type        CouponType       `json:"type"`
	Value       decimal.Decimal  `json:"value"`
	Rules       CouponRules      `json:"rules"`
	MaxDiscount *decimal.Decimal `json:"max_discount,omitempty"`
	UsageLimit  *int             `json:"usage_limit,omitempty"`
	UsedCount   int              `json:"used_count"`
	ProductIDs  []string         `json:"product_ids,omitempty"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Active      bool             `json:"active"`
}

// OrderHistory is what coupon rules know about a buyer.
type OrderHistory struct {
	CompletedOrders int
	LastOrderAt     *time.Time
}
