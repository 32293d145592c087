package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodPayPal    PaymentMethod = "gateway-A"
	PaymentMethodBraintree PaymentMethod = "gateway-B"
	PaymentMethodWallet    PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodPayPal, PaymentMethodBraintree, PaymentMethodWallet:
		return true
	}
	return false
}

// Provider reports whether the method is settled by an external gateway.
func (m PaymentMethod) Provider() bool {
	return m == PaymentMethodPayPal || m == PaymentMethodBraintree
}

// OrderItem is one purchased product. Price always equals
// VendorEarning + PlatformFee.
type OrderItem struct {
	ProductID     string          `json:"product_id"`
	VendorID      string          `json:"vendor_id"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	VendorEarning decimal.Decimal `json:"vendor_earning"`
}

// AppliedCoupon is a snapshot of the coupon at order time. Later edits to
// the coupon never touch it.
type AppliedCoupon struct {
	CouponID string          `json:"coupon_id"`
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	Type     CouponType      `json:"type"`
	Value    decimal.Decimal `json:"value"`
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

type Order struct {
	ID               string          `json:"id"`
	BuyerID          string          `json:"buyer_id"`
	Items            []OrderItem     `json:"items"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	Total            decimal.Decimal `json:"total"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	Status           OrderStatus     `json:"status"`
	Coupon           *AppliedCoupon  `json:"coupon,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Contact          Contact         `json:"contact"`
	BillingAddress   Address         `json:"billing_address"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// VendorEarnings sums the vendor share of each item per vendor.
func (o *Order) VendorEarnings() map[string]decimal.Decimal {
	earnings := make(map[string]decimal.Decimal)
	for _, item := range o.Items {
		earnings[item.VendorID] = earnings[item.VendorID].Add(item.VendorEarning)
	}
	return earnings
}
