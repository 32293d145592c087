package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID             string           `json:"id"`
	VendorID       string           `json:"vendor_id"`
	Title          string           `json:"title"`
	Price          decimal.Decimal  `json:"price"`
	SalePrice      *decimal.Decimal `json:"sale_price,omitempty"`
	MaxActivations int              `json:"max_activations"`
	LicenseDays    *int             `json:"license_days,omitempty"`
	CommissionRate *decimal.Decimal `json:"-"`
	Active         bool             `json:"active"`
}

// EffectivePrice is the sale price when one is set, otherwise the list price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil && p.SalePrice.IsPositive() {
		return *p.SalePrice
	}
	return p.Price
}

type VendorProfile struct {
	UserID         string           `json:"user_id"`
	Email          string           `json:"email"`
	CommissionRate *decimal.Decimal `json:"commission_rate,omitempty"`
	PayoutMethod   string           `json:"payout_method,omitempty"`
	PayoutDetails  json.RawMessage  `json:"payout_details,omitempty"`
}
