// Package coupon decides whether a buyer may apply a coupon to a cart and
// what it is worth.
package coupon

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Cart is what the evaluator needs to know about the purchase.
type Cart struct {
	BuyerID    string
	Subtotal   decimal.Decimal
	ProductIDs []string
}

func invalid(format string, args ...any) error {
	return &domain.CouponError{Kind: domain.ErrCouponInvalid, Reason: fmt.Sprintf(format, args...)}
}

// Evaluate checks c against the cart and the buyer's history and returns
// the discount. redeemed reports whether the buyer already used c.
func Evaluate(c *domain.Coupon, cart Cart, history domain.OrderHistory, redeemed bool, now time.Time) (decimal.Decimal, error) {
	if !c.Active {
		return decimal.Zero, invalid("%s is not active", c.Code)
	}
	if !now.Before(c.ExpiresAt) {
		return decimal.Zero, invalid("%s has expired", c.Code)
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return decimal.Zero, &domain.CouponError{Kind: domain.ErrCouponExhausted, Reason: c.Code}
	}
	if redeemed {
		return decimal.Zero, &domain.CouponError{Kind: domain.ErrCouponAlreadyUsed, Reason: c.Code}
	}

	if err := checkRules(c.Rules, cart, history, now); err != nil {
		return decimal.Zero, err
	}

	if len(c.ProductIDs) > 0 && !slices.ContainsFunc(cart.ProductIDs, func(id string) bool {
		return slices.Contains(c.ProductIDs, id)
	}) {
		return decimal.Zero, invalid("%s does not apply to these products", c.Code)
	}

	return Discount(c, cart.Subtotal), nil
}

func checkRules(rules domain.CouponRules, cart Cart, history domain.OrderHistory, now time.Time) error {
	if rules.NewUserOnly && history.CompletedOrders != 0 {
		return invalid("only valid on a first order")
	}
	if rules.MinOrders > 0 && history.CompletedOrders < rules.MinOrders {
		return invalid("requires at least %d previous orders", rules.MinOrders)
	}
	if rules.MinCartAmount.IsPositive() && cart.Subtotal.LessThan(rules.MinCartAmount) {
		return invalid("requires a cart of at least %s", rules.MinCartAmount.StringFixed(2))
	}
	if rules.MinInactiveDays > 0 && history.LastOrderAt != nil {
		inactive := int(now.Sub(*history.LastOrderAt).Hours() / 24)
		if inactive < rules.MinInactiveDays {
			return invalid("requires %d days since the last order", rules.MinInactiveDays)
		}
	}
	return nil
}

// Discount computes the coupon value for subtotal. The result never
// exceeds subtotal.
func Discount(c *domain.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.Type {
	case domain.CouponPercentage:
		discount = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount != nil && discount.GreaterThan(*c.MaxDiscount) {
			discount = *c.MaxDiscount
		}
	case domain.CouponFixed:
		discount = c.Value
	}

	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount.Round(2)
}
