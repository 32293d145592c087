package coupon

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func save20() *domain.Coupon {
	return &domain.Coupon{
		ID:        "c-1",
		Code:      "SAVE20",
		Type:      domain.CouponPercentage,
		Value:     d("20"),
		ExpiresAt: now.Add(24 * time.Hour),
		Active:    true,
	}
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   func() *domain.Coupon
		subtotal string
		want     string
	}{
		{
			name:     "percentage",
			coupon:   save20,
			subtotal: "100.00",
			want:     "20.00",
		},
		{
			name: "percentage capped",
			coupon: func() *domain.Coupon {
				c := save20()
				c.MaxDiscount = ptr(d("15.00"))
				return c
			},
			subtotal: "100.00",
			want:     "15.00",
		},
		{
			name: "percentage rounds to cents",
			coupon: func() *domain.Coupon {
				c := save20()
				c.Value = d("15")
				return c
			},
			subtotal: "29.99",
			want:     "4.50",
		},
		{
			name: "fixed",
			coupon: func() *domain.Coupon {
				return &domain.Coupon{Type: domain.CouponFixed, Value: d("5.00")}
			},
			subtotal: "29.99",
			want:     "5.00",
		},
		{
			name: "fixed never exceeds subtotal",
			coupon: func() *domain.Coupon {
				return &domain.Coupon{Type: domain.CouponFixed, Value: d("50.00")}
			},
			subtotal: "29.99",
			want:     "29.99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Discount(tt.coupon(), d(tt.subtotal))
			if !got.Equal(d(tt.want)) {
				t.Errorf("expected discount %s, got %s", tt.want, got)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	lastWeek := now.Add(-7 * 24 * time.Hour)
	cart := Cart{BuyerID: "b-1", Subtotal: d("100.00"), ProductIDs: []string{"p-1", "p-2"}}

	tests := []struct {
		name     string
		mutate   func(c *domain.Coupon)
		history  domain.OrderHistory
		redeemed bool
		wantErr  error
	}{
		{name: "eligible"},
		{name: "inactive", mutate: func(c *domain.Coupon) { c.Active = false }, wantErr: domain.ErrCouponInvalid},
		{name: "expired", mutate: func(c *domain.Coupon) { c.ExpiresAt = now }, wantErr: domain.ErrCouponInvalid},
		{
			name:    "usage limit reached",
			mutate:  func(c *domain.Coupon) { c.UsageLimit = ptr(5); c.UsedCount = 5 },
			wantErr: domain.ErrCouponExhausted,
		},
		{name: "already redeemed", redeemed: true, wantErr: domain.ErrCouponAlreadyUsed},
		{
			name:    "new user only with history",
			mutate:  func(c *domain.Coupon) { c.Rules.NewUserOnly = true },
			history: domain.OrderHistory{CompletedOrders: 1, LastOrderAt: &lastWeek},
			wantErr: domain.ErrCouponInvalid,
		},
		{
			name:   "new user only without history",
			mutate: func(c *domain.Coupon) { c.Rules.NewUserOnly = true },
		},
		{
			name:    "min orders not met",
			mutate:  func(c *domain.Coupon) { c.Rules.MinOrders = 3 },
			history: domain.OrderHistory{CompletedOrders: 2, LastOrderAt: &lastWeek},
			wantErr: domain.ErrCouponInvalid,
		},
		{
			name:    "min cart amount not met",
			mutate:  func(c *domain.Coupon) { c.Rules.MinCartAmount = d("100.01") },
			wantErr: domain.ErrCouponInvalid,
		},
		{
			name:    "recently active buyer",
			mutate:  func(c *domain.Coupon) { c.Rules.MinInactiveDays = 30 },
			history: domain.OrderHistory{CompletedOrders: 4, LastOrderAt: &lastWeek},
			wantErr: domain.ErrCouponInvalid,
		},
		{
			name:   "inactivity rule skipped without orders",
			mutate: func(c *domain.Coupon) { c.Rules.MinInactiveDays = 30 },
		},
		{
			name:    "restricted to other products",
			mutate:  func(c *domain.Coupon) { c.ProductIDs = []string{"p-9"} },
			wantErr: domain.ErrCouponInvalid,
		},
		{
			name:   "restricted to a cart product",
			mutate: func(c *domain.Coupon) { c.ProductIDs = []string{"p-9", "p-2"} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := save20()
			if tt.mutate != nil {
				tt.mutate(c)
			}

			discount, err := Evaluate(c, cart, tt.history, tt.redeemed, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !discount.Equal(d("20.00")) {
				t.Errorf("expected discount 20.00, got %s", discount)
			}
		})
	}
}
