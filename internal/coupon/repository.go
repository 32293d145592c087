package coupon

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Find looks a coupon up by id or by case-insensitive code. An exact id
// match wins over a code match.
func (r *Repository) Find(ctx context.Context, q database.Querier, ref string) (*domain.Coupon, error) {
	var (
		c           domain.Coupon
		maxDiscount decimal.NullDecimal
		usageLimit  sql.NullInt64
	)

	err := q.QueryRowContext(ctx, `
		SELECT id, code, type, value, new_user_only, min_orders, min_cart_amount,
			min_inactive_days, max_discount, usage_limit, used_count, product_ids,
			expires_at, active
		FROM coupons
		WHERE id = $1 OR LOWER(code) = LOWER($1)
		ORDER BY id = $1 DESC
		LIMIT 1
	`, ref).Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.Rules.NewUserOnly, &c.Rules.MinOrders,
		&c.Rules.MinCartAmount, &c.Rules.MinInactiveDays, &maxDiscount, &usageLimit,
		&c.UsedCount, pq.Array(&c.ProductIDs), &c.ExpiresAt, &c.Active)
	if err == sql.ErrNoRows {
		return nil, invalid("%s not found", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("find coupon: %w", err)
	}

	if maxDiscount.Valid {
		c.MaxDiscount = &maxDiscount.Decimal
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		c.UsageLimit = &limit
	}

	return &c, nil
}

func (r *Repository) Redeemed(ctx context.Context, q database.Querier, couponID, userID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2)
	`, couponID, userID).Scan(&exists)
	return exists, err
}

// History summarizes the buyer's completed orders.
func (r *Repository) History(ctx context.Context, q database.Querier, buyerID string) (domain.OrderHistory, error) {
	var (
		h    domain.OrderHistory
		last sql.NullTime
	)

	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(created_at)
		FROM orders
		WHERE buyer_id = $1 AND status = 'completed'
	`, buyerID).Scan(&h.CompletedOrders, &last)
	if err != nil {
		return h, fmt.Errorf("order history: %w", err)
	}

	if last.Valid {
		at := last.Time
		h.LastOrderAt = &at
	}
	return h, nil
}

// Redeem records that userID used the coupon on orderID and consumes one
// use. It must run in the transaction that persists the order.
func (r *Repository) Redeem(ctx context.Context, q database.Querier, c *domain.Coupon, userID, orderID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO coupon_redemptions (coupon_id, user_id, order_id, redeemed_at)
		VALUES ($1, $2, $3, $4)
	`, c.ID, userID, orderID, time.Now().UTC())
	if database.IsUniqueViolation(err, "coupon_redemptions_pkey") {
		return &domain.CouponError{Kind: domain.ErrCouponAlreadyUsed, Reason: c.Code}
	}
	if err != nil {
		return fmt.Errorf("record redemption: %w", err)
	}

	result, err := q.ExecContext(ctx, `
		UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
	`, c.ID)
	if err != nil {
		return fmt.Errorf("consume coupon: %w", err)
	}

	return database.RequireAffected(result, &domain.CouponError{Kind: domain.ErrCouponExhausted, Reason: c.Code})
}
