package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const orderColumns = `
	id, buyer_id, subtotal, discount, total, payment_method, payment_status, status,
	coupon_id, coupon_code, coupon_type, coupon_value, coupon_discount,
	payment_reference, contact, billing_address, created_at, updated_at, completed_at`

// Insert persists a new order and its items on q.
func (r *Repository) Insert(ctx context.Context, q database.Querier, order *domain.Order) error {
	contact, err := json.Marshal(order.Contact)
	if err != nil {
		return err
	}
	billing, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return err
	}

	var (
		couponID, couponCode, couponType sql.NullString
		couponValue, couponDiscount      decimal.NullDecimal
	)
	if c := order.Coupon; c != nil {
		couponID = sql.NullString{String: c.CouponID, Valid: true}
		couponCode = sql.NullString{String: c.Code, Valid: true}
		couponType = sql.NullString{String: string(c.Type), Valid: true}
		couponValue = decimal.NewNullDecimal(c.Value)
		couponDiscount = decimal.NewNullDecimal(c.Discount)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO orders (id, buyer_id, subtotal, discount, total, payment_method,
			payment_status, status, coupon_id, coupon_code, coupon_type, coupon_value,
			coupon_discount, contact, billing_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
	`, order.ID, order.BuyerID, order.Subtotal, order.Discount, order.Total, order.PaymentMethod,
		order.PaymentStatus, order.Status, couponID, couponCode, couponType, couponValue,
		couponDiscount, contact, billing, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = q.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, vendor_id, title,
				price, platform_fee, vendor_earning)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.NewString(), order.ID, i, item.ProductID, item.VendorID, item.Title,
			item.Price, item.PlatformFee, item.VendorEarning)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, r.db, id, "")
}

// GetForUpdate loads the order on q and locks its row until q commits.
func (r *Repository) GetForUpdate(ctx context.Context, q database.Querier, id string) (*domain.Order, error) {
	return r.get(ctx, q, id, "FOR UPDATE")
}

func (r *Repository) get(ctx context.Context, q database.Querier, id, lock string) (*domain.Order, error) {
	row := q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 `+lock, id)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	items, err := r.items(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]

	return order, nil
}

// ListByBuyer returns the buyer's orders, newest first.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE buyer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, buyerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	var ids []string
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.items(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

func (r *Repository) items(ctx context.Context, q database.Querier, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, vendor_id, title, price, platform_fee, vendor_earning
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.VendorID, &item.Title,
			&item.Price, &item.PlatformFee, &item.VendorEarning); err != nil {
			return nil, err
		}
		items[orderID] = append(items[orderID], item)
	}

	return items, rows.Err()
}

// MarkCompleted moves a pending order to completed/completed. It fails with
// ErrAlreadyProcessed when the order was completed already.
func (r *Repository) MarkCompleted(ctx context.Context, q database.Querier, id, reference string, at time.Time) error {
	result, err := q.ExecContext(ctx, `
		UPDATE orders
		SET status = 'completed', payment_status = 'completed', payment_reference = $2,
			completed_at = $3, updated_at = $3
		WHERE id = $1 AND status <> 'completed'
	`, id, reference, at)
	if err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	return database.RequireAffected(result, domain.ErrAlreadyProcessed)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	var (
		order                            domain.Order
		couponID, couponCode, couponType sql.NullString
		couponValue, couponDiscount      decimal.NullDecimal
		reference                        sql.NullString
		contact, billing                 []byte
		completedAt                      sql.NullTime
	)

	err := s.Scan(&order.ID, &order.BuyerID, &order.Subtotal, &order.Discount, &order.Total,
		&order.PaymentMethod, &order.PaymentStatus, &order.Status,
		&couponID, &couponCode, &couponType, &couponValue, &couponDiscount,
		&reference, &contact, &billing, &order.CreatedAt, &order.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if couponID.Valid {
		order.Coupon = &domain.AppliedCoupon{
			CouponID: couponID.String,
			Code:     couponCode.String,
			Type:     domain.CouponType(couponType.String),
			Value:    couponValue.Decimal,
			Discount: couponDiscount.Decimal,
		}
	}
	order.PaymentReference = reference.String
	if completedAt.Valid {
		order.CompletedAt = &completedAt.Time
	}

	if err := json.Unmarshal(contact, &order.Contact); err != nil {
		return nil, fmt.Errorf("decode contact: %w", err)
	}
	if err := json.Unmarshal(billing, &order.BillingAddress); err != nil {
		return nil, fmt.Errorf("decode billing address: %w", err)
	}

	return &order, nil
}
