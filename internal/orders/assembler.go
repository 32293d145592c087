// Package orders prices carts into pending orders and serves them back to
// their buyers.
package orders

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/coupon"
	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/notify"
)

type Catalog interface {
	FindProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	IncrementSales(ctx context.Context, ids []string) error
}

type CreateRequest struct {
	BuyerID        string               `json:"-"`
	ProductIDs     []string             `json:"product_ids"`
	PaymentMethod  domain.PaymentMethod `json:"payment_method"`
	Coupon         string               `json:"coupon,omitempty"`
	Contact        domain.Contact       `json:"contact"`
	BillingAddress domain.Address       `json:"billing_address"`
}

func (req *CreateRequest) validate() error {
	if req.BuyerID == "" {
		return domain.Invalid("buyer_id", "is required")
	}
	if len(req.ProductIDs) == 0 {
		return domain.Invalid("product_ids", "must not be empty")
	}
	for i, id := range req.ProductIDs {
		if id == "" {
			return domain.Invalid("product_ids", "must not contain empty ids")
		}
		if slices.Contains(req.ProductIDs[:i], id) {
			return domain.Invalid("product_ids", "must not repeat "+id)
		}
	}
	if !req.PaymentMethod.Valid() {
		return domain.Invalid("payment_method", "must be one of gateway-A, gateway-B, wallet")
	}
	if strings.TrimSpace(req.Contact.Name) == "" {
		return domain.Invalid("contact.name", "is required")
	}
	if !strings.Contains(req.Contact.Email, "@") {
		return domain.Invalid("contact.email", "must be an email address")
	}
	if strings.TrimSpace(req.BillingAddress.Line1) == "" {
		return domain.Invalid("billing_address.line1", "is required")
	}
	if strings.TrimSpace(req.BillingAddress.City) == "" {
		return domain.Invalid("billing_address.city", "is required")
	}
	if strings.TrimSpace(req.BillingAddress.Country) == "" {
		return domain.Invalid("billing_address.country", "is required")
	}
	return nil
}

type Assembler struct {
	db             *sql.DB
	repo           *Repository
	catalog        Catalog
	coupons        *coupon.Service
	notifier       notify.Sender
	commissionRate decimal.Decimal
	adminEmail     string
	logger         *slog.Logger
}

func NewAssembler(db *sql.DB, repo *Repository, catalog Catalog, coupons *coupon.Service, notifier notify.Sender,
	commissionRate decimal.Decimal, adminEmail string, logger *slog.Logger,
) *Assembler {
	return &Assembler{
		db:             db,
		repo:           repo,
		catalog:        catalog,
		coupons:        coupons,
		notifier:       notifier,
		commissionRate: commissionRate,
		adminEmail:     adminEmail,
		logger:         logger,
	}
}

// Create prices the cart, applies at most one coupon and persists a
// pending order. The coupon is consumed in the same transaction.
func (a *Assembler) Create(ctx context.Context, req CreateRequest) (*domain.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	products, err := a.catalog.FindProducts(ctx, req.ProductIDs)
	if err != nil {
		return nil, err
	}

	items, subtotal := Price(products, req.ProductIDs, a.commissionRate)

	now := time.Now().UTC()
	order := &domain.Order{
		ID:             uuid.NewString(),
		BuyerID:        req.BuyerID,
		Items:          items,
		Subtotal:       subtotal,
		Discount:       decimal.Zero,
		Total:          subtotal,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  domain.PaymentStatusPending,
		Status:         domain.OrderStatusPending,
		Contact:        req.Contact,
		BillingAddress: req.BillingAddress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = database.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		var live *domain.Coupon
		if req.Coupon != "" {
			applied, c, err := a.coupons.Apply(ctx, tx, req.Coupon, coupon.Cart{
				BuyerID:    req.BuyerID,
				Subtotal:   subtotal,
				ProductIDs: req.ProductIDs,
			})
			if err != nil {
				return err
			}
			order.Coupon = applied
			order.Discount = applied.Discount
			order.Total = subtotal.Sub(applied.Discount)
			live = c
		}

		if err := a.repo.Insert(ctx, tx, order); err != nil {
			return err
		}

		if live != nil {
			return a.coupons.Redeem(ctx, tx, live, req.BuyerID, order.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("order created",
		"order_id", order.ID,
		"buyer_id", order.BuyerID,
		"items", len(order.Items),
		"total", order.Total,
		"payment_method", order.PaymentMethod,
	)

	if err := a.catalog.IncrementSales(ctx, req.ProductIDs); err != nil {
		a.logger.Warn("failed to increment sales counters", "error", err, "order_id", order.ID)
	}

	a.announce(ctx, order)

	return order, nil
}

func (a *Assembler) announce(ctx context.Context, order *domain.Order) {
	data := map[string]string{
		"order_id": order.ID,
		"name":     order.Contact.Name,
		"items":    fmt.Sprint(len(order.Items)),
		"subtotal": order.Subtotal.StringFixed(2),
		"discount": order.Discount.StringFixed(2),
		"total":    order.Total.StringFixed(2),
		"method":   string(order.PaymentMethod),
	}

	a.notifier.Send(ctx, domain.Notification{
		Template: domain.TemplateOrderConfirmation,
		To:       order.Contact.Email,
		Data:     data,
	})
	a.notifier.Send(ctx, domain.Notification{
		Template: domain.TemplateAdminNewOrder,
		To:       a.adminEmail,
		Data:     data,
	})
}

// Get returns the order when the caller owns it or is an admin.
func (a *Assembler) Get(ctx context.Context, id, callerID string, admin bool) (*domain.Order, error) {
	order, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && order.BuyerID != callerID {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return order, nil
}

func (a *Assembler) List(ctx context.Context, buyerID string, limit, offset int) ([]domain.Order, error) {
	return a.repo.ListByBuyer(ctx, buyerID, limit, offset)
}
