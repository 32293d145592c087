// Package settlement turns a verified payment confirmation into its final
// state: a completed order with one license per item and every vendor
// credited, or a successful top-up credited to its owner. Each settlement is
// one database transaction and a repeated confirmation is a no-op.
package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/notify"
	"github.com/joao-fontenele/digimarket/internal/telemetry"
)

type OrderStore interface {
	GetForUpdate(ctx context.Context, q database.Querier, id string) (*domain.Order, error)
	MarkCompleted(ctx context.Context, q database.Querier, id, reference string, at time.Time) error
}

type TopUpStore interface {
	GetForUpdate(ctx context.Context, q database.Querier, id string) (*domain.TopUp, error)
	MarkSuccess(ctx context.Context, q database.Querier, id, reference string, at time.Time) error
}

type Catalog interface {
	ProductsTx(ctx context.Context, q database.Querier, ids []string) (map[string]domain.Product, error)
	IncrementDownloads(ctx context.Context, q database.Querier, productID string) error
	Email(ctx context.Context, userID string) (string, error)
}

type LicenseIssuer interface {
	Issue(ctx context.Context, q database.Querier, order *domain.Order, product domain.Product, now time.Time) (*domain.License, error)
}

type Ledger interface {
	Credit(ctx context.Context, q database.Querier, userID string, amount decimal.Decimal, description, reference string) error
}

// Confirmation is a verified statement from a payment source that Tag has
// been paid.
type Confirmation struct {
	Provider  string
	EventID   string
	EventType string
	Reference string
	Tag       string
	// Amount, when known, must match what the tag is worth.
	Amount *decimal.Decimal
}

type VendorCredit struct {
	VendorID string          `json:"vendor_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type Result struct {
	Kind           Kind             `json:"kind"`
	TargetID       string           `json:"target_id"`
	AlreadySettled bool             `json:"already_settled"`
	Order          *domain.Order    `json:"order,omitempty"`
	TopUp          *domain.TopUp    `json:"topup,omitempty"`
	Licenses       []domain.License `json:"licenses,omitempty"`
	Credits        []VendorCredit   `json:"credits,omitempty"`
}

type Engine struct {
	db       *sql.DB
	orders   OrderStore
	topUps   TopUpStore
	catalog  Catalog
	licenses LicenseIssuer
	ledger   Ledger
	events   *EventLog
	notifier notify.Sender
	logger   *slog.Logger
	now      func() time.Time

	settlements metric.Int64Counter
}

func NewEngine(db *sql.DB, orders OrderStore, topUps TopUpStore, catalog Catalog, licenses LicenseIssuer,
	ledger Ledger, events *EventLog, notifier notify.Sender, logger *slog.Logger,
) *Engine {
	return &Engine{
		db:          db,
		orders:      orders,
		topUps:      topUps,
		catalog:     catalog,
		licenses:    licenses,
		ledger:      ledger,
		events:      events,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		settlements: telemetry.Counter("digimarket/settlement", "settlements", "Payment confirmations processed by outcome"),
	}
}

// Settle applies c in its own transaction and announces the outcome once
// it is committed.
func (e *Engine) Settle(ctx context.Context, c Confirmation) (*Result, error) {
	var result *Result
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		var err error
		result, err = e.SettleTx(ctx, tx, c)
		return err
	})
	if err != nil {
		e.count(ctx, c.Tag, "failed")
		e.logger.Error("settlement failed", "error", err, "tag", c.Tag, "provider", c.Provider, "reference", c.Reference)
		return nil, err
	}

	e.Announce(ctx, result)
	return result, nil
}

// SettleTx applies c on q, which must be a transaction. Callers that own
// the transaction must call Announce after committing it.
func (e *Engine) SettleTx(ctx context.Context, q database.Querier, c Confirmation) (*Result, error) {
	kind, id, err := ParseTag(c.Tag)
	if err != nil {
		return nil, err
	}

	if c.EventID != "" {
		first, err := e.events.Record(ctx, q, c)
		if err != nil {
			return nil, err
		}
		if !first {
			e.logger.Info("duplicate payment event", "provider", c.Provider, "event_id", c.EventID, "tag", c.Tag)
		}
	}

	if kind == KindTopUp {
		return e.settleTopUp(ctx, q, id, c)
	}
	return e.settleOrder(ctx, q, id, c)
}

func (e *Engine) settleOrder(ctx context.Context, tx database.Querier, orderID string, c Confirmation) (*Result, error) {
	result := &Result{Kind: KindOrder, TargetID: orderID}

	order, err := e.orders.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	result.Order = order

	if order.Status == domain.OrderStatusCompleted {
		result.AlreadySettled = true
		return result, nil
	}
	if order.Status == domain.OrderStatusCancelled {
		return nil, fmt.Errorf("order %s is cancelled: %w", orderID, domain.ErrAlreadyProcessed)
	}
	if c.Amount != nil && !c.Amount.Equal(order.Total) {
		return nil, fmt.Errorf("%w: paid %s for order total %s", domain.ErrPaymentVerificationFailed, c.Amount, order.Total)
	}

	now := e.now().UTC()
	err = e.orders.MarkCompleted(ctx, tx, orderID, c.Reference, now)
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		result.AlreadySettled = true
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatusCompleted
	order.PaymentStatus = domain.PaymentStatusCompleted
	order.PaymentReference = c.Reference
	order.CompletedAt = &now

	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := e.catalog.ProductsTx(ctx, tx, productIDs)
	if err != nil {
		return nil, err
	}

	for _, item := range order.Items {
		product, ok := products[item.ProductID]
		if !ok {
			// removed from the catalog since checkout; the buyer still gets a license
			product = domain.Product{ID: item.ProductID, VendorID: item.VendorID, MaxActivations: 1}
		}

		l, err := e.licenses.Issue(ctx, tx, order, product, now)
		if err != nil {
			return nil, fmt.Errorf("issue license for %s: %w", item.ProductID, err)
		}
		result.Licenses = append(result.Licenses, *l)

		if err := e.catalog.IncrementDownloads(ctx, tx, item.ProductID); err != nil {
			return nil, fmt.Errorf("count download for %s: %w", item.ProductID, err)
		}
	}

	result.Credits = vendorCredits(order)
	for _, credit := range result.Credits {
		err := e.ledger.Credit(ctx, tx, credit.VendorID, credit.Amount, "Sale of order "+order.ID, order.ID)
		if err != nil {
			return nil, fmt.Errorf("credit vendor %s: %w", credit.VendorID, err)
		}
	}

	return result, nil
}

// vendorCredits sums earnings per vendor in vendor id order, so concurrent
// settlements lock wallets in the same order. Zero earnings are skipped.
func vendorCredits(order *domain.Order) []VendorCredit {
	earnings := order.VendorEarnings()

	credits := make([]VendorCredit, 0, len(earnings))
	for vendorID, amount := range earnings {
		if amount.IsPositive() {
			credits = append(credits, VendorCredit{VendorID: vendorID, Amount: amount})
		}
	}
	slices.SortFunc(credits, func(a, b VendorCredit) int { return strings.Compare(a.VendorID, b.VendorID) })

	return credits
}

func (e *Engine) settleTopUp(ctx context.Context, tx database.Querier, topUpID string, c Confirmation) (*Result, error) {
	result := &Result{Kind: KindTopUp, TargetID: topUpID}

	topUp, err := e.topUps.GetForUpdate(ctx, tx, topUpID)
	if err != nil {
		return nil, err
	}
	result.TopUp = topUp

	if topUp.Status == domain.TopUpSuccess {
		result.AlreadySettled = true
		return result, nil
	}
	if c.Amount != nil && !c.Amount.Equal(topUp.Amount) {
		return nil, fmt.Errorf("%w: paid %s for top-up of %s", domain.ErrPaymentVerificationFailed, c.Amount, topUp.Amount)
	}

	now := e.now().UTC()
	err = e.topUps.MarkSuccess(ctx, tx, topUpID, c.Reference, now)
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		result.AlreadySettled = true
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	topUp.Status = domain.TopUpSuccess
	topUp.PaymentReference = c.Reference
	topUp.CompletedAt = &now

	if err := e.ledger.Credit(ctx, tx, topUp.UserID, topUp.Amount, "Wallet top-up", topUp.ID); err != nil {
		return nil, fmt.Errorf("credit top-up: %w", err)
	}

	return result, nil
}

// Announce records the outcome and sends the best-effort notifications for
// a committed settlement.
func (e *Engine) Announce(ctx context.Context, result *Result) {
	tag := string(result.Kind) + ":" + result.TargetID
	if result.AlreadySettled {
		e.count(ctx, tag, "duplicate")
		e.logger.Info("settlement skipped, already settled", "kind", result.Kind, "target_id", result.TargetID)
		return
	}
	e.count(ctx, tag, "settled")

	switch result.Kind {
	case KindOrder:
		e.announceOrder(ctx, result)
	case KindTopUp:
		e.announceTopUp(ctx, result)
	}
}

func (e *Engine) announceOrder(ctx context.Context, result *Result) {
	order := result.Order
	e.logger.Info("order settled",
		"order_id", order.ID,
		"reference", order.PaymentReference,
		"licenses", len(result.Licenses),
		"vendors", len(result.Credits),
	)

	keys := make([]string, 0, len(result.Licenses))
	for _, l := range result.Licenses {
		keys = append(keys, l.Key)
	}
	e.notifier.Send(ctx, domain.Notification{
		Template: domain.TemplateOrderCompleted,
		To:       order.Contact.Email,
		Data: map[string]string{
			"order_id":     order.ID,
			"name":         order.Contact.Name,
			"total":        order.Total.StringFixed(2),
			"license_keys": strings.Join(keys, ", "),
		},
	})

	for _, credit := range result.Credits {
		email, err := e.catalog.Email(ctx, credit.VendorID)
		if err != nil {
			e.logger.Warn("failed to resolve vendor email", "error", err, "vendor_id", credit.VendorID)
			continue
		}
		e.notifier.Send(ctx, domain.Notification{
			Template: domain.TemplateVendorSale,
			To:       email,
			Data: map[string]string{
				"order_id": order.ID,
				"amount":   credit.Amount.StringFixed(2),
			},
		})
	}
}

func (e *Engine) announceTopUp(ctx context.Context, result *Result) {
	topUp := result.TopUp
	e.logger.Info("top-up settled", "topup_id", topUp.ID, "user_id", topUp.UserID, "amount", topUp.Amount)

	email, err := e.catalog.Email(ctx, topUp.UserID)
	if err != nil {
		e.logger.Warn("failed to resolve user email", "error", err, "user_id", topUp.UserID)
		return
	}
	e.notifier.Send(ctx, domain.Notification{
		Template: domain.TemplateTopUpCompleted,
		To:       email,
		Data: map[string]string{
			"topup_id": topUp.ID,
			"amount":   topUp.Amount.StringFixed(2),
		},
	})
}

func (e *Engine) count(ctx context.Context, tag, outcome string) {
	kind, _, _ := strings.Cut(tag, ":")
	e.settlements.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("kind", kind),
	))
}
