// Package payment opens payment sessions with the configured providers,
// pays orders from the buyer's wallet and turns provider callbacks into
// settlement confirmations.
package payment

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/settlement"
	"github.com/joao-fontenele/digimarket/internal/telemetry"
)

const ProviderWallet = "wallet"

type PayPalGateway interface {
	CreateOrder(ctx context.Context, tag string, total decimal.Decimal, returnURL, cancelURL string) (*Checkout, error)
	Capture(ctx context.Context, orderID string) (*settlement.Confirmation, error)
	Webhook(ctx context.Context, header http.Header, body []byte) (*settlement.Confirmation, error)
}

type BraintreeGateway interface {
	ClientToken(ctx context.Context) (string, error)
	Sale(ctx context.Context, nonce, tag string, total decimal.Decimal) (*settlement.Confirmation, error)
	Webhook(signature, payload string) (*settlement.Confirmation, error)
}

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type TopUpStore interface {
	Create(ctx context.Context, userID string, amount decimal.Decimal, method domain.PaymentMethod) (*domain.TopUp, error)
	Get(ctx context.Context, id string) (*domain.TopUp, error)
}

type Debiter interface {
	Debit(ctx context.Context, q database.Querier, userID string, amount decimal.Decimal, description, reference string) error
}

type Settler interface {
	Settle(ctx context.Context, c settlement.Confirmation) (*settlement.Result, error)
	SettleTx(ctx context.Context, q database.Querier, c settlement.Confirmation) (*settlement.Result, error)
	Announce(ctx context.Context, result *settlement.Result)
}

// Checkout is what a provider hands back when a session is opened.
type Checkout struct {
	SessionID   string
	ApprovalURL string
}

// Session tells the client how to continue paying for Tag.
type Session struct {
	Method      domain.PaymentMethod `json:"method"`
	Tag         string               `json:"tag"`
	Amount      decimal.Decimal      `json:"amount"`
	SessionID   string               `json:"session_id,omitempty"`
	ApprovalURL string               `json:"approval_url,omitempty"`
	ClientToken string               `json:"client_token,omitempty"`
	TopUp       *domain.TopUp        `json:"topup,omitempty"`
	Result      *settlement.Result   `json:"result,omitempty"`
}

type Dispatcher struct {
	db        *sql.DB
	orders    OrderReader
	topUps    TopUpStore
	wallet    Debiter
	settler   Settler
	paypal    PayPalGateway
	braintree BraintreeGateway
	returnURL string
	cancelURL string
	logger    *slog.Logger

	sessions metric.Int64Counter
}

type Option func(*Dispatcher)

// WithPayPal enables gateway-A. Approved buyers are sent back to
// baseURL/payments/paypal/return.
func WithPayPal(gateway PayPalGateway, baseURL string) Option {
	return func(d *Dispatcher) {
		d.paypal = gateway
		d.returnURL = baseURL + "/payments/paypal/return"
		d.cancelURL = baseURL + "/orders"
	}
}

// WithBraintree enables gateway-B.
func WithBraintree(gateway BraintreeGateway) Option {
	return func(d *Dispatcher) {
		d.braintree = gateway
	}
}

func NewDispatcher(db *sql.DB, orders OrderReader, topUps TopUpStore, wallet Debiter, settler Settler,
	logger *slog.Logger, opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		db:       db,
		orders:   orders,
		topUps:   topUps,
		wallet:   wallet,
		settler:  settler,
		logger:   logger,
		sessions: telemetry.Counter("digimarket/payment", "payment_sessions", "Payment sessions opened by method"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// payableOrder loads an order the caller may pay now.
func (d *Dispatcher) payableOrder(ctx context.Context, orderID, callerID string) (*domain.Order, error) {
	order, err := d.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != callerID {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if order.Status != domain.OrderStatusPending {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, domain.ErrAlreadyProcessed)
	}
	return order, nil
}

// Pay starts paying an order. Wallet payments settle immediately; provider
// methods return a session and settle once the provider confirms.
func (d *Dispatcher) Pay(ctx context.Context, callerID, orderID string, method domain.PaymentMethod) (*Session, error) {
	order, err := d.payableOrder(ctx, orderID, callerID)
	if err != nil {
		return nil, err
	}

	if method == "" {
		method = order.PaymentMethod
	}
	if method != order.PaymentMethod {
		return nil, domain.Invalid("method", fmt.Sprintf("order %s is paid with %s", order.ID, order.PaymentMethod))
	}

	if method == domain.PaymentMethodWallet {
		return d.payFromWallet(ctx, order)
	}
	return d.open(ctx, method, settlement.OrderTag(order.ID), order.Total)
}

func (d *Dispatcher) payFromWallet(ctx context.Context, order *domain.Order) (*Session, error) {
	reference := ProviderWallet + ":" + uuid.NewString()
	tag := settlement.OrderTag(order.ID)
	total := order.Total

	var result *settlement.Result
	err := database.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		if total.IsPositive() {
			err := d.wallet.Debit(ctx, tx, order.BuyerID, total, "Payment for order "+order.ID, order.ID)
			if err != nil {
				return err
			}
		}

		var err error
		result, err = d.settler.SettleTx(ctx, tx, settlement.Confirmation{
			Provider:  ProviderWallet,
			Reference: reference,
			Tag:       tag,
			Amount:    &total,
		})
		if err != nil {
			return err
		}
		if result.AlreadySettled {
			// another payment won the order lock; undo this debit
			return fmt.Errorf("order %s: %w", order.ID, domain.ErrAlreadyProcessed)
		}
		return nil
	})
	if err != nil {
		d.logger.Warn("wallet payment failed", "error", err, "order_id", order.ID, "buyer_id", order.BuyerID)
		return nil, err
	}

	d.settler.Announce(ctx, result)
	d.count(ctx, domain.PaymentMethodWallet)

	return &Session{
		Method: domain.PaymentMethodWallet,
		Tag:    tag,
		Amount: total,
		Result: result,
	}, nil
}

func (d *Dispatcher) open(ctx context.Context, method domain.PaymentMethod, tag string, total decimal.Decimal) (*Session, error) {
	session := &Session{Method: method, Tag: tag, Amount: total}

	switch method {
	case domain.PaymentMethodPayPal:
		if d.paypal == nil {
			return nil, domain.Invalid("method", "gateway-A is not configured")
		}
		checkout, err := d.paypal.CreateOrder(ctx, tag, total, d.returnURL, d.cancelURL)
		if err != nil {
			return nil, err
		}
		session.SessionID = checkout.SessionID
		session.ApprovalURL = checkout.ApprovalURL

	case domain.PaymentMethodBraintree:
		if d.braintree == nil {
			return nil, domain.Invalid("method", "gateway-B is not configured")
		}
		token, err := d.braintree.ClientToken(ctx)
		if err != nil {
			return nil, err
		}
		session.ClientToken = token

	default:
		return nil, domain.Invalid("method", "unsupported payment method "+string(method))
	}

	d.count(ctx, method)
	d.logger.Info("payment session opened", "method", method, "tag", tag, "amount", total)
	return session, nil
}

// TopUp records a pending top-up and opens a provider session for it.
func (d *Dispatcher) TopUp(ctx context.Context, userID string, amount decimal.Decimal, method domain.PaymentMethod) (*Session, error) {
	topUp, err := d.topUps.Create(ctx, userID, amount, method)
	if err != nil {
		return nil, err
	}

	session, err := d.open(ctx, method, settlement.TopUpTag(topUp.ID), topUp.Amount)
	if err != nil {
		return nil, err
	}
	session.TopUp = topUp
	return session, nil
}

// CompletePayPal captures an approved PayPal order and settles it.
func (d *Dispatcher) CompletePayPal(ctx context.Context, paypalOrderID string) (*settlement.Result, error) {
	if d.paypal == nil {
		return nil, domain.Invalid("method", "gateway-A is not configured")
	}
	if paypalOrderID == "" {
		return nil, domain.Invalid("token", "is required")
	}

	c, err := d.paypal.Capture(ctx, paypalOrderID)
	if err != nil {
		return nil, err
	}
	return d.settler.Settle(ctx, *c)
}

// BraintreeCheckout is a nonce posted by the client for an order or a
// top-up it owns.
type BraintreeCheckout struct {
	OrderID string `json:"order_id,omitempty"`
	TopUpID string `json:"topup_id,omitempty"`
	Nonce   string `json:"nonce"`
}

// CheckoutBraintree charges the nonce and settles what it paid for.
func (d *Dispatcher) CheckoutBraintree(ctx context.Context, callerID string, req BraintreeCheckout) (*settlement.Result, error) {
	if d.braintree == nil {
		return nil, domain.Invalid("method", "gateway-B is not configured")
	}
	if req.Nonce == "" {
		return nil, domain.Invalid("nonce", "is required")
	}

	var (
		tag   string
		total decimal.Decimal
	)
	switch {
	case req.OrderID != "" && req.TopUpID == "":
		order, err := d.payableOrder(ctx, req.OrderID, callerID)
		if err != nil {
			return nil, err
		}
		if order.PaymentMethod != domain.PaymentMethodBraintree {
			return nil, domain.Invalid("order_id", fmt.Sprintf("order %s is paid with %s", order.ID, order.PaymentMethod))
		}
		tag, total = settlement.OrderTag(order.ID), order.Total

	case req.TopUpID != "" && req.OrderID == "":
		topUp, err := d.topUps.Get(ctx, req.TopUpID)
		if err != nil {
			return nil, err
		}
		if topUp.UserID != callerID {
			return nil, fmt.Errorf("top-up %s: %w", req.TopUpID, domain.ErrNotFound)
		}
		if topUp.Status != domain.TopUpPending {
			return nil, fmt.Errorf("top-up %s is %s: %w", topUp.ID, topUp.Status, domain.ErrAlreadyProcessed)
		}
		if topUp.Method != domain.PaymentMethodBraintree {
			return nil, domain.Invalid("topup_id", "top-up is not paid with gateway-B")
		}
		tag, total = settlement.TopUpTag(topUp.ID), topUp.Amount

	default:
		return nil, domain.Invalid("", "exactly one of order_id or topup_id is required")
	}

	c, err := d.braintree.Sale(ctx, req.Nonce, tag, total)
	if err != nil {
		return nil, err
	}
	return d.settler.Settle(ctx, *c)
}

// PayPalWebhook settles a verified PayPal delivery. Deliveries that confirm
// nothing return a nil result.
func (d *Dispatcher) PayPalWebhook(ctx context.Context, header http.Header, body []byte) (*settlement.Result, error) {
	if d.paypal == nil {
		return nil, domain.Invalid("provider", "gateway-A is not configured")
	}

	c, err := d.paypal.Webhook(ctx, header, body)
	if err != nil || c == nil {
		return nil, err
	}
	return d.settler.Settle(ctx, *c)
}

// BraintreeWebhook settles a verified Braintree delivery.
func (d *Dispatcher) BraintreeWebhook(ctx context.Context, signature, payload string) (*settlement.Result, error) {
	if d.braintree == nil {
		return nil, domain.Invalid("provider", "gateway-B is not configured")
	}

	c, err := d.braintree.Webhook(signature, payload)
	if err != nil || c == nil {
		return nil, err
	}
	return d.settler.Settle(ctx, *c)
}

func (d *Dispatcher) count(ctx context.Context, method domain.PaymentMethod) {
	d.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(method))))
}
