package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/telemetry"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memOrders struct {
	orders map[string]*domain.Order
}

func (m *memOrders) GetForUpdate(_ context.Context, _ database.Querier, id string) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) MarkCompleted(_ context.Context, _ database.Querier, id, reference string, _ time.Time) error {
	o := m.orders[id]
	if o.Status == domain.OrderStatusCompleted {
		return domain.ErrAlreadyProcessed
	}
	o.Status = domain.OrderStatusCompleted
	o.PaymentReference = reference
	return nil
}

type memTopUps struct {
	topUps map[string]*domain.TopUp
}

func (m *memTopUps) GetForUpdate(_ context.Context, _ database.Querier, id string) (*domain.TopUp, error) {
	t, ok := m.topUps[id]
	if !ok {
		return nil, fmt.Errorf("top-up %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *memTopUps) MarkSuccess(_ context.Context, _ database.Querier, id, reference string, _ time.Time) error {
	t := m.topUps[id]
	if t.Status == domain.TopUpSuccess {
		return domain.ErrAlreadyProcessed
	}
	t.Status = domain.TopUpSuccess
	t.PaymentReference = reference
	return nil
}

type memCatalog struct {
	products  map[string]domain.Product
	downloads map[string]int
}

func (m *memCatalog) ProductsTx(_ context.Context, _ database.Querier, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product)
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *memCatalog) IncrementDownloads(_ context.Context, _ database.Querier, productID string) error {
	m.downloads[productID]++
	return nil
}

func (m *memCatalog) Email(_ context.Context, userID string) (string, error) {
	return userID + "@example.com", nil
}

type memIssuer struct {
	issued []domain.License
	fail   string
}

func (m *memIssuer) Issue(_ context.Context, _ database.Querier, order *domain.Order, product domain.Product, now time.Time) (*domain.License, error) {
	if product.ID == m.fail {
		return nil, errors.New("issuer unavailable")
	}
	l := domain.License{
		ID:             fmt.Sprintf("lic-%d", len(m.issued)+1),
		BuyerID:        order.BuyerID,
		ProductID:      product.ID,
		OrderID:        order.ID,
		Key:            fmt.Sprintf("KEY-%d", len(m.issued)+1),
		Status:         domain.LicenseActive,
		MaxActivations: product.MaxActivations,
		CreatedAt:      now,
	}
	if product.LicenseDays != nil {
		expires := now.AddDate(0, 0, *product.LicenseDays)
		l.ExpiresAt = &expires
	}
	m.issued = append(m.issued, l)
	return &l, nil
}

type credit struct {
	user      string
	amount    decimal.Decimal
	reference string
}

type memLedger struct {
	credits []credit
}

func (m *memLedger) Credit(_ context.Context, _ database.Querier, userID string, amount decimal.Decimal, _, reference string) error {
	m.credits = append(m.credits, credit{user: userID, amount: amount, reference: reference})
	return nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (r *recordingSender) Send(_ context.Context, n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

type fixture struct {
	engine  *Engine
	orders  *memOrders
	topUps  *memTopUps
	catalog *memCatalog
	issuer  *memIssuer
	ledger  *memLedger
	sender  *recordingSender
}

func newFixture() *fixture {
	days := 365
	f := &fixture{
		orders: &memOrders{orders: map[string]*domain.Order{
			"order-1": {
				ID:      "order-1",
				BuyerID: "buyer-1",
				Items: []domain.OrderItem{
					{ProductID: "prod-theme", VendorID: "vendor-2", Price: d("59.00"), PlatformFee: d("8.85"), VendorEarning: d("50.15")},
					{ProductID: "prod-icons", VendorID: "vendor-1", Price: d("100.00"), PlatformFee: d("20.00"), VendorEarning: d("80.00")},
					{ProductID: "prod-fonts", VendorID: "vendor-1", Price: d("29.99"), PlatformFee: d("6.00"), VendorEarning: d("23.99")},
				},
				Subtotal: d("188.99"),
				Discount: d("20.00"),
				Total:    d("168.99"),
				Status:   domain.OrderStatusPending,
				Contact:  domain.Contact{Name: "Ada", Email: "ada@example.com"},
			},
		}},
		topUps: &memTopUps{topUps: map[string]*domain.TopUp{
			"topup-1": {ID: "topup-1", UserID: "buyer-1", Amount: d("25.00"), Status: domain.TopUpPending},
		}},
		catalog: &memCatalog{
			products: map[string]domain.Product{
				"prod-icons": {ID: "prod-icons", VendorID: "vendor-1", MaxActivations: 3},
				"prod-fonts": {ID: "prod-fonts", VendorID: "vendor-1", MaxActivations: 1, LicenseDays: &days},
			},
			downloads: map[string]int{},
		},
		issuer: &memIssuer{},
		ledger: &memLedger{},
		sender: &recordingSender{},
	}

	f.engine = &Engine{
		orders:      f.orders,
		topUps:      f.topUps,
		catalog:     f.catalog,
		licenses:    f.issuer,
		ledger:      f.ledger,
		events:      NewEventLog(),
		notifier:    f.sender,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) },
		settlements: telemetry.Counter("test", "settlements", ""),
	}
	return f
}

func TestSettleOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	result, err := f.engine.SettleTx(ctx, nil, Confirmation{Provider: "paypal", Reference: "CAPTURE-1", Tag: OrderTag("order-1")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.engine.Announce(ctx, result)

	if result.AlreadySettled {
		t.Fatal("expected a fresh settlement")
	}
	if got := f.orders.orders["order-1"]; got.Status != domain.OrderStatusCompleted || got.PaymentReference != "CAPTURE-1" {
		t.Errorf("order not completed: %+v", got)
	}

	if len(f.issuer.issued) != 3 {
		t.Fatalf("expected one license per item, got %d", len(f.issuer.issued))
	}
	if f.issuer.issued[0].MaxActivations != 1 {
		t.Errorf("expected delisted product to default to 1 activation, got %d", f.issuer.issued[0].MaxActivations)
	}
	if f.issuer.issued[1].MaxActivations != 3 {
		t.Errorf("expected product activations to carry over, got %d", f.issuer.issued[1].MaxActivations)
	}
	if f.issuer.issued[2].ExpiresAt == nil {
		t.Error("expected time-limited product to yield an expiring license")
	}
	if f.catalog.downloads["prod-icons"] != 1 || f.catalog.downloads["prod-theme"] != 1 {
		t.Errorf("expected download counters per item, got %v", f.catalog.downloads)
	}

	if len(f.ledger.credits) != 2 {
		t.Fatalf("expected one credit per vendor, got %d", len(f.ledger.credits))
	}
	want := []credit{
		{user: "vendor-1", amount: d("103.99"), reference: "order-1"},
		{user: "vendor-2", amount: d("50.15"), reference: "order-1"},
	}
	for i, w := range want {
		got := f.ledger.credits[i]
		if got.user != w.user || !got.amount.Equal(w.amount) || got.reference != w.reference {
			t.Errorf("credit %d: expected %+v, got %+v", i, w, got)
		}
	}

	templates := map[string]int{}
	for _, n := range f.sender.sent {
		templates[n.Template]++
	}
	if templates[domain.TemplateOrderCompleted] != 1 || templates[domain.TemplateVendorSale] != 2 {
		t.Errorf("unexpected notifications: %v", templates)
	}
}

func TestSettleOrderTwiceIsNoop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := Confirmation{Provider: "braintree", Reference: "txn-1", Tag: OrderTag("order-1")}

	if _, err := f.engine.SettleTx(ctx, nil, c); err != nil {
		t.Fatalf("first settlement failed: %v", err)
	}

	result, err := f.engine.SettleTx(ctx, nil, c)
	if err != nil {
		t.Fatalf("duplicate settlement must not fail: %v", err)
	}
	f.engine.Announce(ctx, result)

	if !result.AlreadySettled {
		t.Error("expected duplicate to report already settled")
	}
	if len(f.issuer.issued) != 3 {
		t.Errorf("expected no additional licenses, got %d", len(f.issuer.issued))
	}
	if len(f.ledger.credits) != 2 {
		t.Errorf("expected no additional credits, got %d", len(f.ledger.credits))
	}
	if len(f.sender.sent) != 0 {
		t.Errorf("expected no notifications for a duplicate, got %d", len(f.sender.sent))
	}
}

func TestSettleOrderErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture()
		_, err := f.engine.SettleTx(ctx, nil, Confirmation{Tag: OrderTag("missing")})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("amount mismatch", func(t *testing.T) {
		f := newFixture()
		paid := d("1.00")
		_, err := f.engine.SettleTx(ctx, nil, Confirmation{Tag: OrderTag("order-1"), Amount: &paid})
		if !errors.Is(err, domain.ErrPaymentVerificationFailed) {
			t.Fatalf("expected verification failure, got %v", err)
		}
		if f.orders.orders["order-1"].Status != domain.OrderStatusPending {
			t.Error("order must stay pending")
		}
	})

	t.Run("issuer failure stops before crediting", func(t *testing.T) {
		f := newFixture()
		f.issuer.fail = "prod-icons"
		_, err := f.engine.SettleTx(ctx, nil, Confirmation{Tag: OrderTag("order-1")})
		if err == nil {
			t.Fatal("expected error")
		}
		if len(f.ledger.credits) != 0 {
			t.Errorf("expected no credits after a failed issue, got %d", len(f.ledger.credits))
		}
	})

	t.Run("malformed tag", func(t *testing.T) {
		f := newFixture()
		_, err := f.engine.SettleTx(ctx, nil, Confirmation{Tag: "invoice:1"})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestSettleTopUp(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := Confirmation{Provider: "paypal", Reference: "CAPTURE-9", Tag: TopUpTag("topup-1")}

	result, err := f.engine.SettleTx(ctx, nil, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.engine.Announce(ctx, result)

	if f.topUps.topUps["topup-1"].Status != domain.TopUpSuccess {
		t.Error("expected top-up to succeed")
	}
	if len(f.ledger.credits) != 1 || f.ledger.credits[0].user != "buyer-1" || !f.ledger.credits[0].amount.Equal(d("25.00")) {
		t.Fatalf("expected buyer credited 25.00, got %+v", f.ledger.credits)
	}
	if len(f.issuer.issued) != 0 {
		t.Error("top-ups must not issue licenses")
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].Template != domain.TemplateTopUpCompleted {
		t.Errorf("expected top-up notification, got %+v", f.sender.sent)
	}

	again, err := f.engine.SettleTx(ctx, nil, c)
	if err != nil {
		t.Fatalf("duplicate top-up must not fail: %v", err)
	}
	if !again.AlreadySettled || len(f.ledger.credits) != 1 {
		t.Errorf("expected duplicate top-up to be a no-op, credits=%d", len(f.ledger.credits))
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		tag  string
		kind Kind
		id   string
		ok   bool
	}{
		{"order:abc", KindOrder, "abc", true},
		{"topup:t-1", KindTopUp, "t-1", true},
		{"order:", "", "", false},
		{"abc", "", "", false},
		{"refund:1", "", "", false},
	}

	for _, tt := range tests {
		kind, id, err := ParseTag(tt.tag)
		if tt.ok != (err == nil) {
			t.Fatalf("%q: unexpected error state %v", tt.tag, err)
		}
		if kind != tt.kind || id != tt.id {
			t.Errorf("%q: expected %s/%s, got %s/%s", tt.tag, tt.kind, tt.id, kind, id)
		}
	}
}
