package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/respond"
)

type fakeService struct {
	created CreateRequest
	order   *domain.Order
	err     error
}

func (f *fakeService) Create(_ context.Context, req CreateRequest) (*domain.Order, error) {
	f.created = req
	return f.order, f.err
}

func (f *fakeService) Get(_ context.Context, id, callerID string, admin bool) (*domain.Order, error) {
	if f.order == nil || f.order.ID != id || (!admin && f.order.BuyerID != callerID) {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return f.order, nil
}

func (f *fakeService) List(_ context.Context, buyerID string, _, _ int) ([]domain.Order, error) {
	if f.order != nil && f.order.BuyerID == buyerID {
		return []domain.Order{*f.order}, nil
	}
	return []domain.Order{}, nil
}

func newMux(svc Service) *http.ServeMux {
	h := NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", h.HandleCreate)
	mux.HandleFunc("GET /orders", h.HandleList)
	mux.HandleFunc("GET /orders/{id}", h.HandleGet)
	return mux
}

func TestHandleCreate(t *testing.T) {
	svc := &fakeService{order: &domain.Order{
		ID:      "order-1",
		BuyerID: "buyer-1",
		Total:   d("80.00"),
		Status:  domain.OrderStatusPending,
	}}
	mux := newMux(svc)

	body := `{"product_ids": ["prod-icons"], "payment_method": "wallet", "coupon": "save20",
		"contact": {"name": "Ada", "email": "ada@example.com"},
		"billing_address": {"line1": "1 Main St", "city": "Berlin", "country": "DE"}}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set(respond.HeaderUserID, "buyer-1")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if svc.created.BuyerID != "buyer-1" {
		t.Errorf("expected buyer from identity header, got %q", svc.created.BuyerID)
	}
	if svc.created.Coupon != "save20" || svc.created.PaymentMethod != domain.PaymentMethodWallet {
		t.Errorf("request not decoded: %+v", svc.created)
	}

	var order domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !order.Total.Equal(d("80.00")) {
		t.Errorf("expected total 80.00, got %s", order.Total)
	}
}

func TestHandleCreateErrors(t *testing.T) {
	tests := []struct {
		name   string
		user   string
		body   string
		err    error
		status int
	}{
		{"anonymous", "", `{}`, nil, http.StatusForbidden},
		{"malformed body", "buyer-1", `{`, nil, http.StatusBadRequest},
		{"unknown product", "buyer-1", `{}`, fmt.Errorf("%w: nope", domain.ErrProductNotFound), http.StatusNotFound},
		{"coupon used", "buyer-1", `{}`, &domain.CouponError{Kind: domain.ErrCouponAlreadyUsed, Reason: "SAVE20"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(&fakeService{err: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(tt.body))
			if tt.user != "" {
				req.Header.Set(respond.HeaderUserID, tt.user)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleGetHidesOtherBuyersOrders(t *testing.T) {
	mux := newMux(&fakeService{order: &domain.Order{ID: "order-1", BuyerID: "buyer-1"}})

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1", nil)
	req.Header.Set(respond.HeaderUserID, "buyer-2")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	req.Header.Set(respond.HeaderUserRole, "admin")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin to read the order, got %d", rec.Code)
	}
}
