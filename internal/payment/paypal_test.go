package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/config"
	"github.com/joao-fontenele/digimarket/internal/domain"
)

type fakePayPalAPI struct {
	verification string
	captured     bool
	lastCreate   map[string]any
	lastVerify   map[string]json.RawMessage
}

func (f *fakePayPalAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client" || secret != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant type %q", r.PostForm.Get("grant_type"))
		}
		_, _ = io.WriteString(w, `{"access_token": "token-1"}`)
	})

	authorized := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer token-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("POST /v2/checkout/orders", authorized(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.lastCreate)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": "PP-1", "status": "CREATED", "links": [
			{"rel": "self", "href": "https://api.example/v2/checkout/orders/PP-1"},
			{"rel": "approve", "href": "https://paypal.example/checkoutnow?token=PP-1"}]}`)
	}))

	captured := `{"id": "PP-1", "status": "COMPLETED", "purchase_units": [{"payments": {"captures": [
		{"id": "CAP-1", "status": "COMPLETED", "custom_id": "order:o-1",
		 "amount": {"currency_code": "USD", "value": "80.00"}}]}}]}`

	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", authorized(func(w http.ResponseWriter, r *http.Request) {
		if f.captured {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"name": "UNPROCESSABLE_ENTITY", "details": [{"issue": "ORDER_ALREADY_CAPTURED"}]}`)
			return
		}
		f.captured = true
		_, _ = io.WriteString(w, captured)
	}))

	mux.HandleFunc("GET /v2/checkout/orders/{id}", authorized(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, captured)
	}))

	mux.HandleFunc("POST /v1/notifications/verify-webhook-signature", authorized(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.lastVerify)
		_, _ = io.WriteString(w, `{"verification_status": "`+f.verification+`"}`)
	}))

	return mux
}

func newTestPayPal(t *testing.T, api *fakePayPalAPI) *PayPal {
	t.Helper()

	server := httptest.NewServer(api.handler(t))
	t.Cleanup(server.Close)

	return NewPayPal(config.Paypal{
		BaseApiURL:   server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		WebhookID:    "WH-CONFIG",
	}, "USD", server.Client())
}

func TestPayPalCreateOrder(t *testing.T) {
	api := &fakePayPalAPI{}
	pp := newTestPayPal(t, api)

	checkout, err := pp.CreateOrder(context.Background(), "order:o-1", decimal.RequireFromString("80"), "https://market/return", "https://market/orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if checkout.SessionID != "PP-1" {
		t.Errorf("expected session PP-1, got %q", checkout.SessionID)
	}
	if checkout.ApprovalURL != "https://paypal.example/checkoutnow?token=PP-1" {
		t.Errorf("unexpected approval url %q", checkout.ApprovalURL)
	}

	if api.lastCreate["intent"] != "CAPTURE" {
		t.Errorf("expected CAPTURE intent, got %v", api.lastCreate["intent"])
	}
	units := api.lastCreate["purchase_units"].([]any)
	unit := units[0].(map[string]any)
	if unit["custom_id"] != "order:o-1" {
		t.Errorf("expected tag in custom_id, got %v", unit["custom_id"])
	}
	if value := unit["amount"].(map[string]any)["value"]; value != "80.00" {
		t.Errorf("expected amount 80.00, got %v", value)
	}
}

func TestPayPalCapture(t *testing.T) {
	api := &fakePayPalAPI{}
	pp := newTestPayPal(t, api)

	for _, attempt := range []string{"first", "already captured"} {
		c, err := pp.Capture(context.Background(), "PP-1")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", attempt, err)
		}
		if c.Tag != "order:o-1" || c.Reference != "CAP-1" || c.Provider != ProviderPayPal {
			t.Errorf("%s: unexpected confirmation %+v", attempt, c)
		}
		if c.Amount == nil || !c.Amount.Equal(decimal.RequireFromString("80")) {
			t.Errorf("%s: unexpected amount %v", attempt, c.Amount)
		}
	}
}

func TestPayPalWebhook(t *testing.T) {
	event := `{"id": "WH-EVT-1", "event_type": "PAYMENT.CAPTURE.COMPLETED", "resource": {
		"id": "CAP-9", "status": "COMPLETED", "custom_id": "topup:t-1",
		"amount": {"currency_code": "USD", "value": "25.00"}}}`

	header := http.Header{}
	header.Set("PAYPAL-TRANSMISSION-ID", "tx-1")
	header.Set("PAYPAL-TRANSMISSION-SIG", "sig")

	t.Run("verified capture", func(t *testing.T) {
		api := &fakePayPalAPI{verification: "SUCCESS"}
		pp := newTestPayPal(t, api)

		c, err := pp.Webhook(context.Background(), header, []byte(event))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.EventID != "WH-EVT-1" || c.Tag != "topup:t-1" || c.Reference != "CAP-9" {
			t.Errorf("unexpected confirmation %+v", c)
		}

		if string(api.lastVerify["webhook_id"]) != `"WH-CONFIG"` {
			t.Errorf("expected configured webhook id, got %s", api.lastVerify["webhook_id"])
		}
		if string(api.lastVerify["transmission_id"]) != `"tx-1"` {
			t.Errorf("expected transmission id from headers, got %s", api.lastVerify["transmission_id"])
		}
		if !strings.Contains(string(api.lastVerify["webhook_event"]), "WH-EVT-1") {
			t.Errorf("expected raw event to be forwarded, got %s", api.lastVerify["webhook_event"])
		}
	})

	t.Run("failed signature", func(t *testing.T) {
		pp := newTestPayPal(t, &fakePayPalAPI{verification: "FAILURE"})

		_, err := pp.Webhook(context.Background(), header, []byte(event))
		if !errors.Is(err, domain.ErrPaymentVerificationFailed) {
			t.Fatalf("expected verification failure, got %v", err)
		}
	})

	t.Run("other events are ignored", func(t *testing.T) {
		pp := newTestPayPal(t, &fakePayPalAPI{verification: "SUCCESS"})

		c, err := pp.Webhook(context.Background(), header, []byte(`{"id": "WH-2", "event_type": "CHECKOUT.ORDER.APPROVED", "resource": {}}`))
		if err != nil || c != nil {
			t.Fatalf("expected nothing to settle, got %+v, %v", c, err)
		}
	})

	t.Run("incomplete capture", func(t *testing.T) {
		pp := newTestPayPal(t, &fakePayPalAPI{verification: "SUCCESS"})

		pending := strings.Replace(event, `"status": "COMPLETED"`, `"status": "PENDING"`, 1)
		_, err := pp.Webhook(context.Background(), header, []byte(pending))
		if !errors.Is(err, domain.ErrPaymentVerificationFailed) {
			t.Fatalf("expected verification failure, got %v", err)
		}
	})
}
