package email

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/digimarket/internal/domain"
)

func TestRenderKnowsEveryTemplate(t *testing.T) {
	templates := []string{
		domain.TemplateOrderConfirmation,
		domain.TemplateAdminNewOrder,
		domain.TemplateOrderCompleted,
		domain.TemplateVendorSale,
		domain.TemplateTopUpCompleted,
		domain.TemplatePayoutRequested,
		domain.TemplatePayoutProcessed,
	}
	for _, name := range templates {
		subject, body, err := render(name, map[string]string{"order_id": "order-1"})
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
			continue
		}
		if subject == "" || body == "" {
			t.Errorf("%s: expected subject and body, got %q / %q", name, subject, body)
		}
		if strings.Contains(subject+body, "<no value>") {
			t.Errorf("%s: missing keys leaked into output", name)
		}
	}
}

func TestRenderOrderCompleted(t *testing.T) {
	subject, body, err := render(domain.TemplateOrderCompleted, map[string]string{
		"order_id":     "order-42",
		"name":         "Ada",
		"total":        "80.00",
		"license_keys": "AAAA-BBBB",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if subject != "Your order order-42 is complete" {
		t.Errorf("unexpected subject %q", subject)
	}
	for _, want := range []string{"Hi Ada", "80.00", "AAAA-BBBB"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q, got %q", want, body)
		}
	}
}

func TestRenderPayoutNotesAreOptional(t *testing.T) {
	_, body, err := render(domain.TemplatePayoutProcessed, map[string]string{"amount": "50.00", "status": "completed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(body, "Notes") {
		t.Errorf("expected no notes line, got %q", body)
	}

	_, body, err = render(domain.TemplatePayoutProcessed, map[string]string{"amount": "50.00", "status": "rejected", "notes": "wrong iban"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "Notes: wrong iban") {
		t.Errorf("expected notes line, got %q", body)
	}
}

func TestHandleSend(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"known template", `{"template": "vendor_sale", "to": "vendor@example.com", "data": {"order_id": "o1", "amount": "80.00"}}`, http.StatusOK},
		{"unknown template", `{"template": "newsletter", "to": "vendor@example.com"}`, http.StatusBadRequest},
		{"missing recipient", `{"template": "vendor_sale"}`, http.StatusBadRequest},
		{"malformed body", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.HandleSend(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp sendResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != "sent" || resp.Subject != "You made a sale" {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}
}
