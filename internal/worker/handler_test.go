package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joao-fontenele/digimarket/internal/messaging"
)

func newHandler(t *testing.T, status int, got *sendRequest) *NotificationHandler {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/send" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return NewNotificationHandler(srv.URL, srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleRelaysNotification(t *testing.T) {
	var got sendRequest
	h := newHandler(t, http.StatusOK, &got)

	payload := `{"template": "vendor_sale", "to": "vendor@example.com", "data": {"order_id": "order-1", "amount": "80.00"}}`
	if err := h.Handle(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Template != "vendor_sale" || got.To != "vendor@example.com" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Data["amount"] != "80.00" {
		t.Errorf("expected data to be forwarded, got %v", got.Data)
	}
}

func TestHandleFailures(t *testing.T) {
	valid := `{"template": "vendor_sale", "to": "vendor@example.com"}`

	tests := []struct {
		name          string
		status        int
		payload       string
		wantPermanent bool
	}{
		{"malformed payload", http.StatusOK, `not json`, true},
		{"missing recipient", http.StatusOK, `{"template": "vendor_sale"}`, true},
		{"rejected by email service", http.StatusBadRequest, valid, true},
		{"email service unavailable", http.StatusServiceUnavailable, valid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(t, tt.status, nil)

			err := h.Handle(context.Background(), []byte(tt.payload))
			if err == nil {
				t.Fatal("expected an error")
			}

			var permanent *messaging.PermanentError
			if got := errors.As(err, &permanent); got != tt.wantPermanent {
				t.Errorf("expected permanent=%v, got %v (%v)", tt.wantPermanent, got, err)
			}
		})
	}
}
