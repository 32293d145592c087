package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joao-fontenele/digimarket/internal/domain"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", domain.Invalid("email", "is required"), http.StatusBadRequest, ""},
		{"product not found", fmt.Errorf("%w: p-1", domain.ErrProductNotFound), http.StatusNotFound, ""},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, ""},
		{"insufficient funds", fmt.Errorf("debit: %w", domain.ErrInsufficientFunds), http.StatusPaymentRequired, ""},
		{"already processed", domain.ErrAlreadyProcessed, http.StatusConflict, ""},
		{"verification", domain.ErrPaymentVerificationFailed, http.StatusUnauthorized, ""},
		{"coupon used", &domain.CouponError{Kind: domain.ErrCouponAlreadyUsed, Reason: "SAVE20"}, http.StatusBadRequest, "coupon_already_used"},
		{"coupon exhausted", domain.ErrCouponExhausted, http.StatusBadRequest, "coupon_exhausted"},
		{"coupon invalid", &domain.CouponError{Kind: domain.ErrCouponInvalid, Reason: "expired"}, http.StatusBadRequest, "coupon_invalid"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, slog.Default(), tt.err)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["code"] != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, body["code"])
			}
			if tt.status == http.StatusInternalServerError && body["error"] != "internal server error" {
				t.Errorf("expected generic message, got %q", body["error"])
			}
		})
	}
}

func TestCallerFrom(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	if _, err := CallerFrom(req); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden without user id, got %v", err)
	}

	req.Header.Set(HeaderUserID, "u-1")
	req.Header.Set(HeaderUserRole, "root")
	caller, err := CallerFrom(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.Role != RoleBuyer {
		t.Errorf("expected unknown role to fall back to buyer, got %s", caller.Role)
	}

	if _, err := Require(req, RoleAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected buyer to be rejected for admin route, got %v", err)
	}

	req.Header.Set(HeaderUserRole, "admin")
	caller, err = Require(req, RoleAdmin)
	if err != nil || !caller.Admin() {
		t.Errorf("expected admin caller, got %+v, %v", caller, err)
	}
}

func TestPage(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
		valid  bool
	}{
		{"", 20, 0, true},
		{"limit=5&offset=10", 5, 10, true},
		{"limit=1000", 100, 0, true},
		{"limit=0", 0, 0, false},
		{"offset=-1", 0, 0, false},
		{"limit=abc", 0, 0, false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/orders?"+tt.query, nil)
		limit, offset, err := Page(req)
		if tt.valid != (err == nil) {
			t.Fatalf("%q: unexpected error state: %v", tt.query, err)
		}
		if limit != tt.limit || offset != tt.offset {
			t.Errorf("%q: expected %d/%d, got %d/%d", tt.query, tt.limit, tt.offset, limit, offset)
		}
	}
}
