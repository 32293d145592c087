// Package respond writes JSON responses and maps domain errors to HTTP
// statuses for every market handler.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/digimarket/internal/domain"
)

func JSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func Message(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	JSON(w, logger, status, map[string]string{"error": message})
}

// Error maps err onto a status. Unclassified errors are logged and
// answered with a generic 500.
func Error(w http.ResponseWriter, logger *slog.Logger, err error) {
	var couponErr *domain.CouponError
	switch {
	case errors.As(err, &couponErr):
		JSON(w, logger, http.StatusBadRequest, map[string]string{
			"error": couponErr.Error(),
			"code":  couponCode(couponErr.Kind),
		})
	case errors.Is(err, domain.ErrCouponInvalid),
		errors.Is(err, domain.ErrCouponExhausted),
		errors.Is(err, domain.ErrCouponAlreadyUsed):
		JSON(w, logger, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
			"code":  couponCode(err),
		})
	case errors.Is(err, domain.ErrValidation):
		Message(w, logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		Message(w, logger, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		Message(w, logger, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrInsufficientFunds):
		Message(w, logger, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrAlreadyProcessed):
		Message(w, logger, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPaymentVerificationFailed):
		Message(w, logger, http.StatusUnauthorized, err.Error())
	default:
		logger.Error("request failed", "error", err)
		Message(w, logger, http.StatusInternalServerError, "internal server error")
	}
}

func couponCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrCouponExhausted):
		return "coupon_exhausted"
	case errors.Is(err, domain.ErrCouponAlreadyUsed):
		return "coupon_already_used"
	default:
		return "coupon_invalid"
	}
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Invalid("", "invalid request body")
	}
	return nil
}
