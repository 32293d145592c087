package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation                = errors.New("validation failed")
	ErrNotFound                  = errors.New("not found")
	ErrProductNotFound           = fmt.Errorf("product %w", ErrNotFound)
	ErrForbidden                 = errors.New("forbidden")
	ErrInsufficientFunds         = errors.New("insufficient funds")
	ErrCouponInvalid             = errors.New("coupon invalid")
	ErrCouponExhausted           = errors.New("coupon usage limit reached")
	ErrCouponAlreadyUsed         = errors.New("coupon already used")
	ErrAlreadyProcessed          = errors.New("already processed")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
)

// ValidationError describes a rejected input field. It matches ErrValidation
// with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// CouponError carries the reason a coupon was rejected while still matching
// the sentinel it wraps.
type CouponError struct {
	Kind   error
	Reason string
}

func (e *CouponError) Error() string {
	return e.Kind.Error() + ": " + e.Reason
}

func (e *CouponError) Unwrap() error {
	return e.Kind
}
