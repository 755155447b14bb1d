package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrNoDebt              = errors.New("customer has no debt")
	ErrUnavailable         = errors.New("store unavailable")
	ErrForbidden           = errors.New("forbidden")

	// ErrCustomerRequired is a validation failure; errors.Is matches ErrInvalidInput too.
	ErrCustomerRequired = fmt.Errorf("%w: customer is required for this payment method", ErrInvalidInput)
)

type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s): requested %d, available %d", e.Name, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type InsufficientPaymentError struct {
	TotalCents int64
	PaidCents  int64
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: total %d, paid %d", e.TotalCents, e.PaidCents)
}

func (e *InsufficientPaymentError) Unwrap() error { return ErrInsufficientPayment }

// CreditLimitExceededError carries the limit and the debt magnitude the
// rejected adjustment would have produced.
type CreditLimitExceededError struct {
	AccountID    string
	LimitCents   int64
	WouldBeCents int64
}

func (e *CreditLimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded for %s: limit %d, would be %d", e.AccountID, e.LimitCents, e.WouldBeCents)
}

func (e *CreditLimitExceededError) Unwrap() error { return ErrCreditLimitExceeded }

// IsRetryable reports whether err is an infrastructure failure the caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Unavailable marks cause as a retryable infrastructure failure while keeping it in the chain.
func Unavailable(cause error) error {
	if cause == nil {
		return nil
	}
	return &unavailableError{cause: cause}
}

type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return ErrUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Unwrap() []error { return []error{ErrUnavailable, e.cause} }

// CheckCredit applies delta to balance and reports the resulting balance, or
// a *CreditLimitExceededError when the new debt would exceed limit.
func CheckCredit(accountID string, balance, limit, delta int64) (int64, error) {
	next := balance + delta
	if (delta > 0 && next < balance) || (delta < 0 && next > balance) {
		return balance, fmt.Errorf("%w: balance of %s is out of range", ErrInvalidInput, accountID)
	}
	if delta < 0 && next < 0 && -next > limit {
		return balance, &CreditLimitExceededError{AccountID: accountID, LimitCents: limit, WouldBeCents: -next}
	}
	return next, nil
}
