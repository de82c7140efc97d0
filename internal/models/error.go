package models

import (
	"errors"
	"fmt"
)

var (
	ErrDataNotFound        = errors.New("data not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrCartEmpty           = errors.New("cart is empty")
	ErrInvalidEmail        = errors.New("user email missing or malformed")
	ErrInsufficientStock   = errors.New("insufficient product stock")
	ErrInvalidWebhook      = errors.New("invalid webhook payload")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrTxRefMissing        = errors.New("transaction reference missing")
	ErrPaymentInit         = errors.New("payment initialization failed")
	ErrPaymentVerification = errors.New("payment verification failed")
	ErrPaymentNotPending   = errors.New("order payment is not pending")
)

// GatewayError is returned when the payment gateway is unreachable,
// answers with a non-2xx code or sends back a malformed payload.
type GatewayError struct {
	StatusCode int
	Op         string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chapa %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("chapa %s: unexpected status %d", e.Op, e.StatusCode)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewGatewayError creates gateway error for operation op
func NewGatewayError(op string, statusCode int, err error) *GatewayError {
	return &GatewayError{StatusCode: statusCode, Op: op, Err: err}
}
