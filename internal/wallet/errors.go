package wallet

import (
	"errors"
	"fmt"
)

var (
	// ErrSDKUnavailable is returned when no wallet SDK is present, e.g.
	// outside the Pi Browser.
	ErrSDKUnavailable = errors.New("pi sdk not detected")

	// ErrInvalidTransition is returned by Dispatch for an event the
	// current phase does not accept.
	ErrInvalidTransition = errors.New("invalid payment transition")

	// ErrAuthentication is returned when the wallet does not yield a username.
	ErrAuthentication = errors.New("wallet authentication failed")
)

// SDKError is a fault reported by the wallet SDK for a payment.
type SDKError struct {
	PaymentID string
	Err       error
}

func (e *SDKError) Error() string {
	if e.PaymentID == "" {
		return fmt.Sprintf("wallet sdk error: %v", e.Err)
	}
	return fmt.Sprintf("wallet sdk error for payment %s: %v", e.PaymentID, e.Err)
}

func (e *SDKError) Unwrap() error {
	return e.Err
}
