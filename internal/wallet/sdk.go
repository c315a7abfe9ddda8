// Package wallet wraps the Pi wallet SDK. Authentication returns a Pioneer
// identity; investment payments are driven through an explicit state
// machine, one Dispatch per SDK callback.
package wallet

import (
	"context"

	"mapcap-ipo/internal/domain"
)

// Scope is a permission requested from the wallet on authentication.
type Scope string

const (
	ScopeUsername      Scope = "username"
	ScopePayments      Scope = "payments"
	ScopeWalletAddress Scope = "wallet_address"
)

// RequiredScopes is the fixed scope set requested on every authentication.
var RequiredScopes = []Scope{ScopeUsername, ScopePayments, ScopeWalletAddress}

// User is the Pioneer as reported by the wallet.
type User struct {
	UID           string `json:"uid"`
	Username      string `json:"username"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// AuthResult is returned by a successful wallet authentication.
type AuthResult struct {
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}

// IncompletePayment is a prior payment the wallet reports as unfinished.
type IncompletePayment struct {
	Identifier string `json:"identifier"`
	Amount     string `json:"amount,omitempty"`
	TxID       string `json:"txid,omitempty"`
}

// Callbacks receive the phases of a payment from the SDK. Callbacks for a
// single payment are invoked in order and never concurrently.
type Callbacks struct {
	OnReadyForServerApproval   func(paymentID string)
	OnReadyForServerCompletion func(paymentID, txID string)
	OnCancel                   func(paymentID string)
	OnError                    func(err error, paymentID string)
}

// SDK is the external wallet.
type SDK interface {
	// Authenticate asks the Pioneer to sign in. onIncompletePayment is
	// called for each unfinished prior payment and must not block.
	Authenticate(ctx context.Context, scopes []Scope, onIncompletePayment func(IncompletePayment)) (AuthResult, error)

	// CreatePayment submits intent. It returns once the payment has been
	// handed to the wallet; progress is reported through cb.
	CreatePayment(ctx context.Context, intent domain.PaymentIntent, cb Callbacks) error
}
