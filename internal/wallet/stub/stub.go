// Package stub provides a scripted wallet SDK for tests and demo mode.
package stub

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/wallet"
)

// Action is a scripted wallet reaction.
type Action int

const (
	// Approve reports the payment ready for server approval.
	Approve Action = iota
	// Complete reports the blockchain transaction confirmed.
	Complete
	// Cancel reports a user cancellation.
	Cancel
	// Fail reports an SDK fault.
	Fail
)

// Step is one scripted callback.
type Step struct {
	Action Action
	TxID   string
	Err    error
}

// DefaultScript approves and completes every payment.
var DefaultScript = []Step{{Action: Approve}, {Action: Complete}}

// SDK is a wallet.SDK whose behavior is fixed up front. Callbacks are
// delivered in script order on a separate goroutine, as the real wallet does.
type SDK struct {
	mu         sync.Mutex
	user       wallet.User
	authErr    error
	createErr  error
	incomplete []wallet.IncompletePayment
	script     []Step

	scopes  [][]wallet.Scope
	intents []domain.PaymentIntent
	wg      sync.WaitGroup
}

var _ wallet.SDK = (*SDK)(nil)

// Option configures the stub.
type Option func(*SDK)

// WithUser sets the authenticated user.
func WithUser(user wallet.User) Option {
	return func(s *SDK) { s.user = user }
}

// WithAuthError makes Authenticate fail.
func WithAuthError(err error) Option {
	return func(s *SDK) { s.authErr = err }
}

// WithCreateError makes CreatePayment fail before any callback.
func WithCreateError(err error) Option {
	return func(s *SDK) { s.createErr = err }
}

// WithIncompletePayments reports payments as unfinished on Authenticate.
func WithIncompletePayments(p ...wallet.IncompletePayment) Option {
	return func(s *SDK) { s.incomplete = append(s.incomplete, p...) }
}

// WithScript sets the callbacks delivered for each payment.
func WithScript(steps ...Step) Option {
	return func(s *SDK) { s.script = steps }
}

// New creates a stub SDK. Without options it authenticates "pioneer" and
// runs DefaultScript.
func New(opts ...Option) *SDK {
	s := &SDK{
		user:   wallet.User{UID: uuid.NewString(), Username: "pioneer"},
		script: DefaultScript,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate implements wallet.SDK.
func (s *SDK) Authenticate(ctx context.Context, scopes []wallet.Scope, onIncomplete func(wallet.IncompletePayment)) (wallet.AuthResult, error) {
	s.mu.Lock()
	s.scopes = append(s.scopes, append([]wallet.Scope(nil), scopes...))
	user, authErr, incomplete := s.user, s.authErr, s.incomplete
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return wallet.AuthResult{}, err
	}
	for _, p := range incomplete {
		onIncomplete(p)
	}
	if authErr != nil {
		return wallet.AuthResult{}, authErr
	}
	return wallet.AuthResult{AccessToken: uuid.NewString(), User: user}, nil
}

// CreatePayment implements wallet.SDK.
func (s *SDK) CreatePayment(ctx context.Context, intent domain.PaymentIntent, cb wallet.Callbacks) error {
	s.mu.Lock()
	s.intents = append(s.intents, intent)
	createErr, script := s.createErr, s.script
	s.mu.Unlock()

	if createErr != nil {
		return createErr
	}

	paymentID := "stub_" + uuid.NewString()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, step := range script {
			switch step.Action {
			case Approve:
				cb.OnReadyForServerApproval(paymentID)
			case Complete:
				txID := step.TxID
				if txID == "" {
					txID = "tx_" + uuid.NewString()
				}
				cb.OnReadyForServerCompletion(paymentID, txID)
			case Cancel:
				cb.OnCancel(paymentID)
			case Fail:
				cb.OnError(step.Err, paymentID)
			}
		}
	}()
	return nil
}

// Wait blocks until every scripted callback has been delivered.
func (s *SDK) Wait() {
	s.wg.Wait()
}

// Intents returns the intents submitted so far.
func (s *SDK) Intents() []domain.PaymentIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PaymentIntent(nil), s.intents...)
}

// AuthScopes returns the scopes requested by each Authenticate call.
func (s *SDK) AuthScopes() [][]wallet.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]wallet.Scope(nil), s.scopes...)
}
