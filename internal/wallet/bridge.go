package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/observability"
)

// ApprovalFunc records a wallet-approved payment with the backend. It runs
// inside the approval callback, so it must answer promptly.
type ApprovalFunc func(ctx context.Context, paymentID string) error

// Observer receives every accepted payment transition.
type Observer func(Transition)

// Bridge exposes the wallet SDK as two request/response operations.
type Bridge struct {
	sdk          SDK
	logger       *zap.Logger
	observer     Observer
	onIncomplete func(IncompletePayment)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger.Named("wallet")
	}
}

// WithObserver sets the transition observer.
func WithObserver(obs Observer) Option {
	return func(b *Bridge) {
		b.observer = obs
	}
}

// WithIncompletePaymentHandler sets the handler for incomplete prior
// payments reported on authentication. It runs on its own goroutine.
func WithIncompletePaymentHandler(fn func(IncompletePayment)) Option {
	return func(b *Bridge) {
		b.onIncomplete = fn
	}
}

// NewBridge creates a bridge over sdk. A nil sdk makes every operation
// fail with ErrSDKUnavailable.
func NewBridge(sdk SDK, opts ...Option) *Bridge {
	b := &Bridge{
		sdk:    sdk,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Available reports whether a wallet SDK is present.
func (b *Bridge) Available() bool {
	return b.sdk != nil
}

// Authenticate signs the Pioneer in with RequiredScopes.
// An invalid wallet address is dropped with a warning.
func (b *Bridge) Authenticate(ctx context.Context) (domain.Identity, error) {
	if b.sdk == nil {
		observability.RecordAuthentication("unavailable")
		return domain.Identity{}, ErrSDKUnavailable
	}

	res, err := b.sdk.Authenticate(ctx, RequiredScopes, b.handleIncomplete)
	if err != nil {
		observability.RecordAuthentication("error")
		if errors.Is(err, ErrSDKUnavailable) {
			return domain.Identity{}, err
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if res.User.Username == "" {
		observability.RecordAuthentication("error")
		return domain.Identity{}, fmt.Errorf("%w: wallet returned no username", ErrAuthentication)
	}

	identity := domain.Identity{
		Username: res.User.Username,
		UID:      res.User.UID,
	}
	if addr := res.User.WalletAddress; addr != "" {
		if err := domain.ValidateWalletAddress(addr); err != nil {
			b.logger.Warn("dropping invalid wallet address",
				zap.String("username", identity.Username),
				zap.Error(err))
		} else {
			identity.WalletAddress = addr
		}
	}

	observability.RecordAuthentication("success")
	b.logger.Info("pioneer authenticated", zap.String("username", identity.Username))
	return identity, nil
}

func (b *Bridge) handleIncomplete(p IncompletePayment) {
	observability.RecordIncompletePayment()
	b.logger.Warn("incomplete payment found",
		zap.String("payment_id", p.Identifier),
		zap.String("txid", p.TxID))
	if b.onIncomplete != nil {
		go b.onIncomplete(p)
	}
}

// CreateInvestmentPayment submits an investment of amount and follows it to
// a terminal phase. approve is invoked synchronously when the wallet is
// ready for server approval, on a context that outlives ctx.
//
// Returns nil on completion and on user cancellation (check Phase), an
// *SDKError for wallet faults, and the approval error (a ledger sync
// failure) when approve fails. If ctx ends first the payment is returned
// with ctx.Err() and keeps following its callbacks.
func (b *Bridge) CreateInvestmentPayment(ctx context.Context, amount decimal.Decimal, approve ApprovalFunc) (*Payment, error) {
	intent, err := domain.NewInvestmentIntent(amount)
	if err != nil {
		return nil, err
	}
	if b.sdk == nil {
		return nil, ErrSDKUnavailable
	}

	p := NewPayment(intent)
	b.notify(Transition{To: PhaseInitiated, Amount: intent.Amount, At: p.now()})

	approveCtx := context.WithoutCancel(ctx)
	cb := Callbacks{
		OnReadyForServerApproval: func(paymentID string) {
			if !b.dispatch(p, Event{Kind: EventReadyForServerApproval, PaymentID: paymentID}) {
				return
			}
			if err := approve(approveCtx, paymentID); err != nil {
				b.dispatch(p, Event{Kind: EventApprovalFailed, PaymentID: paymentID, Err: err})
				return
			}
			b.dispatch(p, Event{Kind: EventApproved, PaymentID: paymentID})
		},
		OnReadyForServerCompletion: func(paymentID, txID string) {
			b.dispatch(p, Event{Kind: EventReadyForServerCompletion, PaymentID: paymentID, TxID: txID})
		},
		OnCancel: func(paymentID string) {
			b.dispatch(p, Event{Kind: EventCancel, PaymentID: paymentID})
		},
		OnError: func(err error, paymentID string) {
			b.dispatch(p, Event{Kind: EventError, PaymentID: paymentID, Err: &SDKError{PaymentID: paymentID, Err: err}})
		},
	}

	if err := b.sdk.CreatePayment(ctx, intent, cb); err != nil {
		b.dispatch(p, Event{Kind: EventError, Err: &SDKError{Err: err}})
		return p, p.Err()
	}

	select {
	case <-p.Done():
	case <-ctx.Done():
		return p, ctx.Err()
	}

	if p.Phase() == PhaseErrored {
		return p, p.Err()
	}
	return p, nil
}

// dispatch applies ev and reports whether it was accepted.
func (b *Bridge) dispatch(p *Payment, ev Event) bool {
	t, err := p.Dispatch(ev)
	if err != nil {
		b.logger.Warn("ignoring payment event",
			zap.String("payment_id", ev.PaymentID),
			zap.String("event", string(ev.Kind)),
			zap.String("txid", ev.TxID),
			zap.Error(err))
		return false
	}

	fields := []zap.Field{
		zap.String("payment_id", t.PaymentID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
	}
	if t.TxID != "" {
		fields = append(fields, zap.String("txid", t.TxID))
	}
	if t.Err != nil {
		fields = append(fields, zap.Error(t.Err))
		b.logger.Warn("payment transition", fields...)
	} else {
		b.logger.Info("payment transition", fields...)
	}

	b.notify(t)
	return true
}

func (b *Bridge) notify(t Transition) {
	observability.RecordPaymentTransition(string(t.To))
	if b.observer != nil {
		b.observer(t)
	}
}
