package dashboard

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/mapcap"
	"mapcap-ipo/internal/session"
	"mapcap-ipo/internal/view"
	"mapcap-ipo/internal/wallet"
)

// Wallet is the wallet bridge as seen by the controller.
type Wallet interface {
	Available() bool
	Authenticate(ctx context.Context) (domain.Identity, error)
	CreateInvestmentPayment(ctx context.Context, amount decimal.Decimal, approve wallet.ApprovalFunc) (*wallet.Payment, error)
}

// Backend is the MapCap backend API.
type Backend interface {
	TryFetchMetrics(ctx context.Context, identity domain.Identity) (domain.MetricsSnapshot, error)
	ReportPayment(ctx context.Context, paymentID string, identity domain.Identity, amount decimal.Decimal) error
	RequestWithdraw(ctx context.Context, req domain.WithdrawalRequest) (mapcap.WithdrawAck, error)
}

var (
	_ Wallet  = (*wallet.Bridge)(nil)
	_ Backend = (*mapcap.HTTPClient)(nil)
)

// IdentityFollower is told when the Pioneer changes, typically a poller.
type IdentityFollower interface {
	SetIdentity(identity domain.Identity)
}

// Controller turns user actions into wallet and backend calls. Intents are
// validated before any external call.
type Controller struct {
	wallet   Wallet
	backend  Backend
	store    *session.Store
	follower IdentityFollower
	logger   *zap.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger.Named("controller")
	}
}

// WithFollower hands identity changes to f, which then owns fetching
// metrics for the new Pioneer.
func WithFollower(f IdentityFollower) ControllerOption {
	return func(c *Controller) {
		c.follower = f
	}
}

// NewController creates a controller for one session.
func NewController(w Wallet, backend Backend, store *session.Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		wallet:  w,
		backend: backend,
		store:   store,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate signs the Pioneer in through the wallet and loads their metrics.
func (c *Controller) Authenticate(ctx context.Context) (domain.Identity, error) {
	identity, err := c.wallet.Authenticate(ctx)
	if err != nil {
		return domain.Identity{}, err
	}
	if err := c.store.SetIdentity(ctx, identity); err != nil {
		// The identity is set; only the cache write failed.
		c.logger.Warn("identity not cached", zap.Error(err))
	}
	if c.follower != nil {
		c.follower.SetIdentity(identity)
		return identity, nil
	}
	if err := c.store.Refresh(ctx, ""); err != nil {
		c.logger.Warn("initial metrics refresh failed", zap.Error(err))
	}
	return identity, nil
}

// Invest submits an investment of amount Pi and follows it to a terminal
// phase. The backend is told about the payment inside the wallet's approval
// callback.
func (c *Controller) Invest(ctx context.Context, amount decimal.Decimal) view.Notice {
	if err := domain.ValidateInvestment(amount); err != nil {
		return view.InvestmentNotice(wallet.PhaseInitiated, "", err)
	}
	identity := c.store.Identity()
	if identity.IsZero() {
		return view.InvestmentNotice(wallet.PhaseInitiated, "", domain.ErrNoIdentity)
	}

	approve := func(ctx context.Context, paymentID string) error {
		return c.backend.ReportPayment(ctx, paymentID, identity, amount)
	}

	p, err := c.wallet.CreateInvestmentPayment(ctx, amount, approve)
	phase, paymentID := wallet.PhaseInitiated, ""
	if p != nil {
		phase, paymentID = p.Phase(), p.ID()
	}

	var syncErr *mapcap.LedgerSyncError
	switch {
	case errors.As(err, &syncErr):
		c.logger.Error("payment not recorded in ledger",
			zap.String("username", identity.Username),
			zap.String("payment_id", syncErr.PaymentID),
			zap.Error(err))
	case err != nil:
		c.logger.Warn("investment failed",
			zap.String("username", identity.Username),
			zap.String("payment_id", paymentID),
			zap.Error(err))
	}

	if phase == wallet.PhaseCompleted || phase == wallet.PhaseAwaitingCompletion {
		if err := c.store.Refresh(ctx, ""); err != nil {
			c.logger.Warn("post-payment refresh failed", zap.Error(err))
		}
	}
	return view.InvestmentNotice(phase, paymentID, err)
}

// Withdraw asks the backend to refund percentage of the Pioneer's stake.
func (c *Controller) Withdraw(ctx context.Context, percentage decimal.Decimal) view.Notice {
	identity := c.store.Identity()
	if err := domain.ValidateWithdrawal(percentage); err != nil {
		return view.WithdrawalNotice(identity.Username, percentage, err)
	}
	req, err := domain.NewWithdrawalRequest(identity.Username, percentage)
	if err != nil {
		return view.WithdrawalNotice(identity.Username, percentage, err)
	}

	if _, err := c.backend.RequestWithdraw(ctx, req); err != nil {
		c.logger.Warn("withdrawal failed",
			zap.String("username", identity.Username),
			zap.String("percentage", percentage.String()),
			zap.Error(err))
		return view.WithdrawalNotice(identity.Username, percentage, err)
	}

	if err := c.store.Refresh(ctx, ""); err != nil {
		c.logger.Warn("post-withdrawal refresh failed", zap.Error(err))
	}
	return view.WithdrawalNotice(identity.Username, percentage, nil)
}

// Refresh re-pulls metrics, or re-authenticates when no Pioneer is signed in.
func (c *Controller) Refresh(ctx context.Context) error {
	if c.store.Identity().IsZero() {
		_, err := c.Authenticate(ctx)
		return err
	}
	return c.store.Refresh(ctx, "")
}

// Logout forgets the Pioneer. The follower is detached first so no tick
// fetches for the old Pioneer after the store is cleared.
func (c *Controller) Logout(ctx context.Context) error {
	if c.follower != nil {
		c.follower.SetIdentity(domain.Identity{})
	}
	return c.store.Logout(ctx)
}
