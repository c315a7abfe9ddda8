package dashboard

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/mapcap"
	"mapcap-ipo/internal/wallet"
)

type reportCall struct {
	PaymentID string
	Username  string
	Amount    decimal.Decimal
}

// fakeBackend records every backend call.
type fakeBackend struct {
	mu          sync.Mutex
	metrics     domain.MetricsSnapshot
	fetchErr    error
	reportErr   error
	withdrawErr error
	fetches     int
	reports     []reportCall
	withdrawals []domain.WithdrawalRequest
}

func newFakeBackend() *fakeBackend {
	m := domain.ZeroSnapshot()
	m.TotalInvestors = 12
	m.TotalPiInvested = decimal.NewFromInt(5000)
	m.UserPiInvested = decimal.NewFromInt(100)
	m.UserCapitalGain = domain.DeriveCapitalGain(m.UserPiInvested)
	m.DailyPrices = []decimal.Decimal{decimal.NewFromInt(2), decimal.NewFromInt(3)}
	return &fakeBackend{metrics: m}
}

func (b *fakeBackend) TryFetchMetrics(_ context.Context, _ domain.Identity) (domain.MetricsSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if b.fetchErr != nil {
		return domain.MetricsSnapshot{}, b.fetchErr
	}
	return b.metrics.Clone(), nil
}

func (b *fakeBackend) ReportPayment(_ context.Context, paymentID string, identity domain.Identity, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reports = append(b.reports, reportCall{PaymentID: paymentID, Username: identity.Username, Amount: amount})
	if b.reportErr != nil {
		return &mapcap.LedgerSyncError{PaymentID: paymentID, Err: b.reportErr}
	}
	return nil
}

func (b *fakeBackend) RequestWithdraw(_ context.Context, req domain.WithdrawalRequest) (mapcap.WithdrawAck, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.withdrawals = append(b.withdrawals, req)
	if b.withdrawErr != nil {
		return mapcap.WithdrawAck{}, b.withdrawErr
	}
	return mapcap.WithdrawAck{Success: true}, nil
}

func (b *fakeBackend) counts() (fetches, reports, withdrawals int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches, len(b.reports), len(b.withdrawals)
}

// countingWallet wraps a Bridge and counts the calls reaching it.
type countingWallet struct {
	*wallet.Bridge
	mu       sync.Mutex
	auths    int
	payments int
}

func (w *countingWallet) Authenticate(ctx context.Context) (domain.Identity, error) {
	w.mu.Lock()
	w.auths++
	w.mu.Unlock()
	return w.Bridge.Authenticate(ctx)
}

func (w *countingWallet) CreateInvestmentPayment(ctx context.Context, amount decimal.Decimal, approve wallet.ApprovalFunc) (*wallet.Payment, error) {
	w.mu.Lock()
	w.payments++
	w.mu.Unlock()
	return w.Bridge.CreateInvestmentPayment(ctx, amount, approve)
}

func (w *countingWallet) calls() (auths, payments int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.auths, w.payments
}

type recordingFollower struct {
	mu  sync.Mutex
	ids []domain.Identity
}

func (f *recordingFollower) SetIdentity(identity domain.Identity) {
	f.mu.Lock()
	f.ids = append(f.ids, identity)
	f.mu.Unlock()
}

func (f *recordingFollower) seen() []domain.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Identity(nil), f.ids...)
}
