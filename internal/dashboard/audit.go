package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/storage"
	"mapcap-ipo/internal/wallet"
)

// PhaseIncomplete marks an unfinished payment the wallet reported on login.
const PhaseIncomplete = "incomplete"

// auditWriteTimeout bounds one audit insert.
const auditWriteTimeout = 5 * time.Second

// auditLog writes payment transitions of one session to the audit trail.
type auditLog struct {
	events   storage.PaymentEventStore
	username func() string
	changed  func()
	logger   *zap.Logger
}

// observe is a wallet.Observer.
func (a *auditLog) observe(t wallet.Transition) {
	e := &domain.PaymentEvent{
		PaymentID:  t.PaymentID,
		Username:   a.username(),
		Amount:     t.Amount,
		Phase:      string(t.To),
		TxID:       t.TxID,
		RecordedAt: t.At.UnixMilli(),
	}
	if t.Err != nil {
		e.Detail = t.Err.Error()
	}
	a.insert(e)
}

// incomplete records a payment the wallet reported as unfinished.
func (a *auditLog) incomplete(p wallet.IncompletePayment) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		amount = decimal.Zero
	}
	a.insert(&domain.PaymentEvent{
		PaymentID:  p.Identifier,
		Username:   a.username(),
		Amount:     amount,
		Phase:      PhaseIncomplete,
		TxID:       p.TxID,
		Detail:     "reported by wallet on sign-in",
		RecordedAt: time.Now().UnixMilli(),
	})
}

func (a *auditLog) insert(e *domain.PaymentEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := a.events.Insert(ctx, e); err != nil {
		a.logger.Error("failed to write payment audit event",
			zap.String("payment_id", e.PaymentID),
			zap.String("phase", e.Phase),
			zap.Error(err))
		return
	}
	if a.changed != nil {
		a.changed()
	}
}

// recentEvents returns the latest audit events of username, oldest first.
func recentEvents(ctx context.Context, events storage.PaymentEventStore, username string, limit int) ([]*domain.PaymentEvent, error) {
	if username == "" {
		return nil, nil
	}
	list, err := events.GetByUsername(ctx, username, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}
