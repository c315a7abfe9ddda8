package wallet

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mapcap-ipo/internal/domain"
)

// Phase is the state of an investment payment.
type Phase string

const (
	PhaseInitiated          Phase = "initiated"
	PhaseAwaitingApproval   Phase = "awaiting_approval"
	PhaseAwaitingCompletion Phase = "awaiting_completion"
	PhaseCompleted          Phase = "completed"
	PhaseCancelled          Phase = "cancelled"
	PhaseErrored            Phase = "errored"
)

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseErrored
}

// EventKind tags an Event.
type EventKind string

const (
	// EventReadyForServerApproval: the wallet reserved the payment.
	EventReadyForServerApproval EventKind = "ready_for_server_approval"
	// EventApproved: the backend recorded the payment.
	EventApproved EventKind = "approved"
	// EventApprovalFailed: the backend could not record the payment.
	EventApprovalFailed EventKind = "approval_failed"
	// EventReadyForServerCompletion: the blockchain transaction is confirmed.
	EventReadyForServerCompletion EventKind = "ready_for_server_completion"
	// EventCancel: the Pioneer cancelled in the wallet.
	EventCancel EventKind = "cancel"
	// EventError: the SDK reported a fault.
	EventError EventKind = "error"
)

// Event is one input to the payment state machine.
type Event struct {
	Kind      EventKind
	PaymentID string
	TxID      string
	Err       error
}

// Transition describes an accepted Dispatch.
type Transition struct {
	PaymentID string
	Amount    decimal.Decimal
	From      Phase
	To        Phase
	Event     EventKind
	TxID      string
	Err       error
	At        time.Time
}

var transitions = map[Phase]map[EventKind]Phase{
	PhaseInitiated: {
		EventReadyForServerApproval: PhaseAwaitingApproval,
		EventCancel:                 PhaseCancelled,
		EventError:                  PhaseErrored,
	},
	PhaseAwaitingApproval: {
		EventApproved:       PhaseAwaitingCompletion,
		EventApprovalFailed: PhaseErrored,
		EventCancel:         PhaseCancelled,
		EventError:          PhaseErrored,
	},
	PhaseAwaitingCompletion: {
		EventReadyForServerCompletion: PhaseCompleted,
		EventCancel:                   PhaseCancelled,
		EventError:                    PhaseErrored,
	},
}

// Payment is an investment payment moving through its phases. It is safe
// for concurrent use.
type Payment struct {
	mu     sync.Mutex
	intent domain.PaymentIntent
	phase  Phase
	txID   string
	err    error
	done   chan struct{}
	now    func() time.Time
}

// NewPayment returns a payment for intent in PhaseInitiated.
func NewPayment(intent domain.PaymentIntent) *Payment {
	return &Payment{
		intent: intent,
		phase:  PhaseInitiated,
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Dispatch applies ev. Events the current phase does not accept are
// rejected with ErrInvalidTransition and leave the payment unchanged.
func (p *Payment) Dispatch(ev Event) (Transition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, ok := transitions[p.phase][ev.Kind]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s in phase %s", ErrInvalidTransition, ev.Kind, p.phase)
	}
	if ev.PaymentID != "" && p.intent.PaymentID != "" && ev.PaymentID != p.intent.PaymentID {
		return Transition{}, fmt.Errorf("%w: event for payment %s, tracking %s",
			ErrInvalidTransition, ev.PaymentID, p.intent.PaymentID)
	}

	if p.intent.PaymentID == "" {
		p.intent.PaymentID = ev.PaymentID
	}
	if ev.TxID != "" {
		p.txID = ev.TxID
	}

	t := Transition{
		PaymentID: p.intent.PaymentID,
		Amount:    p.intent.Amount,
		From:      p.phase,
		To:        next,
		Event:     ev.Kind,
		TxID:      ev.TxID,
		Err:       ev.Err,
		At:        p.now(),
	}

	p.phase = next
	if next == PhaseErrored {
		p.err = ev.Err
	}
	if next.Terminal() {
		close(p.done)
	}
	return t, nil
}

// Phase returns the current phase.
func (p *Payment) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// ID returns the wallet payment id, empty until the wallet assigns one.
func (p *Payment) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intent.PaymentID
}

// TxID returns the blockchain transaction id, if any.
func (p *Payment) TxID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txID
}

// Intent returns a copy of the payment intent.
func (p *Payment) Intent() domain.PaymentIntent {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent := p.intent
	intent.Metadata = make(map[string]string, len(p.intent.Metadata))
	for k, v := range p.intent.Metadata {
		intent.Metadata[k] = v
	}
	return intent
}

// Err returns the error that moved the payment to PhaseErrored.
func (p *Payment) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed when the payment reaches a terminal phase.
func (p *Payment) Done() <-chan struct{} {
	return p.done
}
