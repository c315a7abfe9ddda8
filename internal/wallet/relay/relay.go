// Package relay implements the wallet SDK over the dashboard websocket:
// wallet calls become commands for the Pi SDK running in the page, and the
// page's callback messages become SDK callbacks.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/wallet"
)

var (
	// ErrRelayClosed is returned for commands pending when the page goes away.
	ErrRelayClosed = errors.New("wallet relay closed")

	// ErrUnknownCommand is returned by Handle for events answering no pending command.
	ErrUnknownCommand = errors.New("event for unknown command")
)

// Sender delivers a command to the page.
type Sender interface {
	Send(v interface{}) error
}

type authReply struct {
	res wallet.AuthResult
	err error
}

type authCall struct {
	reply        chan authReply
	onIncomplete func(wallet.IncompletePayment)
}

type paymentCall struct {
	id     string
	events chan Event
	cb     wallet.Callbacks

	// paymentID is set once the wallet asked for server approval; only the
	// deliver goroutine touches it.
	paymentID string
}

// Relay is a wallet.SDK backed by a page connection.
type Relay struct {
	sender Sender
	logger *zap.Logger

	mu       sync.Mutex
	auths    map[string]*authCall
	payments map[string]*paymentCall
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ wallet.SDK = (*Relay)(nil)

// New creates a relay writing commands to sender.
func New(sender Sender, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		sender:   sender,
		logger:   logger.Named("relay"),
		auths:    make(map[string]*authCall),
		payments: make(map[string]*paymentCall),
		done:     make(chan struct{}),
	}
}

// Authenticate implements wallet.SDK.
func (r *Relay) Authenticate(ctx context.Context, scopes []wallet.Scope, onIncomplete func(wallet.IncompletePayment)) (wallet.AuthResult, error) {
	id := uuid.NewString()
	call := &authCall{reply: make(chan authReply, 1), onIncomplete: onIncomplete}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return wallet.AuthResult{}, ErrRelayClosed
	}
	r.auths[id] = call
	r.mu.Unlock()

	if err := r.sender.Send(Command{Type: TypeAuthenticate, ID: id, Scopes: scopes}); err != nil {
		r.dropAuth(id)
		return wallet.AuthResult{}, fmt.Errorf("send authenticate: %w", err)
	}

	select {
	case reply := <-call.reply:
		return reply.res, reply.err
	case <-r.done:
		return wallet.AuthResult{}, ErrRelayClosed
	case <-ctx.Done():
		r.dropAuth(id)
		return wallet.AuthResult{}, ctx.Err()
	}
}

// CreatePayment implements wallet.SDK. Callbacks run on a goroutine owned
// by the relay, in the order the page reported them.
func (r *Relay) CreatePayment(ctx context.Context, intent domain.PaymentIntent, cb wallet.Callbacks) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := uuid.NewString()
	call := &paymentCall{id: id, events: make(chan Event, 16), cb: cb}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRelayClosed
	}
	r.payments[id] = call
	r.mu.Unlock()

	if err := r.sender.Send(Command{Type: TypeCreatePayment, ID: id, Payment: paymentConfig(intent)}); err != nil {
		r.mu.Lock()
		delete(r.payments, id)
		r.mu.Unlock()
		return fmt.Errorf("send create_payment: %w", err)
	}

	r.wg.Add(1)
	go r.deliver(call)
	return nil
}

// Handle routes an event from the page. It must be called from the single
// goroutine reading the connection.
func (r *Relay) Handle(ev Event) error {
	switch ev.Type {
	case TypeAuthResult:
		call := r.takeAuth(ev.ID)
		if call == nil {
			return fmt.Errorf("%w: %s %s", ErrUnknownCommand, ev.Type, ev.ID)
		}
		if ev.Auth == nil {
			call.reply <- authReply{err: errors.New("auth_result without payload")}
			return nil
		}
		call.reply <- authReply{res: *ev.Auth}
		return nil

	case TypeAuthError:
		call := r.takeAuth(ev.ID)
		if call == nil {
			return fmt.Errorf("%w: %s %s", ErrUnknownCommand, ev.Type, ev.ID)
		}
		call.reply <- authReply{err: errors.New(ev.Message)}
		return nil

	case TypeIncompletePayment:
		r.mu.Lock()
		call := r.auths[ev.ID]
		r.mu.Unlock()
		if call == nil || ev.Payment == nil {
			return fmt.Errorf("%w: %s %s", ErrUnknownCommand, ev.Type, ev.ID)
		}
		if call.onIncomplete != nil {
			call.onIncomplete(*ev.Payment)
		}
		return nil

	case TypeSDKUnavailable:
		if call := r.takeAuth(ev.ID); call != nil {
			call.reply <- authReply{err: wallet.ErrSDKUnavailable}
			return nil
		}
	}

	if !IsEvent(ev.Type) {
		return fmt.Errorf("unknown wallet event %q", ev.Type)
	}

	r.mu.Lock()
	call := r.payments[ev.ID]
	if call != nil && ev.terminal() {
		delete(r.payments, ev.ID)
	}
	r.mu.Unlock()
	if call == nil {
		return fmt.Errorf("%w: %s %s", ErrUnknownCommand, ev.Type, ev.ID)
	}

	select {
	case call.events <- ev:
	case <-r.done:
	}
	return nil
}

func (r *Relay) deliver(call *paymentCall) {
	defer r.wg.Done()

	for {
		select {
		case ev := <-call.events:
			if r.invoke(call, ev) {
				return
			}
		case <-r.done:
			for {
				select {
				case ev := <-call.events:
					if r.invoke(call, ev) {
						return
					}
				default:
					r.abandon(call)
					return
				}
			}
		}
	}
}

// abandon ends a payment whose page went away. Once the server approved it
// the payment lives on the blockchain, so it is left awaiting completion
// and is picked up as incomplete on the next sign-in.
func (r *Relay) abandon(call *paymentCall) {
	if call.paymentID != "" {
		r.logger.Warn("page closed before blockchain confirmation",
			zap.String("command_id", call.id),
			zap.String("payment_id", call.paymentID))
		return
	}
	call.cb.OnError(ErrRelayClosed, "")
}

// invoke runs the callback for ev and reports whether it was terminal.
func (r *Relay) invoke(call *paymentCall, ev Event) bool {
	switch ev.Type {
	case TypeReadyForServerApproval:
		call.paymentID = ev.PaymentID
		call.cb.OnReadyForServerApproval(ev.PaymentID)
	case TypeReadyForServerCompletion:
		call.cb.OnReadyForServerCompletion(ev.PaymentID, ev.TxID)
	case TypeCancel:
		call.cb.OnCancel(ev.PaymentID)
	case TypeError:
		call.cb.OnError(errors.New(ev.Message), ev.PaymentID)
	case TypeSDKUnavailable:
		call.cb.OnError(wallet.ErrSDKUnavailable, ev.PaymentID)
	default:
		r.logger.Warn("unexpected payment event",
			zap.String("command_id", call.id),
			zap.String("type", ev.Type))
	}
	return ev.terminal()
}

func (r *Relay) takeAuth(id string) *authCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := r.auths[id]
	delete(r.auths, id)
	return call
}

func (r *Relay) dropAuth(id string) {
	r.mu.Lock()
	delete(r.auths, id)
	r.mu.Unlock()
}

// Close fails pending commands with ErrRelayClosed, except payments the
// server already approved. It does not close the underlying connection.
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		pending := len(r.auths) + len(r.payments)
		r.auths = make(map[string]*authCall)
		r.payments = make(map[string]*paymentCall)
		r.mu.Unlock()

		close(r.done)
		if pending > 0 {
			r.logger.Info("relay closed with pending commands", zap.Int("pending", pending))
		}
	})
}

// Wait blocks until every payment callback goroutine has finished.
func (r *Relay) Wait() {
	r.wg.Wait()
}
