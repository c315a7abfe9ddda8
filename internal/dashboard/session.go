package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/observability"
	"mapcap-ipo/internal/poller"
	"mapcap-ipo/internal/session"
	"mapcap-ipo/internal/view"
	"mapcap-ipo/internal/wallet"
	"mapcap-ipo/internal/wallet/relay"
)

const (
	helloTimeout    = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	maxMessageBytes = 64 << 10
	auditPanelLimit = 20
	renderTimeout   = 5 * time.Second
)

// Page → server actions.
const (
	msgHello        = "hello"
	msgAuthenticate = "authenticate"
	msgInvest       = "invest"
	msgWithdraw     = "withdraw"
	msgRefresh      = "refresh"
	msgLogout       = "logout"
)

// clientMessage is an action sent by the page.
type clientMessage struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	SDK        bool   `json:"sdk,omitempty"`
	Amount     string `json:"amount,omitempty"`
	Percentage string `json:"percentage,omitempty"`
}

type welcomeMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type noticeMessage struct {
	Type   string      `json:"type"`
	Notice view.Notice `json:"notice"`
}

type forgetMessage struct {
	Type string `json:"type"`
}

var errBusy = errors.New("a payment is already in progress")

// pageSession is the server side of one open page.
type pageSession struct {
	srv       *Server
	conn      *websocket.Conn
	transport *relay.WSTransport
	logger    *zap.Logger

	token  string
	relay  *relay.Relay
	wallet *wallet.Bridge
	store  *session.Store
	poller *poller.Poller
	ctrl   *Controller

	investing atomic.Bool
	dirty     chan struct{}
	wg        sync.WaitGroup
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()

	observability.SessionOpened()
	defer observability.SessionClosed()

	if err := s.serveSession(r.Context(), conn); err != nil {
		s.logger.Debug("session ended", zap.Error(err))
	}
}

// serveSession runs the session until the page goes away or ctx ends.
func (s *Server) serveSession(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var hello clientMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Type != msgHello {
		return fmt.Errorf("expected hello, got %q", hello.Type)
	}

	ctx, cancel := context.WithCancel(ctx)
	ps := s.newPageSession(conn, hello)
	defer ps.close(cancel)

	// Closing the connection unblocks the read loop on shutdown.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := ps.transport.Send(welcomeMessage{Type: "welcome", Token: ps.token}); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	ps.start(ctx)
	return ps.readLoop(ctx)
}

func (s *Server) newPageSession(conn *websocket.Conn, hello clientMessage) *pageSession {
	token := hello.Token
	if _, err := uuid.Parse(token); err != nil {
		token = uuid.NewString()
	}
	logger := s.logger.With(zap.String("session", token[:8]))

	ps := &pageSession{
		srv:       s,
		conn:      conn,
		transport: relay.NewWSTransport(conn, 0),
		logger:    logger,
		token:     token,
		dirty:     make(chan struct{}, 1),
	}

	ps.store = session.New(s.opts.Backend, session.Options{
		Logger:     logger,
		Identities: s.opts.Identities,
		History:    s.opts.History,
	})
	ps.poller = poller.New(ps.store, domain.Identity{}, poller.Options{
		Interval: s.opts.PollInterval,
		Clock:    s.opts.Clock,
		Logger:   logger,
	})

	var sdk wallet.SDK
	switch {
	case s.opts.StubWallet != nil:
		sdk = s.opts.StubWallet()
	case hello.SDK:
		ps.relay = relay.New(ps.transport, logger)
		sdk = ps.relay
	}

	audit := &auditLog{
		events:   s.opts.Events,
		username: func() string { return ps.store.Identity().Username },
		changed:  ps.markDirty,
		logger:   logger,
	}
	ps.wallet = wallet.NewBridge(sdk,
		wallet.WithLogger(logger),
		wallet.WithObserver(audit.observe),
		wallet.WithIncompletePaymentHandler(audit.incomplete),
	)
	ps.ctrl = NewController(ps.wallet, s.opts.Backend, ps.store,
		WithLogger(logger),
		WithFollower(ps.poller),
	)
	return ps
}

// start restores or requests the Pioneer's identity and starts the
// background goroutines.
func (ps *pageSession) start(ctx context.Context) {
	ps.store.Subscribe(func(session.State) { ps.markDirty() })
	ps.poller.Subscribe(func(poller.State) { ps.markDirty() })

	ps.wg.Add(2)
	go ps.pushLoop(ctx)
	go ps.pingLoop(ctx)

	ps.poller.Start(ctx)

	identity, restored, err := ps.store.RestoreIdentity(ctx, ps.token)
	if err != nil {
		ps.logger.Warn("identity cache unavailable", zap.Error(err))
	}
	switch {
	case restored:
		ps.poller.SetIdentity(identity)
	case ps.wallet.Available():
		ps.do(ctx, clientMessage{Type: msgAuthenticate})
	}
	ps.markDirty()
}

func (ps *pageSession) readLoop(ctx context.Context) error {
	ps.conn.SetReadDeadline(time.Now().Add(pongWait))
	ps.conn.SetPongHandler(func(string) error {
		return ps.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ps.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			ps.logger.Warn("malformed page message", zap.Error(err))
			continue
		}

		if relay.IsEvent(head.Type) {
			ps.handleWalletEvent(data)
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ps.logger.Warn("malformed page action", zap.String("type", head.Type), zap.Error(err))
			continue
		}
		ps.do(ctx, msg)
	}
}

func (ps *pageSession) handleWalletEvent(data []byte) {
	var ev relay.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		ps.logger.Warn("malformed wallet event", zap.Error(err))
		return
	}
	if ps.relay == nil {
		ps.logger.Warn("wallet event without relay", zap.String("type", ev.Type))
		return
	}
	if err := ps.relay.Handle(ev); err != nil {
		ps.logger.Warn("wallet event rejected", zap.String("type", ev.Type), zap.Error(err))
	}
}

// do runs an action on its own goroutine; wallet round trips wait on the
// read loop.
func (ps *pageSession) do(ctx context.Context, msg clientMessage) {
	ps.wg.Add(1)
	go func() {
		defer ps.wg.Done()
		if n, ok := ps.act(ctx, msg); ok {
			ps.sendNotice(n)
		}
	}()
}

// act performs msg and returns the notice to show, if any.
func (ps *pageSession) act(ctx context.Context, msg clientMessage) (view.Notice, bool) {
	switch msg.Type {
	case msgAuthenticate:
		if _, err := ps.ctrl.Authenticate(ctx); err != nil {
			return authNotice(err), true
		}
		return view.Notice{}, false

	case msgInvest:
		amount, err := decimal.NewFromString(strings.TrimSpace(msg.Amount))
		if err != nil {
			return view.InvestmentNotice(wallet.PhaseInitiated, "", domain.ErrInvalidAmount), true
		}
		if !ps.investing.CompareAndSwap(false, true) {
			return view.Notice{Level: view.LevelWarning, Text: errBusy.Error()}, true
		}
		defer ps.investing.Store(false)
		return ps.ctrl.Invest(ctx, amount), true

	case msgWithdraw:
		pct, err := decimal.NewFromString(strings.TrimSpace(msg.Percentage))
		if err != nil {
			return view.WithdrawalNotice("", decimal.Zero, domain.ErrInvalidPercentage), true
		}
		return ps.ctrl.Withdraw(ctx, pct), true

	case msgRefresh:
		if err := ps.ctrl.Refresh(ctx); err != nil {
			if ps.store.Identity().IsZero() {
				return authNotice(err), true
			}
			return view.Notice{Level: view.LevelError, Text: poller.SyncFailureMessage}, true
		}
		return view.Notice{}, false

	case msgLogout:
		if err := ps.ctrl.Logout(ctx); err != nil {
			ps.logger.Warn("logout incomplete", zap.Error(err))
		}
		if err := ps.transport.Send(forgetMessage{Type: "forget"}); err != nil {
			ps.logger.Debug("send forget failed", zap.Error(err))
		}
		return view.Notice{Level: view.LevelInfo, Text: "Logged out."}, true

	default:
		ps.logger.Warn("unknown page action", zap.String("type", msg.Type))
		return view.Notice{}, false
	}
}

func authNotice(err error) view.Notice {
	if errors.Is(err, wallet.ErrSDKUnavailable) {
		return view.Notice{Level: view.LevelWarning, Text: view.SDKMissingWarning}
	}
	if errors.Is(err, context.Canceled) {
		return view.Notice{Level: view.LevelInfo, Text: "Sign-in cancelled."}
	}
	return view.Notice{Level: view.LevelError, Text: "Sign-in failed. Use refresh to try again."}
}

func (ps *pageSession) sendNotice(n view.Notice) {
	if err := ps.transport.Send(noticeMessage{Type: "notice", Notice: n}); err != nil {
		ps.logger.Debug("send notice failed", zap.Error(err))
	}
}

// markDirty schedules a state push. It never blocks.
func (ps *pageSession) markDirty() {
	select {
	case ps.dirty <- struct{}{}:
	default:
	}
}

// pushLoop coalesces state changes into page renders.
func (ps *pageSession) pushLoop(ctx context.Context) {
	defer ps.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ps.dirty:
			if err := ps.push(ctx); err != nil {
				ps.logger.Debug("state push failed", zap.Error(err))
			}
		}
	}
}

func (ps *pageSession) push(ctx context.Context) error {
	page := ps.render(ctx)
	msg, err := ps.srv.renderState(page)
	if err != nil {
		return err
	}
	return ps.transport.Send(msg)
}

func (ps *pageSession) render(ctx context.Context) view.Page {
	st := ps.store.State()
	pst := ps.poller.State()

	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()
	events, err := recentEvents(ctx, ps.srv.opts.Events, st.Identity.Username, auditPanelLimit)
	if err != nil {
		ps.logger.Warn("audit trail unavailable", zap.Error(err))
	}

	var flagged []view.FlaggedSnapshot
	for _, a := range ps.store.Anomalies() {
		if a.Username == st.Identity.Username {
			flagged = append(flagged, view.FlaggedSnapshot{At: a.ObservedAt, Reason: a.Reason})
		}
	}

	return view.Build(view.Input{
		Identity:     st.Identity,
		Metrics:      st.Metrics,
		Loading:      pst.Loading,
		SyncError:    pst.Err,
		SDKAvailable: ps.wallet.Available(),
		Events:       events,
		Flagged:      flagged,
	})
}

func (ps *pageSession) pingLoop(ctx context.Context) {
	defer ps.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ps.transport.Ping(); err != nil {
				ps.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// close cancels the session and waits for its goroutines. Pending wallet
// calls fail with relay.ErrRelayClosed, except payments already approved.
func (ps *pageSession) close(cancel context.CancelFunc) {
	cancel()
	if ps.relay != nil {
		ps.relay.Close()
	}
	ps.poller.Stop()
	ps.wg.Wait()
	if ps.relay != nil {
		ps.relay.Wait()
	}
	ps.poller.Wait()
}
