package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/storage/memory"
	"mapcap-ipo/internal/wallet"
	"mapcap-ipo/internal/wallet/relay"
	"mapcap-ipo/internal/wallet/stub"
)

type serverFixture struct {
	backend    *fakeBackend
	identities *memory.IdentityStore
	events     *memory.PaymentEventStore
	history    *memory.SnapshotStore
	server     *Server
	http       *httptest.Server
}

func newServerFixture(t *testing.T, mutate func(*Options)) *serverFixture {
	t.Helper()
	f := &serverFixture{
		backend:    newFakeBackend(),
		identities: memory.NewIdentityStore(),
		events:     memory.NewPaymentEventStore(),
		history:    memory.NewSnapshotStore(),
	}
	opts := Options{
		Backend:    f.backend,
		Identities: f.identities,
		Events:     f.events,
		History:    f.history,
		PiSandbox:  true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := New(opts)
	require.NoError(t, err)
	f.server = srv
	f.http = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		f.http.Close()
		srv.Wait()
	})
	return f
}

func (f *serverFixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	return f.getWithToken(t, path, "")
}

func (f *serverFixture) getWithToken(t *testing.T, path, token string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.http.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(SessionTokenHeader, token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Backend: newFakeBackend()})
	assert.Error(t, err)
}

func TestServer_HealthAndPage(t *testing.T) {
	f := newServerFixture(t, nil)

	resp, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)

	resp, body = f.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "MapCapIPO app")
	assert.Contains(t, body, `Pi.init({ version: "2.0", sandbox: sandbox })`)
	assert.Contains(t, body, "Synchronizing with Pi Network Ledger...")
	assert.Contains(t, body, "Calculating...")
	assert.Contains(t, body, "Waiting for engine data...")
	assert.Contains(t, body, "https://chatwithmac.com")
	assert.Contains(t, body, "Invest pi")
	assert.Contains(t, body, "Withdraw pi")

	resp, _ = f.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "mapcap_ipo_")
}

func TestAPI_Stats(t *testing.T) {
	f := newServerFixture(t, nil)

	resp, body := f.get(t, "/api/stats?username=admin")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &stats))
	assert.Equal(t, "admin", stats.Username)
	assert.Equal(t, int64(12), stats.Metrics.TotalInvestors)
	assert.True(t, decimal.NewFromInt(120).Equal(stats.Metrics.UserCapitalGain))

	resp, _ = f.get(t, "/api/stats")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	post, err := http.Post(f.http.URL+"/api/stats?username=admin", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)

	f.backend.mu.Lock()
	f.backend.fetchErr = errors.New("connection refused")
	f.backend.mu.Unlock()
	resp, body = f.get(t, "/api/stats?username=admin")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.NotContains(t, body, "connection refused")
}

func TestAPI_HistoryAndAudit(t *testing.T) {
	f := newServerFixture(t, nil)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		snap := domain.ZeroSnapshot()
		snap.TotalInvestors = i
		require.NoError(t, f.history.Insert(ctx, &domain.SnapshotRecord{Username: "alice", ObservedAt: i * 1000, Snapshot: snap}))
		require.NoError(t, f.events.Insert(ctx, &domain.PaymentEvent{
			PaymentID:  "pay_1",
			Username:   "alice",
			Amount:     decimal.NewFromInt(10),
			Phase:      []string{"awaiting_approval", "awaiting_completion", "completed"}[i-1],
			RecordedAt: i * 1000,
		}))
	}

	resp, body := f.get(t, "/api/history?username=alice&limit=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(body), &history))
	require.Len(t, history, 2)
	assert.Equal(t, int64(3000), history[0].ObservedAt)
	assert.Equal(t, int64(3), history[0].Metrics.TotalInvestors)

	require.NoError(t, f.identities.Save(ctx, &domain.IdentityRecord{Token: "tok-alice", Identity: domain.Identity{Username: "alice"}}))
	resp, body = f.getWithToken(t, "/api/audit", "tok-alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var audit []AuditEntry
	require.NoError(t, json.Unmarshal([]byte(body), &audit))
	require.Len(t, audit, 3)
	assert.Equal(t, "completed", audit[0].Phase)
	assert.Equal(t, "10", audit[0].Amount)

	require.NoError(t, f.identities.Save(ctx, &domain.IdentityRecord{Token: "tok-bob", Identity: domain.Identity{Username: "bob"}}))
	resp, body = f.getWithToken(t, "/api/audit", "tok-bob")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", body)

	resp, _ = f.get(t, "/api/history?username=alice&limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_AuditScopedToSession(t *testing.T) {
	f := newServerFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.events.Insert(ctx, &domain.PaymentEvent{
		PaymentID: "pay_a", Username: "alice", Amount: decimal.NewFromInt(10), Phase: "completed", RecordedAt: 1000,
	}))
	require.NoError(t, f.events.Insert(ctx, &domain.PaymentEvent{
		PaymentID: "pay_b", Username: "bob", Amount: decimal.NewFromInt(99), Phase: "completed", RecordedAt: 2000,
	}))
	require.NoError(t, f.identities.Save(ctx, &domain.IdentityRecord{Token: "tok-alice", Identity: domain.Identity{Username: "alice"}}))

	resp, body := f.get(t, "/api/audit?username=bob")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotContains(t, body, "pay_b")

	resp, body = f.getWithToken(t, "/api/audit?username=bob", "tok-unknown")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotContains(t, body, "pay_b")

	resp, body = f.getWithToken(t, "/api/audit?username=bob", "tok-alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var audit []AuditEntry
	require.NoError(t, json.Unmarshal([]byte(body), &audit))
	require.Len(t, audit, 1)
	assert.Equal(t, "pay_a", audit[0].PaymentID)

	require.NoError(t, f.identities.Delete(ctx, "tok-alice"))
	resp, _ = f.getWithToken(t, "/api/audit", "tok-alice")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_CORS(t *testing.T) {
	f := newServerFixture(t, func(o *Options) {
		o.AllowedOrigins = []string{"https://admin.mapcap.example"}
	})

	req, err := http.NewRequest(http.MethodOptions, f.http.URL+"/api/stats?username=admin", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://admin.mapcap.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://admin.mapcap.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

// page is a test client speaking the session protocol.
type page struct {
	t    *testing.T
	conn *websocket.Conn
}

func openPage(t *testing.T, f *serverFixture, hello map[string]interface{}) *page {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hello["type"] = "hello"
	require.NoError(t, conn.WriteJSON(hello))
	return &page{t: t, conn: conn}
}

func (p *page) send(msg map[string]interface{}) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(msg))
}

// next reads messages until one satisfies match.
func (p *page) next(match func(map[string]interface{}) bool) map[string]interface{} {
	p.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(p.t, p.conn.SetReadDeadline(deadline))
		var msg map[string]interface{}
		require.NoError(p.t, p.conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

// expectAll reads messages until every matcher has matched one, in any order.
func (p *page) expectAll(matchers ...func(map[string]interface{}) bool) {
	p.t.Helper()
	pending := append([]func(map[string]interface{}) bool(nil), matchers...)
	p.next(func(m map[string]interface{}) bool {
		for i, match := range pending {
			if match(m) {
				pending = append(pending[:i], pending[i+1:]...)
				break
			}
		}
		return len(pending) == 0
	})
}

func ofType(typ string) func(map[string]interface{}) bool {
	return func(m map[string]interface{}) bool { return m["type"] == typ }
}

// stateWith matches a state push containing every fragment.
func stateWith(fragments ...string) func(map[string]interface{}) bool {
	return func(m map[string]interface{}) bool {
		if m["type"] != "state" {
			return false
		}
		nav, _ := m["navbar"].(string)
		bands, _ := m["bands"].(string)
		for _, f := range fragments {
			if !strings.Contains(nav+bands, f) {
				return false
			}
		}
		return true
	}
}

func noticeText(m map[string]interface{}) (level, text string) {
	n, _ := m["notice"].(map[string]interface{})
	level, _ = n["level"].(string)
	text, _ = n["text"].(string)
	return level, text
}

func TestSession_StubWallet(t *testing.T) {
	sdk := stub.New(stub.WithUser(wallet.User{UID: "u1", Username: "alice"}))
	f := newServerFixture(t, func(o *Options) {
		o.StubWallet = func() wallet.SDK { return sdk }
	})
	t.Cleanup(sdk.Wait)

	p := openPage(t, f, map[string]interface{}{"sdk": false})
	welcome := p.next(ofType("welcome"))
	token, _ := welcome["token"].(string)
	require.NotEmpty(t, token)

	// Signed in automatically, metrics rendered.
	p.next(stateWith("MapCapIPO - @alice", "5,000 π"))

	rec, err := f.identities.Get(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Identity.Username)

	p.send(map[string]interface{}{"type": "invest", "amount": "0.5"})
	level, text := noticeText(p.next(ofType("notice")))
	assert.Equal(t, "warning", level)
	assert.Contains(t, text, "Minimum investment")
	assert.Empty(t, sdk.Intents(), "invalid amount never reaches the wallet")

	p.send(map[string]interface{}{"type": "withdraw", "percentage": "150"})
	level, _ = noticeText(p.next(ofType("notice")))
	assert.Equal(t, "warning", level)
	_, _, withdrawals := f.backend.counts()
	assert.Zero(t, withdrawals, "invalid percentage never reaches the backend")

	p.send(map[string]interface{}{"type": "invest", "amount": "2"})
	level, text = noticeText(p.next(ofType("notice")))
	assert.Equal(t, "success", level)
	assert.Equal(t, "Investment Securely Logged in MapCap Ledger!", text)

	sdk.Wait()
	events, err := f.events.GetByUsername(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, "completed", events[0].Phase)

	p.send(map[string]interface{}{"type": "logout"})
	p.expectAll(ofType("forget"), stateWith("MapCapIPO app"))
	_, err = f.identities.Get(context.Background(), token)
	assert.Error(t, err, "identity cache purged on logout")
}

func TestSession_RestoresCachedIdentity(t *testing.T) {
	f := newServerFixture(t, nil)
	token := "0d8c2a52-5d1e-4c59-9d6e-3f8a4c9b7e21"
	require.NoError(t, f.identities.Save(context.Background(), &domain.IdentityRecord{
		Token:    token,
		Identity: domain.Identity{Username: "carol"},
	}))

	// No Pi SDK in this browser: the cached identity still renders.
	p := openPage(t, f, map[string]interface{}{"token": token, "sdk": false})
	welcome := p.next(ofType("welcome"))
	assert.Equal(t, token, welcome["token"])
	state := p.next(stateWith("MapCapIPO - @carol"))
	assert.Contains(t, state["bands"], "Pi SDK not detected")
}

func TestSession_RelayWallet(t *testing.T) {
	f := newServerFixture(t, nil)
	p := openPage(t, f, map[string]interface{}{"sdk": true})
	p.next(ofType("welcome"))

	// The server asks the page to authenticate through the Pi SDK.
	auth := p.next(ofType(relay.TypeAuthenticate))
	assert.ElementsMatch(t, []interface{}{"username", "payments", "wallet_address"}, auth["scopes"])
	p.send(map[string]interface{}{
		"type": relay.TypeAuthResult,
		"id":   auth["id"],
		"auth": map[string]interface{}{"accessToken": "tok", "user": map[string]interface{}{"uid": "u2", "username": "bob"}},
	})
	p.next(stateWith("MapCapIPO - @bob"))

	p.send(map[string]interface{}{"type": "invest", "amount": "3"})
	create := p.next(ofType(relay.TypeCreatePayment))
	payment, _ := create["payment"].(map[string]interface{})
	assert.Equal(t, float64(3), payment["amount"])
	assert.Equal(t, "Investment in MapCap IPO Phase - 3 Pi", payment["memo"])

	p.send(map[string]interface{}{"type": relay.TypeReadyForServerApproval, "id": create["id"], "paymentId": "pay_9"})
	p.send(map[string]interface{}{"type": relay.TypeReadyForServerCompletion, "id": create["id"], "paymentId": "pay_9", "txid": "tx_9"})

	level, _ := noticeText(p.next(ofType("notice")))
	assert.Equal(t, "success", level)

	f.backend.mu.Lock()
	require.Len(t, f.backend.reports, 1)
	assert.Equal(t, "pay_9", f.backend.reports[0].PaymentID)
	assert.Equal(t, "bob", f.backend.reports[0].Username)
	f.backend.mu.Unlock()
}

func TestSession_RelayCancel(t *testing.T) {
	f := newServerFixture(t, nil)
	p := openPage(t, f, map[string]interface{}{"sdk": true})

	auth := p.next(ofType(relay.TypeAuthenticate))
	p.send(map[string]interface{}{
		"type": relay.TypeAuthResult,
		"id":   auth["id"],
		"auth": map[string]interface{}{"user": map[string]interface{}{"username": "dave"}},
	})
	p.next(stateWith("@dave"))

	p.send(map[string]interface{}{"type": "invest", "amount": "1"})
	create := p.next(ofType(relay.TypeCreatePayment))
	p.send(map[string]interface{}{"type": relay.TypeCancel, "id": create["id"], "paymentId": "pay_c"})

	level, text := noticeText(p.next(ofType("notice")))
	assert.Equal(t, "info", level)
	assert.Contains(t, text, "cancelled")
	_, reports, _ := f.backend.counts()
	assert.Zero(t, reports)
}

func TestSession_RejectsMissingHello(t *testing.T) {
	f := newServerFixture(t, nil)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "invest"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "server closes sessions that skip hello")
}

func TestSession_FlaggedSnapshotShownInAudit(t *testing.T) {
	sdk := stub.New(stub.WithUser(wallet.User{UID: "u1", Username: "alice"}))
	f := newServerFixture(t, func(o *Options) {
		o.StubWallet = func() wallet.SDK { return sdk }
	})
	t.Cleanup(sdk.Wait)
	f.backend.mu.Lock()
	f.backend.metrics.UserPiInvested = decimal.NewFromInt(9000)
	f.backend.mu.Unlock()

	p := openPage(t, f, map[string]interface{}{"sdk": false})
	p.next(ofType("welcome"))

	msg := p.next(stateWith("MapCapIPO - @alice", "Snapshot flagged for review: userPiInvested 9000 exceeds totalPiInvested 5000"))
	bands, _ := msg["bands"].(string)
	assert.NotContains(t, bands, "9,000 π", "flagged snapshot is not displayed")
}
