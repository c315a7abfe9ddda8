// Package mapcap is the HTTP client for the MapCap IPO backend.
package mapcap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:3000/api"
	DefaultTimeout = 10 * time.Second

	// maxResponseBytes caps response bodies read from the backend.
	maxResponseBytes = 1 << 20
)

// Backend endpoints, relative to the base URL.
const (
	pathStats    = "/mapcap-stats"
	pathApprove  = "/approve-payment"
	pathWithdraw = "/request-withdraw"
)

// HTTPClient talks to the MapCap backend. It never retries; retries are the
// caller's decision.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// NewHTTPClient creates a new backend client for baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("mapcap")
	return c
}

// errEmptyResponse is returned by do when a response body was expected but
// the backend sent none.
var errEmptyResponse = errors.New("empty response body")

// statusError is a non-2xx backend response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// do performs one request and decodes a JSON response into result.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, payload, result interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	observability.RecordBackendLatency(path, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if len(bytes.TrimSpace(respBody)) == 0 {
			return errEmptyResponse
		}
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// statsPayload is the raw /mapcap-stats response. Pointers distinguish an
// absent field from a zero value.
type statsPayload struct {
	TotalInvestors  *int64            `json:"totalInvestors"`
	TotalPiInvested *decimal.Decimal  `json:"totalPiInvested"`
	UserPiInvested  *decimal.Decimal  `json:"userPiInvested"`
	UserCapitalGain *decimal.Decimal  `json:"userCapitalGain"`
	DailyPrices     []decimal.Decimal `json:"dailyPrices"`
	SpotPrice       *decimal.Decimal  `json:"spotPrice"`
	IsWhale         bool              `json:"isWhale"`
}

// snapshot converts the payload into a validated MetricsSnapshot.
func (p *statsPayload) snapshot() (domain.MetricsSnapshot, error) {
	// A null body or an object without the pool totals is not a snapshot.
	if p.TotalInvestors == nil || p.TotalPiInvested == nil {
		return domain.ZeroSnapshot(), fmt.Errorf("%w: totalInvestors and totalPiInvested are required", domain.ErrMalformedSnapshot)
	}

	m := domain.ZeroSnapshot()
	if p.TotalInvestors != nil {
		m.TotalInvestors = *p.TotalInvestors
	}
	if p.TotalPiInvested != nil {
		m.TotalPiInvested = *p.TotalPiInvested
	}
	if p.UserPiInvested != nil {
		m.UserPiInvested = *p.UserPiInvested
	}
	if p.SpotPrice != nil {
		m.SpotPrice = *p.SpotPrice
	}
	if len(p.DailyPrices) > 0 {
		m.DailyPrices = p.DailyPrices
	}
	m.IsWhale = p.IsWhale

	// A backend-supplied gain is authoritative; derive only when absent.
	if p.UserCapitalGain != nil {
		m.UserCapitalGain = *p.UserCapitalGain
	} else {
		m.UserCapitalGain = domain.DeriveCapitalGain(m.UserPiInvested)
	}

	if err := m.Validate(); err != nil {
		return domain.ZeroSnapshot(), err
	}
	return m, nil
}

// TryFetchMetrics fetches the IPO metrics for identity and reports failures.
func (c *HTTPClient) TryFetchMetrics(ctx context.Context, identity domain.Identity) (domain.MetricsSnapshot, error) {
	if identity.IsZero() {
		return domain.ZeroSnapshot(), domain.ErrNoIdentity
	}

	var payload statsPayload
	err := c.do(ctx, http.MethodGet, pathStats, url.Values{"username": {identity.Username}}, nil, &payload)
	if err != nil {
		observability.RecordMetricsFetch("error")
		return domain.ZeroSnapshot(), fmt.Errorf("fetch metrics: %w", err)
	}

	m, err := payload.snapshot()
	if err != nil {
		observability.RecordMetricsFetch("malformed")
		return domain.ZeroSnapshot(), fmt.Errorf("fetch metrics: %w", err)
	}

	observability.RecordMetricsFetch("success")
	return m, nil
}

// FetchMetrics fetches the IPO metrics for identity. It never fails: any
// transport error, non-2xx status or malformed payload yields the zero
// snapshot so the dashboard always has something safe to render.
func (c *HTTPClient) FetchMetrics(ctx context.Context, identity domain.Identity) domain.MetricsSnapshot {
	m, err := c.TryFetchMetrics(ctx, identity)
	if err != nil {
		c.logger.Warn("metrics fetch failed, using zero snapshot",
			zap.String("username", identity.Username),
			zap.Error(err))
		return domain.ZeroSnapshot()
	}
	return m
}

// approvePayload is the /approve-payment request body.
type approvePayload struct {
	PaymentID string      `json:"paymentId"`
	Username  string      `json:"username"`
	Amount    json.Number `json:"amount"`
}

// LedgerAck is the backend's answer to a ledger write.
type LedgerAck struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ReportPayment records a wallet-approved payment in the backend ledger.
// Any failure is a *LedgerSyncError: the payment may have moved on-chain
// without being booked, so callers must surface it.
func (c *HTTPClient) ReportPayment(ctx context.Context, paymentID string, identity domain.Identity, amount decimal.Decimal) error {
	body := approvePayload{
		PaymentID: paymentID,
		Username:  identity.Username,
		Amount:    json.Number(amount.String()),
	}

	var ack LedgerAck
	err := c.do(ctx, http.MethodPost, pathApprove, nil, body, &ack)
	if err == nil && !ack.Success {
		err = fmt.Errorf("ledger rejected payment: %s", ack.Message)
	}
	if err != nil {
		observability.RecordLedgerSync("error")
		c.logger.Error("payment ledger sync failed",
			zap.String("payment_id", paymentID),
			zap.String("username", identity.Username),
			zap.Error(err))
		return &LedgerSyncError{PaymentID: paymentID, Err: err}
	}

	observability.RecordLedgerSync("success")
	c.logger.Info("payment recorded in ledger",
		zap.String("payment_id", paymentID),
		zap.String("username", identity.Username),
		zap.String("amount", amount.String()))
	return nil
}

// WithdrawAck is the backend's acknowledgement of a withdrawal request.
type WithdrawAck struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// withdrawPayload is the /request-withdraw request body.
type withdrawPayload struct {
	Username   string      `json:"username"`
	Percentage json.Number `json:"percentage"`
}

// RequestWithdraw sends a one-shot withdrawal request. The request must
// already be validated by domain.NewWithdrawalRequest.
func (c *HTTPClient) RequestWithdraw(ctx context.Context, req domain.WithdrawalRequest) (WithdrawAck, error) {
	body := withdrawPayload{
		Username:   req.Username,
		Percentage: json.Number(req.Percentage.String()),
	}

	// The ack shape is provider-defined; an empty 2xx body counts as sent.
	var decoded struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, pathWithdraw, nil, body, &decoded)
	if err != nil && !errors.Is(err, errEmptyResponse) {
		observability.RecordWithdrawal("error")
		return WithdrawAck{}, fmt.Errorf("request withdraw: %w", err)
	}

	ack := WithdrawAck{Success: true, Message: decoded.Message}
	if decoded.Success != nil {
		ack.Success = *decoded.Success
	}

	if !ack.Success {
		observability.RecordWithdrawal("declined")
		return ack, fmt.Errorf("request withdraw: backend declined: %s", ack.Message)
	}

	observability.RecordWithdrawal("sent")
	c.logger.Info("withdrawal requested",
		zap.String("username", req.Username),
		zap.String("percentage", req.Percentage.String()))
	return ack, nil
}
