package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinInvestment is the smallest accepted investment in Pi.
var MinInvestment = decimal.NewFromInt(1)

var maxWithdrawPct = decimal.NewFromInt(100)

// Payment metadata attached to every IPO investment.
const (
	PaymentTypeIPOInvestment = "IPO_INVESTMENT"
	PaymentProject           = "MapCap"
)

// PaymentIntent is a user-submitted investment. It is discarded after a
// terminal phase and never retried automatically.
type PaymentIntent struct {
	Amount    decimal.Decimal   `json:"amount"`
	PaymentID string            `json:"paymentId,omitempty"` // assigned by the wallet
	Memo      string            `json:"memo"`
	Metadata  map[string]string `json:"metadata"`
}

// NewInvestmentIntent validates amount and builds the intent submitted to the wallet.
func NewInvestmentIntent(amount decimal.Decimal) (PaymentIntent, error) {
	if err := ValidateInvestment(amount); err != nil {
		return PaymentIntent{}, err
	}
	return PaymentIntent{
		Amount: amount,
		Memo:   fmt.Sprintf("Investment in MapCap IPO Phase - %s Pi", amount.String()),
		Metadata: map[string]string{
			"type":    PaymentTypeIPOInvestment,
			"project": PaymentProject,
		},
	}, nil
}

// ValidateInvestment rejects amounts below MinInvestment.
func ValidateInvestment(amount decimal.Decimal) error {
	if amount.LessThan(MinInvestment) {
		return fmt.Errorf("%w: %s pi is below the minimum of %s pi", ErrInvalidAmount, amount, MinInvestment)
	}
	return nil
}

// WithdrawalRequest asks the backend to refund a share of the Pioneer's
// contribution (A2UaaS). One-shot: sent or failed.
type WithdrawalRequest struct {
	Username   string          `json:"username"`
	Percentage decimal.Decimal `json:"percentage"`
}

// NewWithdrawalRequest validates percentage in (0, 100] and builds the request.
func NewWithdrawalRequest(username string, percentage decimal.Decimal) (WithdrawalRequest, error) {
	if err := ValidateWithdrawal(percentage); err != nil {
		return WithdrawalRequest{}, err
	}
	if strings.TrimSpace(username) == "" {
		return WithdrawalRequest{}, ErrNoIdentity
	}
	return WithdrawalRequest{Username: username, Percentage: percentage}, nil
}

// ValidateWithdrawal rejects percentages outside (0, 100].
func ValidateWithdrawal(percentage decimal.Decimal) error {
	if !percentage.IsPositive() || percentage.GreaterThan(maxWithdrawPct) {
		return fmt.Errorf("%w: %s%% is outside (0, 100]", ErrInvalidPercentage, percentage)
	}
	return nil
}

// PaymentEvent is one audited transition of an investment payment.
// Corresponds to payment_events table in PostgreSQL.
type PaymentEvent struct {
	PaymentID  string          // wallet payment id; empty before approval
	Username   string          // Pioneer who initiated the payment
	Amount     decimal.Decimal // intent amount
	Phase      string          // phase entered by the transition
	TxID       string          // blockchain transaction id (completion only)
	Detail     string          // error or cancellation detail
	RecordedAt int64           // when the transition was observed (ms)
}
