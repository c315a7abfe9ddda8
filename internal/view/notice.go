package view

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/mapcap"
	"mapcap-ipo/internal/wallet"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a message shown after a user action.
type Notice struct {
	Level     Level  `json:"level"`
	Text      string `json:"text"`
	PaymentID string `json:"paymentId,omitempty"`
}

// InvestmentNotice describes the outcome of an investment. A cancelled
// payment is informational; a ledger sync failure is an error carrying the
// payment id the Pioneer must keep.
func InvestmentNotice(phase wallet.Phase, paymentID string, err error) Notice {
	var syncErr *mapcap.LedgerSyncError
	var sdkErr *wallet.SDKError

	switch {
	case errors.As(err, &syncErr):
		return Notice{
			Level: LevelError,
			Text: fmt.Sprintf("Your payment %s may have cleared on the Pi blockchain but was not recorded in the MapCap ledger. Keep this payment id and contact support.",
				syncErr.PaymentID),
			PaymentID: syncErr.PaymentID,
		}
	case errors.Is(err, domain.ErrInvalidAmount):
		return Notice{Level: LevelWarning, Text: fmt.Sprintf("Minimum investment is %s Pi.", domain.MinInvestment)}
	case errors.Is(err, domain.ErrNoIdentity):
		return Notice{Level: LevelWarning, Text: "Please authenticate first."}
	case errors.Is(err, wallet.ErrSDKUnavailable):
		return Notice{Level: LevelWarning, Text: SDKMissingWarning}
	case errors.As(err, &sdkErr):
		return Notice{Level: LevelError, Text: "Wallet error: " + sdkErr.Err.Error(), PaymentID: sdkErr.PaymentID}
	case err != nil:
		return Notice{Level: LevelError, Text: "Investment interrupted: " + err.Error(), PaymentID: paymentID}
	}

	switch phase {
	case wallet.PhaseCancelled:
		return Notice{Level: LevelInfo, Text: "Payment cancelled. No Pi was transferred.", PaymentID: paymentID}
	case wallet.PhaseCompleted:
		return Notice{Level: LevelSuccess, Text: "Investment Securely Logged in MapCap Ledger!", PaymentID: paymentID}
	default:
		return Notice{Level: LevelInfo, Text: "Investment submitted. Waiting for blockchain confirmation.", PaymentID: paymentID}
	}
}

// WithdrawalNotice describes the outcome of a withdrawal request.
func WithdrawalNotice(username string, percentage decimal.Decimal, err error) Notice {
	switch {
	case errors.Is(err, domain.ErrInvalidPercentage):
		return Notice{Level: LevelWarning, Text: "Withdrawal percentage must be greater than 0 and at most 100."}
	case errors.Is(err, domain.ErrNoIdentity):
		return Notice{Level: LevelWarning, Text: "Please authenticate first."}
	case err != nil:
		return Notice{Level: LevelError, Text: "Withdrawal failed: " + err.Error()}
	}
	return Notice{
		Level: LevelSuccess,
		Text:  fmt.Sprintf("Withdrawal of %s%% initiated for @%s. Check your Pi Wallet shortly.", percentage, username),
	}
}
