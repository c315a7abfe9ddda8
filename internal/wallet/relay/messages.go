package relay

import (
	"encoding/json"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/wallet"
)

// Commands sent to the page.
const (
	TypeAuthenticate  = "authenticate"
	TypeCreatePayment = "create_payment"
)

// Events sent by the page.
const (
	TypeAuthResult               = "auth_result"
	TypeAuthError                = "auth_error"
	TypeIncompletePayment        = "incomplete_payment"
	TypeReadyForServerApproval   = "ready_for_server_approval"
	TypeReadyForServerCompletion = "ready_for_server_completion"
	TypeCancel                   = "cancel"
	TypeError                    = "error"
	TypeSDKUnavailable           = "sdk_unavailable"
)

var eventTypes = map[string]bool{
	TypeAuthResult:               true,
	TypeAuthError:                true,
	TypeIncompletePayment:        true,
	TypeReadyForServerApproval:   true,
	TypeReadyForServerCompletion: true,
	TypeCancel:                   true,
	TypeError:                    true,
	TypeSDKUnavailable:           true,
}

// IsEvent reports whether a page message of type typ belongs to the relay.
func IsEvent(typ string) bool {
	return eventTypes[typ]
}

// Command is a wallet call forwarded to the Pi SDK in the page.
type Command struct {
	Type    string         `json:"type"`
	ID      string         `json:"id"`
	Scopes  []wallet.Scope `json:"scopes,omitempty"`
	Payment *PaymentConfig `json:"payment,omitempty"`
}

// PaymentConfig is the argument of Pi.createPayment.
type PaymentConfig struct {
	Amount   json.Number       `json:"amount"`
	Memo     string            `json:"memo"`
	Metadata map[string]string `json:"metadata"`
}

func paymentConfig(intent domain.PaymentIntent) *PaymentConfig {
	return &PaymentConfig{
		Amount:   json.Number(intent.Amount.String()),
		Memo:     intent.Memo,
		Metadata: intent.Metadata,
	}
}

// Event is a Pi SDK callback reported by the page. ID is the id of the
// command it answers.
type Event struct {
	Type      string                    `json:"type"`
	ID        string                    `json:"id"`
	PaymentID string                    `json:"paymentId,omitempty"`
	TxID      string                    `json:"txid,omitempty"`
	Message   string                    `json:"message,omitempty"`
	Auth      *wallet.AuthResult        `json:"auth,omitempty"`
	Payment   *wallet.IncompletePayment `json:"payment,omitempty"`
}

func (e Event) terminal() bool {
	switch e.Type {
	case TypeReadyForServerCompletion, TypeCancel, TypeError, TypeSDKUnavailable:
		return true
	}
	return false
}
