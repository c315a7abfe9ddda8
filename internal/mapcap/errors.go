package mapcap

import (
	"errors"
	"fmt"
)

// ErrLedgerSync matches every *LedgerSyncError via errors.Is.
var ErrLedgerSync = errors.New("payment ledger sync failed")

// LedgerSyncError reports that a wallet-approved payment could not be
// recorded by the backend. The payment may have cleared on-chain, so the
// Pioneer must keep the payment id.
type LedgerSyncError struct {
	PaymentID string
	Err       error
}

func (e *LedgerSyncError) Error() string {
	return fmt.Sprintf("payment %s may have cleared on-chain but was not recorded in the MapCap ledger; keep this payment id for support: %v",
		e.PaymentID, e.Err)
}

func (e *LedgerSyncError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrLedgerSync) true for any LedgerSyncError.
func (e *LedgerSyncError) Is(target error) bool {
	return target == ErrLedgerSync
}
