package domain

import "errors"

// Validation errors. Intents failing validation never reach the wallet or
// the backend.
var (
	// ErrInvalidAmount is returned for investments below MinInvestment.
	ErrInvalidAmount = errors.New("invalid investment amount")

	// ErrInvalidPercentage is returned for withdrawals outside (0, 100].
	ErrInvalidPercentage = errors.New("invalid withdrawal percentage")

	// ErrNoIdentity is returned when an action needs an authenticated Pioneer.
	ErrNoIdentity = errors.New("no authenticated pioneer")

	// ErrMalformedSnapshot is returned when a metrics payload breaks the data model.
	ErrMalformedSnapshot = errors.New("malformed metrics snapshot")

	// ErrInvalidWalletAddress is returned for wallet addresses that are not Pi account ids.
	ErrInvalidWalletAddress = errors.New("invalid wallet address")
)
