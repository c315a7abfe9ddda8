package storage

import "errors"

var (
	// ErrNotFound is returned for an unknown session token or record.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a payment event for the same
	// payment and phase was already recorded.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned for records missing a required field.
	ErrInvalidInput = errors.New("invalid input")
)
