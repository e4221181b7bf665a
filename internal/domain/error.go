package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Payment context lifecycle
	ErrContextNotFound = errors.New("payment context not found")
	ErrContextNotOpen  = errors.New("payment context is not open")
	ErrAlreadyConsumed = errors.New("already consumed")
	ErrExpired         = errors.New("expired")

	// Catalog
	ErrOfferNotFound   = errors.New("offer not found")
	ErrInvalidCategory = errors.New("invalid category")

	// Payment sessions
	ErrSessionNotFound   = errors.New("payment session not found")
	ErrProviderError     = errors.New("payment provider error")
	ErrInvalidTransition = errors.New("invalid state transition")

	// Bearer credentials
	ErrScopeMismatch       = errors.New("credential scope does not cover requested category")
	ErrCorruptCredential   = errors.New("credential record is corrupt")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
)
