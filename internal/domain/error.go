package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrAlreadyResolved    = errors.New("session already resolved")
	ErrSessionNotFound    = errors.New("payment session not found")
	ErrMissingPaymentRef  = errors.New("neither payment id nor preference id is known")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
