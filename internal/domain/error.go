package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrConcurrentUpdate = errors.New("concurrent update conflict")

	// Payment taxonomy
	ErrValidation         = errors.New("validation failed")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected request")
	ErrInvalidPayload     = errors.New("invalid gateway payload")
	ErrStateConflict      = errors.New("transaction state conflict")
	ErrStorage            = errors.New("storage operation failed")
	ErrRateLimited        = errors.New("too many requests")

	// ErrAlreadyApplied is returned by subscription mutations when the
	// transaction id is already recorded on the subscription.
	ErrAlreadyApplied = errors.New("transaction already applied to subscription")
)
