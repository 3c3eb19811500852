package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound    = fmt.Errorf("order %w", ErrNotFound)

	ErrInactiveResource    = errors.New("resource inactive")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrPaymentDeclined     = errors.New("payment declined")
	ErrInvalidCancellation = errors.New("invalid cancellation")
	ErrInvalidTransition   = errors.New("invalid status transition")

	// ErrPersistenceConflict is returned to the loser of a race on the same
	// idempotency key.
	ErrPersistenceConflict = errors.New("persistence conflict")

	ErrInvalidRequest = errors.New("invalid request")
)
