package domain

import (
	"errors"
	"fmt"
)

var (
	ErrLockHeld             = errors.New("lock already held")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrProvider             = errors.New("provider error")
	ErrPersistence          = errors.New("persistence error")

	// ErrInvalidQuote is a provider error for a non-positive price.
	ErrInvalidQuote = fmt.Errorf("%w: invalid quote", ErrProvider)
)
