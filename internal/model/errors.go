package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced transaction does not exist.
	ErrNotFound = errors.New("transaction not found")
	// ErrNotRental is returned when the transaction exists but is not a rental.
	// It matches ErrNotFound as well.
	ErrNotRental = fmt.Errorf("%w: kind is not RENTAL", ErrNotFound)
	// ErrValidation marks malformed input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when a unique business key is already taken.
	ErrConflict = errors.New("already exists")
	// ErrPersistence wraps storage failures; the surrounding storage transaction was rolled back.
	ErrPersistence = errors.New("persistence failure")
)
