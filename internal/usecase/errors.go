package usecase

import "errors"

var (
	// ErrIncompleteConfiguration means an account lacks its URL, username or password.
	ErrIncompleteConfiguration = errors.New("incomplete configuration")
	// ErrAccountNotFound is returned for unknown account ids.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidAccount wraps validation failures of account input.
	ErrInvalidAccount = errors.New("invalid account")
)
