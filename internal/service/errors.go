package service

import "errors"

var (
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthenticated indicates a missing or unverifiable credential.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrTokenRevoked indicates the token is on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrSwipeConflict indicates the swipe transaction could not be committed.
	ErrSwipeConflict = errors.New("swipe could not be recorded, try again")
)
