package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateBet    = errors.New("duplicate bet transaction")
	ErrBettingClosed   = errors.New("betting closed")
	ErrBetTooSmall     = errors.New("minimum bet not met")
	ErrAlreadyResolved = errors.New("bet already resolved")
	ErrInvalidStatus   = errors.New("invalid round status transition")
	ErrTxFailed        = errors.New("transaction reverted")
	ErrFeedUnavailable = errors.New("price feed unavailable")
	ErrPoolExceeded    = errors.New("agent pool exceeded")
	ErrLockHeld        = errors.New("lock already held")
)
