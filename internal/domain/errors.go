package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrOrderTerminal = errors.New("order in terminal state")
	ErrDuplicateFill = errors.New("fill already applied")
	ErrLockHeld      = errors.New("lock already held")
	ErrOrderTimeout  = errors.New("order confirmation timed out")
	ErrContextDone   = errors.New("context cancelled")
)
