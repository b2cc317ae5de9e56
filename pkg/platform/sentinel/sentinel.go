package sentinel

import "errors"

// Facts about stored resources. Stores return these, optionally wrapped, and
// services translate them into decisions or domain errors:
//   - ErrNotFound: no such consent, authorization code or audit chain
//   - ErrAlreadyUsed: authorization code or single-use consent already consumed
//   - ErrExpired: code or consent past its expiry
//   - ErrConflict: a concurrent writer won (lock held, chain head moved)
//   - ErrUnavailable: backend unreachable or timed out
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
