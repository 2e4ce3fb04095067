package watch

import "errors"

// Domain-level error values returned by the session manager.
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrForbidden            = errors.New("session owned by another user")
	ErrSessionNotActive     = errors.New("session not active")
	ErrSessionFinalized     = errors.New("session already finalized")
	ErrStaleTick            = errors.New("stale tick")
	ErrContentNotFound      = errors.New("content not found")
	ErrInvalidSessionID     = errors.New("invalid session id")
	ErrInvalidContentID     = errors.New("invalid content id")
	ErrInvalidSessionStatus = errors.New("invalid session status")
	ErrInvalidTick          = errors.New("invalid tick")
	ErrInvalidScope         = errors.New("invalid session scope")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
