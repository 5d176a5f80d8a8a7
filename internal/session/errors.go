package session

import "errors"

// Sentinel errors for store operations. Check with errors.Is.
var (
	// ErrNotFound covers every "absent" outcome: the session does not
	// exist, has expired, or is owned by a different user. Callers cannot
	// distinguish these cases.
	ErrNotFound = errors.New("session not found")

	// ErrOwnerMismatch indicates the session exists but belongs to a
	// different user. The orchestrator rejects such turns outright; the
	// HTTP surface maps this to the same not-found response as ErrNotFound
	// so ownership is never probeable from outside.
	ErrOwnerMismatch = errors.New("session owned by a different user")

	// ErrClosed indicates the store has been shut down.
	ErrClosed = errors.New("session store closed")
)
