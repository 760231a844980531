package core

import (
	"context"

	"shoppay/internal/types"
)

// SessionResolver decouples the HTTP layer from the session store, allowing
// for easy mocking in tests. Implemented by db.SessionRepository.
type SessionResolver interface {
	// Resolve returns the session for the given cookie token. Unknown tokens
	// yield ErrCodeAuthSessionMissing, expired ones ErrCodeAuthSessionExpired.
	Resolve(ctx context.Context, token string) (*types.Session, error)
}

// CustomerLoader loads the shop customer behind an authenticated session.
// Implemented by db.CustomerRepository.
type CustomerLoader interface {
	GetByID(ctx context.Context, id int64) (*types.Customer, error)
}
