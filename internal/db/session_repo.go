package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"shoppay/internal/types"
)

// SessionRepository provides data access for the shop's login sessions.
// The shop platform creates sessions during login; this service resolves
// session cookies to customer ids and may mint sessions in tests and tools.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository backed by the given
// database connection (pool or transaction).
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session for the given customer and returns it.
// The token is a fresh random UUID.
func (r *SessionRepository) Create(ctx context.Context, customerID int64, ttl time.Duration) (*types.Session, error) {
	session := &types.Session{
		Token:      uuid.NewString(),
		CustomerID: customerID,
		ExpiresAt:  time.Now().UTC().Add(ttl),
		CreatedAt:  time.Now().UTC(),
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (token, customer_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.Token,
		session.CustomerID,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return session, nil
}

// Resolve looks up the session for the given token and returns it if it has
// not expired. Expired or unknown tokens yield ErrCodeAuthSessionExpired and
// ErrCodeAuthSessionMissing respectively.
func (r *SessionRepository) Resolve(ctx context.Context, token string) (*types.Session, error) {
	var session types.Session
	err := r.db.QueryRow(ctx,
		`SELECT s.token, s.customer_id, s.expires_at, s.created_at
		 FROM sessions s
		 WHERE s.token = $1`,
		token,
	).Scan(&session.Token, &session.CustomerID, &session.ExpiresAt, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthSessionMissing, "unknown session", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve session", err)
	}

	if session.Expired(time.Now().UTC()) {
		return nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "session expired", nil)
	}
	return &session, nil
}

// Delete removes the session for the given token. Deleting an unknown token
// is not an error.
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry lies before the given time and
// returns the number of rows removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired sessions", err)
	}
	return int(tag.RowsAffected()), nil
}
