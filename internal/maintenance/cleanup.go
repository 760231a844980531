// Package maintenance implements background upkeep for the gateway's own
// tables. The only job today is expired-session cleanup; the session table
// would otherwise grow without bound since logins happen on every visit but
// tokens are only deleted on explicit logout.
package maintenance

import (
	"context"
	"log/slog"
	"time"
)

// defaultInterval is how often the cleanup loop runs.
const defaultInterval = 15 * time.Minute

// SessionStore defines the database operations the cleanup service needs.
type SessionStore interface {
	// DeleteExpired removes sessions expired before now and returns the
	// number of rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// CleanupResult reports what a single cleanup pass removed.
type CleanupResult struct {
	SessionsDeleted int
}

// CleanupService periodically purges expired sessions.
type CleanupService struct {
	sessions SessionStore
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewCleanupService creates a CleanupService running at the default interval.
func NewCleanupService(sessions SessionStore, logger *slog.Logger) *CleanupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		sessions: sessions,
		logger:   logger,
		interval: defaultInterval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce performs a single cleanup pass relative to the given reference
// time. Accepting now as a parameter keeps the pass deterministic in tests
// and allows manual backfill runs.
func (s *CleanupService) RunOnce(ctx context.Context, now time.Time) (CleanupResult, error) {
	deleted, err := s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return CleanupResult{}, err
	}

	if deleted > 0 {
		s.logger.InfoContext(ctx, "purged expired sessions", "deleted", deleted)
	}
	return CleanupResult{SessionsDeleted: deleted}, nil
}

// Run executes cleanup passes until the context is cancelled. Failures are
// logged and the loop keeps going; a transient database error must not stop
// future passes.
func (s *CleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx, s.now()); err != nil {
				s.logger.ErrorContext(ctx, "session cleanup pass failed", "error", err)
			}
		}
	}
}
