package core

import (
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"shoppay/internal/types"
)

// adminKeyHeader carries the shared admin key on backend refund requests.
const adminKeyHeader = "X-Admin-Key"

// SessionAuth wraps handlers requiring a logged-in shop customer.
//
//  1. Reads the shop session cookie (name from configuration).
//  2. Resolves the cookie token to a session via the SessionResolver.
//  3. Loads the customer behind the session and injects it into the request
//     context via types.WithCustomer.
//  4. Returns 401 with distinct error codes for a missing cookie, an unknown
//     token, and an expired session.
//
// Guests carry no session cookie and are rejected here; the card gateway's
// guest semantics apply to checkout-embedded flows that do not pass through
// the account routes.
func (s *Server) SessionAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Sessions == nil || s.Customers == nil {
			// Not configured (tests without auth wiring): pass through.
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(s.Config.Shop.SessionCookie)
		if err != nil || cookie.Value == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "login required", nil))
			return
		}

		session, err := s.Sessions.Resolve(r.Context(), cookie.Value)
		if err != nil {
			s.handleSessionError(w, r, err)
			return
		}

		customer, err := s.Customers.GetByID(r.Context(), session.CustomerID)
		if err != nil {
			// A session pointing at a vanished customer is treated the same
			// as an unknown session.
			s.Logger.Warn("session resolved but customer load failed",
				slog.Int64("customer_id", session.CustomerID),
				slog.String("error", err.Error()),
			)
			Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "login required", nil))
			return
		}

		ctx := types.WithCustomer(r.Context(), customer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleSessionError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthSessionMissing, types.ErrCodeAuthSessionExpired:
			s.Logger.Warn("session authentication failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error_code", string(appErr.Code)),
			)
			Error(w, r, appErr)
			return
		}
	}

	// Generic error: log it but don't leak internal details.
	s.Logger.Error("session authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "login required", nil))
}

// AdminAuth wraps handlers reserved for the shop's admin backend. The
// backend sends a shared key in the X-Admin-Key header; only its bcrypt hash
// is configured on this service, so a leaked configuration dump does not
// reveal the key itself.
func (s *Server) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(adminKeyHeader)
		if key == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthAdminKey, "admin key required", nil))
			return
		}

		hash := s.Config.Shop.AdminKeyHash.Unmask()
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			s.Logger.Warn("admin authentication failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			Error(w, r, types.NewAppError(types.ErrCodeAuthAdminKey, "invalid admin key", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}
