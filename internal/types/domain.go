// Package types defines the domain model shared across the ShopPay service:
// shop entities mirrored from the platform database (customers, orders,
// sessions), the read-only Stripe card projection, and the application error
// model. Packages communicate through these types instead of leaking
// database rows or raw Stripe payloads across layer boundaries.
package types

import (
	"strings"
	"time"
)

// AccountMode distinguishes permanent shop accounts from one-off guest
// checkouts. The numeric values match the shop platform's customer table.
type AccountMode int

const (
	// AccountModePermanent is a registered customer account.
	AccountModePermanent AccountMode = 0
	// AccountModeGuest is a checkout-only account without credentials.
	// Guest customers never get a Stripe customer record.
	AccountModeGuest AccountMode = 1
)

// Customer is the shop platform's customer record, loaded from the platform
// database. The Stripe customer id is deliberately NOT a field here: it lives
// in the customer attribute row and is read/written through
// CustomerRepository so that the write-once rule has a single enforcement
// point.
type Customer struct {
	ID          int64
	Email       string
	FirstName   string
	LastName    string
	AccountMode AccountMode
	CreatedAt   time.Time
}

// HasPermanentAccount reports whether the customer may have cards stored.
func (c *Customer) HasPermanentAccount() bool {
	return c != nil && c.AccountMode == AccountModePermanent
}

// DisplayName derives the name used for the Stripe customer record.
func (c *Customer) DisplayName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Order is the shop platform's order record. TransactionID holds the Stripe
// charge id recorded at checkout time; it is empty for orders paid through
// other payment providers.
type Order struct {
	ID              int64
	Number          string
	TransactionID   string
	InvoiceAmount   float64
	Currency        string
	InternalComment string
	CreatedAt       time.Time
}

// StoredCard is the read-only projection of a Stripe card source. It mirrors
// exactly the field subset the account pages render; it is never persisted
// locally and is re-fetched from Stripe on every request.
type StoredCard struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"expMonth"`
	ExpYear  int    `json:"expYear"`
}

// RefundPosition is a transient, request-scoped projection of an order
// position selected for partial refund. It exists only to build the
// human-readable refund block appended to the order's internal comment and is
// never stored as its own entity.
type RefundPosition struct {
	ID            int64   `json:"id,omitempty"`
	ArticleNumber string  `json:"articleNumber"`
	Name          string  `json:"name,omitempty"`
	Quantity      int     `json:"quantity"`
	Price         float64 `json:"price"`
	Total         float64 `json:"total"`
}

// Session is a shop login session. The token is the opaque value stored in
// the session cookie; the platform owns session creation during login, this
// service only resolves tokens to customer ids.
type Session struct {
	Token      string
	CustomerID int64
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
