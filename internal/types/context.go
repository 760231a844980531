package types

import "context"

// Context keys are unexported struct-free string types to avoid collisions
// with other packages' context values.
type contextKey string

const (
	customerKey  contextKey = "customer"
	requestIDKey contextKey = "request_id"
)

// WithCustomer stores the authenticated shop customer in the context.
// Set by the session middleware for account-facing routes.
func WithCustomer(ctx context.Context, customer *Customer) context.Context {
	return context.WithValue(ctx, customerKey, customer)
}

// GetCustomer retrieves the authenticated shop customer from the context.
func GetCustomer(ctx context.Context) (*Customer, bool) {
	customer, ok := ctx.Value(customerKey).(*Customer)
	return customer, ok && customer != nil
}

// WithRequestID stores the request correlation ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request correlation ID from the context.
// Returns the empty string when no ID has been set.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
