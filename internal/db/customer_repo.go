package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"shoppay/internal/types"
)

// CustomerRepository provides data access for the shop's customers table and
// the customer attribute row that carries the Stripe customer id.
type CustomerRepository struct {
	db DBTX
}

// NewCustomerRepository creates a new CustomerRepository backed by the given
// database connection (pool or transaction).
func NewCustomerRepository(db DBTX) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// customerColumns is the standard column set for customer queries, used
// consistently to avoid column drift between query methods.
const customerColumns = `c.id, c.email, c.first_name, c.last_name, c.account_mode, c.created_at`

func scanCustomer(row pgx.Row) (*types.Customer, error) {
	var customer types.Customer
	err := row.Scan(
		&customer.ID,
		&customer.Email,
		&customer.FirstName,
		&customer.LastName,
		&customer.AccountMode,
		&customer.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetByID retrieves a customer by its numeric id.
// Returns ErrCodeNotFoundCustomer if no such customer exists.
func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*types.Customer, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+customerColumns+`
		 FROM customers c
		 WHERE c.id = $1`,
		id,
	)

	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundCustomer, "customer not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve customer", err)
	}
	return customer, nil
}

// GetStripeCustomerID returns the Stripe customer id stored on the customer's
// attribute row, or the empty string when none has been assigned yet.
func (r *CustomerRepository) GetStripeCustomerID(ctx context.Context, customerID int64) (string, error) {
	var stripeCustomerID *string
	err := r.db.QueryRow(ctx,
		`SELECT a.stripe_customer_id
		 FROM customer_attributes a
		 WHERE a.customer_id = $1`,
		customerID,
	).Scan(&stripeCustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve stripe customer id", err)
	}
	if stripeCustomerID == nil {
		return "", nil
	}
	return *stripeCustomerID, nil
}

// ReplaceStripeCustomerID overwrites the stored Stripe customer id
// unconditionally. Used when the stored id turned out to reference a customer
// Stripe has deleted and a fresh one was minted in its place.
func (r *CustomerRepository) ReplaceStripeCustomerID(ctx context.Context, customerID int64, stripeCustomerID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO customer_attributes (customer_id, stripe_customer_id)
		 VALUES ($1, $2)
		 ON CONFLICT (customer_id)
		 DO UPDATE SET stripe_customer_id = EXCLUDED.stripe_customer_id`,
		customerID,
		stripeCustomerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to replace stripe customer id", err)
	}
	return nil
}

// SetStripeCustomerID persists the Stripe customer id on the customer's
// attribute row. The upsert is write-once: an already stored id is never
// overwritten, which keeps the one-Stripe-customer-per-customer rule intact
// even if two card saves race on first use.
func (r *CustomerRepository) SetStripeCustomerID(ctx context.Context, customerID int64, stripeCustomerID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO customer_attributes (customer_id, stripe_customer_id)
		 VALUES ($1, $2)
		 ON CONFLICT (customer_id)
		 DO UPDATE SET stripe_customer_id = COALESCE(customer_attributes.stripe_customer_id, EXCLUDED.stripe_customer_id)`,
		customerID,
		stripeCustomerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store stripe customer id", err)
	}
	return nil
}
