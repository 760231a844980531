package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"shoppay/internal/types"
)

// OrderRepository provides data access for the shop's orders table. The
// internal comment column is the refund audit trail; this repository only
// ever appends to it.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new OrderRepository backed by the given
// database connection (pool or transaction).
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `o.id, o.order_number, o.transaction_id, o.invoice_amount,
	o.currency, o.internal_comment, o.created_at`

func scanOrder(row pgx.Row) (*types.Order, error) {
	var order types.Order
	var transactionID, internalComment *string

	err := row.Scan(
		&order.ID,
		&order.Number,
		&transactionID,
		&order.InvoiceAmount,
		&order.Currency,
		&internalComment,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if transactionID != nil {
		order.TransactionID = *transactionID
	}
	if internalComment != nil {
		order.InternalComment = *internalComment
	}
	return &order, nil
}

// GetByID retrieves an order by its numeric id.
// Returns ErrCodeNotFoundOrder if no such order exists.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*types.Order, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 WHERE o.id = $1`,
		id,
	)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve order", err)
	}
	return order, nil
}

// GetByTransactionID retrieves the order that recorded the given Stripe
// charge id at checkout time. Used by the webhook receiver to correlate
// charge events back to orders.
func (r *OrderRepository) GetByTransactionID(ctx context.Context, transactionID string) (*types.Order, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 WHERE o.transaction_id = $1`,
		transactionID,
	)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "no order for transaction", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve order by transaction", err)
	}
	return order, nil
}

// AppendInternalComment concatenates the given block onto the order's
// internal comment atomically and returns the resulting text. The append
// happens in SQL so concurrent refunds on the same order cannot lose each
// other's blocks.
func (r *OrderRepository) AppendInternalComment(ctx context.Context, orderID int64, block string) (string, error) {
	var newComment string
	err := r.db.QueryRow(ctx,
		`UPDATE orders
		 SET internal_comment = COALESCE(internal_comment, '') || $2
		 WHERE id = $1
		 RETURNING internal_comment`,
		orderID,
		block,
	).Scan(&newComment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to append internal comment", err)
	}
	return newComment, nil
}
