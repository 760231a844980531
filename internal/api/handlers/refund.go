// This file implements the admin refund action. It is mounted behind the
// admin key middleware and deliberately does NOT use the standard API
// envelope: the shop backoffice expects the historical view-model shape of
// a success flag plus either the updated internal comment or a failure
// message.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shoppay/internal/external"
	"shoppay/internal/payment"
	"shoppay/internal/types"
)

// --- Service Interfaces ---

// refundStripeAPI is the provider subset the refund action needs.
type refundStripeAPI interface {
	// RefundCharge refunds the given amount in minor currency units.
	RefundCharge(ctx context.Context, chargeID string, amountMinor int64) (*external.StripeRefund, error)
}

// refundOrderStore is the order persistence subset the refund action needs.
type refundOrderStore interface {
	GetByID(ctx context.Context, id int64) (*types.Order, error)
	AppendInternalComment(ctx context.Context, orderID int64, block string) (string, error)
}

// --- Refund Handler ---

// RefundRequest is the request body for POST /v1/admin/orders/refund.
// Pointer fields distinguish absent parameters from zero values so the
// handler can name the missing field.
type RefundRequest struct {
	OrderID   *int64                 `json:"orderId"`
	Amount    *float64               `json:"amount"`
	Positions []types.RefundPosition `json:"positions"`
	Comment   string                 `json:"comment"`
}

// RefundResponse is the backoffice view model. On success InternalComment
// carries the full updated comment text; on failure Message explains why.
type RefundResponse struct {
	Success         bool   `json:"success"`
	InternalComment string `json:"internalComment,omitempty"`
	Message         string `json:"message,omitempty"`
}

// RefundHandler processes partial and full refunds initiated from the shop
// backoffice.
type RefundHandler struct {
	stripe   refundStripeAPI
	orders   refundOrderStore
	currency string
	logger   *slog.Logger
	now      func() time.Time
}

// NewRefundHandler creates a new RefundHandler. currency is the shop's ISO
// currency code used to format amounts in the comment block.
func NewRefundHandler(stripe refundStripeAPI, orders refundOrderStore, currency string, l *slog.Logger) *RefundHandler {
	if l == nil {
		l = slog.Default()
	}
	return &RefundHandler{
		stripe:   stripe,
		orders:   orders,
		currency: currency,
		logger:   l,
		now:      func() time.Time { return time.Now() },
	}
}

// RegisterRoutes mounts the refund endpoint. Admin key middleware is applied
// by the parent router.
func (h *RefundHandler) RegisterRoutes(r chi.Router) {
	r.Post("/admin/orders/refund", h.Refund)
}

// Refund handles POST /v1/admin/orders/refund.
//
// The action is a linear, non-retryable sequence:
//  1. Validate orderId, positive amount, non-empty positions (400).
//  2. Load the order (404 if absent).
//  3. Require a Stripe charge id on the order (404 if absent).
//  4. Refund via Stripe in minor units; any provider failure is returned
//     as 500 with the provider's message.
//  5. Append the formatted refund block to the order's internal comment and
//     return it. There is no compensation path: if persistence fails after
//     the refund went through, the refund stands and the error is surfaced.
func (h *RefundHandler) Refund(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRefundRequest(r)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if req.OrderID == nil {
		h.fail(w, r, http.StatusBadRequest, `Required parameter "orderId" not found`)
		return
	}
	if req.Amount == nil || *req.Amount <= 0 {
		h.fail(w, r, http.StatusBadRequest, "Amount must be greater than zero")
		return
	}
	if len(req.Positions) == 0 {
		h.fail(w, r, http.StatusBadRequest, `Required parameter "positions" not found`)
		return
	}

	order, err := h.orders.GetByID(r.Context(), *req.OrderID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundOrder {
			h.fail(w, r, http.StatusNotFound, fmt.Sprintf("Order %d not found", *req.OrderID))
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to load order for refund",
			"order_id", *req.OrderID,
			"error", err,
		)
		h.fail(w, r, http.StatusInternalServerError, "Failed to load order")
		return
	}

	if order.TransactionID == "" {
		h.fail(w, r, http.StatusNotFound, fmt.Sprintf("Order %d has no Stripe charge", order.ID))
		return
	}

	amountMinor := payment.ToMinorUnits(*req.Amount)

	refund, err := h.stripe.RefundCharge(r.Context(), order.TransactionID, amountMinor)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stripe refund failed",
			"order_id", order.ID,
			"charge_id", order.TransactionID,
			"amount_minor", amountMinor,
			"error", err,
		)
		h.fail(w, r, http.StatusInternalServerError, refundFailureMessage(err))
		return
	}

	h.logger.InfoContext(r.Context(), "stripe refund issued",
		"order_id", order.ID,
		"charge_id", order.TransactionID,
		"refund_id", refund.ID,
		"amount_minor", amountMinor,
	)

	block := payment.BuildRefundBlock(h.now(), *req.Amount, h.currency, req.Comment, req.Positions)

	updated, err := h.orders.AppendInternalComment(r.Context(), order.ID, block)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "refund succeeded but comment persistence failed",
			"order_id", order.ID,
			"refund_id", refund.ID,
			"error", err,
		)
		h.fail(w, r, http.StatusInternalServerError, "Refund issued but order comment could not be updated")
		return
	}

	writeRefundResponse(w, http.StatusOK, RefundResponse{
		Success:         true,
		InternalComment: updated,
	})
}

// decodeRefundRequest parses the request body without the shared DecodeJSON
// helper so that malformed input still answers in the backoffice view-model
// shape.
func decodeRefundRequest(r *http.Request) (*RefundRequest, error) {
	var req RefundRequest
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		return nil, errors.New("Request body must be valid JSON")
	}
	return &req, nil
}

// refundFailureMessage extracts the provider's own message when the failure
// carries one; the backoffice shows it to the operator verbatim.
func refundFailureMessage(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

func (h *RefundHandler) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "refund action failed", "status", status, "message", message)
	} else {
		h.logger.WarnContext(r.Context(), "refund action rejected", "status", status, "message", message)
	}
	writeRefundResponse(w, status, RefundResponse{Success: false, Message: message})
}

func writeRefundResponse(w http.ResponseWriter, status int, resp RefundResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
