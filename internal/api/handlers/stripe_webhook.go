// This file implements the Stripe webhook endpoint.
//
// The handler is NOT behind auth middleware; it is called directly by
// Stripe. Security is provided by verifying the Stripe-Signature header
// against the endpoint's signing secret.
//
// Only charge.refunded is processed: refunds issued directly in the Stripe
// dashboard bypass the admin refund action, so the webhook writes the audit
// block onto the order's internal comment to keep the refund history in one
// place. All other event types are acknowledged and ignored.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shoppay/internal/core"
	"shoppay/internal/payment"
	"shoppay/internal/types"
)

// maxWebhookBodySize caps a Stripe webhook payload at 64 KB. Stripe events
// are small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// eventChargeRefunded is the only Stripe event type this service consumes.
const eventChargeRefunded = "charge.refunded"

// --- Interfaces for webhook handler dependencies ---

// WebhookVerifier validates a webhook payload signature.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// webhookOrderStore is the order persistence subset the webhook needs.
type webhookOrderStore interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*types.Order, error)
	AppendInternalComment(ctx context.Context, orderID int64, block string) (string, error)
}

// --- Stripe Webhook Handler ---

// StripeWebhookHandler handles asynchronous refund events from Stripe.
type StripeWebhookHandler struct {
	verifier WebhookVerifier
	orders   webhookOrderStore
	secret   string
	logger   *slog.Logger
	now      func() time.Time
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler.
func NewStripeWebhookHandler(verifier WebhookVerifier, orders webhookOrderStore, secret string, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		orders:   orders,
		secret:   secret,
		logger:   logger,
		now:      func() time.Time { return time.Now() },
	}
}

// RegisterRoutes mounts the webhook endpoint. Registered separately from the
// account and admin routes because it carries no auth middleware.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes incoming Stripe webhook events.
//
// Processing failures after signature verification still return 200:
// acknowledging receipt prevents Stripe from retrying an event this service
// cannot apply, and the failure is logged for investigation.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingParam,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, err)
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingParam,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	if event.Type != eventChargeRefunded {
		h.logger.InfoContext(r.Context(), "ignoring unhandled webhook event type",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.handleChargeRefunded(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
	}

	w.WriteHeader(http.StatusOK)
}

// handleChargeRefunded writes the external-refund audit block onto the
// order that carries the refunded charge. Charges unknown to this shop
// (for example from another system sharing the Stripe account) are skipped.
func (h *StripeWebhookHandler) handleChargeRefunded(ctx context.Context, event *stripeWebhookEvent) error {
	charge, err := event.chargeObject()
	if err != nil {
		return err
	}

	order, err := h.orders.GetByTransactionID(ctx, charge.ID)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeNotFoundOrder {
			h.logger.InfoContext(ctx, "refunded charge has no local order, skipping",
				"charge_id", charge.ID,
			)
			return nil
		}
		return err
	}

	refundID := charge.latestRefundID()
	block := payment.BuildExternalRefundBlock(h.now(), charge.AmountRefunded, charge.Currency, refundID)

	if _, err := h.orders.AppendInternalComment(ctx, order.ID, block); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "recorded external refund on order",
		"order_id", order.ID,
		"charge_id", charge.ID,
		"refund_id", refundID,
		"amount_refunded", charge.AmountRefunded,
	)
	return nil
}

// --- Stripe Event Parsing ---

// stripeWebhookEvent is a minimal representation of a Stripe webhook event
// tailored to the fields this service reads. The full stripe.Event type is
// deliberately not imported; the payload subset keeps parsing explicit and
// tests straightforward.
type stripeWebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// stripeChargeObj is the charge subset carried by charge.refunded events.
type stripeChargeObj struct {
	ID             string           `json:"id"`
	AmountRefunded int64            `json:"amount_refunded"`
	Currency       string           `json:"currency"`
	Refunds        stripeRefundList `json:"refunds"`
}

type stripeRefundList struct {
	Data []stripeRefundObj `json:"data"`
}

type stripeRefundObj struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

// chargeObject extracts the charge from the event's data wrapper.
func (e *stripeWebhookEvent) chargeObject() (*stripeChargeObj, error) {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, err
	}
	var charge stripeChargeObj
	if err := json.Unmarshal(data.Object, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

// latestRefundID returns the most recent refund id on the charge. Stripe
// lists refunds newest first.
func (c *stripeChargeObj) latestRefundID() string {
	if len(c.Refunds.Data) == 0 {
		return ""
	}
	return c.Refunds.Data[0].ID
}
