package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shoppay/internal/types"
)

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

type mockWebhookVerifier struct {
	shouldFail bool
}

func (m *mockWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	if m.shouldFail {
		return types.NewAppError(types.ErrCodeWebhookSignature, "webhook signature verification failed", nil)
	}
	return nil
}

type mockWebhookOrderStore struct {
	order  *types.Order
	getErr error

	lookups     []string
	appendCalls []appendCall
	appendErr   error
}

func (m *mockWebhookOrderStore) GetByTransactionID(ctx context.Context, transactionID string) (*types.Order, error) {
	m.lookups = append(m.lookups, transactionID)
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.order, nil
}

func (m *mockWebhookOrderStore) AppendInternalComment(ctx context.Context, orderID int64, block string) (string, error) {
	m.appendCalls = append(m.appendCalls, appendCall{OrderID: orderID, Block: block})
	if m.appendErr != nil {
		return "", m.appendErr
	}
	return block, nil
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

// buildStripeEvent creates a JSON-encoded Stripe event payload.
func buildStripeEvent(eventType, eventID string, dataObject interface{}) []byte {
	objBytes, _ := json.Marshal(dataObject)
	event := map[string]interface{}{
		"id":      eventID,
		"type":    eventType,
		"created": time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC).Unix(),
		"data": map[string]interface{}{
			"object": json.RawMessage(objBytes),
		},
	}
	b, _ := json.Marshal(event)
	return b
}

func buildChargeRefundedEvent(chargeID string, amountRefunded int64, refundID string) []byte {
	return buildStripeEvent(eventChargeRefunded, "evt_1", map[string]interface{}{
		"id":              chargeID,
		"amount_refunded": amountRefunded,
		"currency":        "eur",
		"refunds": map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": refundID, "amount": amountRefunded},
			},
		},
	})
}

func newWebhookHandlerForTest(verifier WebhookVerifier, orders webhookOrderStore) *StripeWebhookHandler {
	h := NewStripeWebhookHandler(verifier, orders, "whsec_test", testLogger())
	h.now = func() time.Time {
		return time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	}
	return h
}

func postWebhook(h *StripeWebhookHandler, payload []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	h.Handle(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestWebhook_InvalidSignatureIs400(t *testing.T) {
	orders := &mockWebhookOrderStore{}
	h := newWebhookHandlerForTest(&mockWebhookVerifier{shouldFail: true}, orders)

	rec := postWebhook(h, buildChargeRefundedEvent("ch_3Abc", 1000, "re_1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "webhook_signature_invalid") {
		t.Errorf("expected signature error code, got %s", rec.Body.String())
	}
	if len(orders.lookups) != 0 {
		t.Error("order store must not be touched for unverified payloads")
	}
}

func TestWebhook_UnhandledEventTypeIsAcknowledged(t *testing.T) {
	orders := &mockWebhookOrderStore{}
	h := newWebhookHandlerForTest(&mockWebhookVerifier{}, orders)

	rec := postWebhook(h, buildStripeEvent("invoice.paid", "evt_2", map[string]interface{}{}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(orders.lookups) != 0 {
		t.Error("unhandled events must not reach the order store")
	}
}

func TestWebhook_ChargeRefundedAppendsAuditBlock(t *testing.T) {
	orders := &mockWebhookOrderStore{
		order: &types.Order{ID: 42, Number: "20042", TransactionID: "ch_3Abc"},
	}
	h := newWebhookHandlerForTest(&mockWebhookVerifier{}, orders)

	rec := postWebhook(h, buildChargeRefundedEvent("ch_3Abc", 1000, "re_1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(orders.lookups) != 1 || orders.lookups[0] != "ch_3Abc" {
		t.Fatalf("expected lookup by charge id, got %v", orders.lookups)
	}
	if len(orders.appendCalls) != 1 {
		t.Fatalf("expected 1 append call, got %d", len(orders.appendCalls))
	}
	if orders.appendCalls[0].OrderID != 42 {
		t.Errorf("expected append on order 42, got %d", orders.appendCalls[0].OrderID)
	}
	if !strings.Contains(orders.appendCalls[0].Block, "re_1") {
		t.Errorf("expected refund id in audit block, got %q", orders.appendCalls[0].Block)
	}
}

func TestWebhook_UnknownChargeIsSkipped(t *testing.T) {
	orders := &mockWebhookOrderStore{
		getErr: types.NewAppError(types.ErrCodeNotFoundOrder, "no order for transaction", nil),
	}
	h := newWebhookHandlerForTest(&mockWebhookVerifier{}, orders)

	rec := postWebhook(h, buildChargeRefundedEvent("ch_other_shop", 500, "re_9"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown charge, got %d", rec.Code)
	}
	if len(orders.appendCalls) != 0 {
		t.Error("no comment must be written for charges without a local order")
	}
}

func TestWebhook_ProcessingFailureStillAcknowledges(t *testing.T) {
	orders := &mockWebhookOrderStore{
		order:     &types.Order{ID: 42, TransactionID: "ch_3Abc"},
		appendErr: errors.New("connection lost"),
	}
	h := newWebhookHandlerForTest(&mockWebhookVerifier{}, orders)

	rec := postWebhook(h, buildChargeRefundedEvent("ch_3Abc", 1000, "re_1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite processing failure, got %d", rec.Code)
	}
}
