package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"shoppay/internal/config"
	"shoppay/internal/core"
	"shoppay/internal/types"
)

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

type mockCardService struct {
	cards       []types.StoredCard
	defaultCard *types.StoredCard
	savedCard   *types.StoredCard

	listErr    error
	defaultErr error
	saveErr    error
	deleteErr  error

	saveCalls   []string
	deleteCalls []string
}

func (m *mockCardService) ListCards(ctx context.Context, customer *types.Customer) ([]types.StoredCard, error) {
	return m.cards, m.listErr
}

func (m *mockCardService) DefaultCard(ctx context.Context, customer *types.Customer) (*types.StoredCard, error) {
	return m.defaultCard, m.defaultErr
}

func (m *mockCardService) SaveCard(ctx context.Context, customer *types.Customer, cardToken string) (*types.StoredCard, error) {
	m.saveCalls = append(m.saveCalls, cardToken)
	return m.savedCard, m.saveErr
}

func (m *mockCardService) DeleteCard(ctx context.Context, customer *types.Customer, cardID string) error {
	m.deleteCalls = append(m.deleteCalls, cardID)
	return m.deleteErr
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCardsHandlerForTest(svc CardService) *CardsHandler {
	cfg := &config.Config{}
	cfg.Server.ShopBaseURL = "https://shop.example.com"
	return NewCardsHandler(svc, cfg, core.NewValidator(nil), testLogger())
}

func withCustomer(req *http.Request) *http.Request {
	customer := &types.Customer{
		ID:          17,
		Email:       "anna@example.com",
		FirstName:   "Anna",
		LastName:    "Schmidt",
		AccountMode: types.AccountModePermanent,
	}
	return req.WithContext(types.WithCustomer(req.Context(), customer))
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestCardsList_ReturnsCardsAndDefault(t *testing.T) {
	svc := &mockCardService{
		cards: []types.StoredCard{
			{ID: "card_1", Brand: "Visa", Last4: "4242"},
			{ID: "card_2", Brand: "Mastercard", Last4: "4444"},
		},
		defaultCard: &types.StoredCard{ID: "card_2", Brand: "Mastercard", Last4: "4444"},
	}
	h := newCardsHandlerForTest(svc)

	rec := httptest.NewRecorder()
	req := withCustomer(httptest.NewRequest(http.MethodGet, "/v1/account/cards", nil))

	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data CardListResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Data.Cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(resp.Data.Cards))
	}
	if resp.Data.DefaultCard == nil || resp.Data.DefaultCard.ID != "card_2" {
		t.Errorf("expected default card card_2, got %+v", resp.Data.DefaultCard)
	}
}

func TestCardsList_EmptyListIsNotNull(t *testing.T) {
	svc := &mockCardService{cards: []types.StoredCard{}}
	h := newCardsHandlerForTest(svc)

	rec := httptest.NewRecorder()
	req := withCustomer(httptest.NewRequest(http.MethodGet, "/v1/account/cards", nil))

	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"cards":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestCardsList_MissingCustomerIs401(t *testing.T) {
	h := newCardsHandlerForTest(&mockCardService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/account/cards", nil)

	h.List(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCardsList_StripeFailureIs500(t *testing.T) {
	svc := &mockCardService{
		listErr: types.NewAppError(types.ErrCodeUpstreamStripe, "listSources: Stripe error (500)", nil),
	}
	h := newCardsHandlerForTest(svc)

	rec := httptest.NewRecorder()
	req := withCustomer(httptest.NewRequest(http.MethodGet, "/v1/account/cards", nil))

	h.List(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "upstream_stripe_error") {
		t.Errorf("expected upstream error code in body, got %s", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Save
// ---------------------------------------------------------------------------

func TestCardsSave_ReturnsStoredCard(t *testing.T) {
	svc := &mockCardService{
		savedCard: &types.StoredCard{ID: "card_new", Brand: "Visa", Last4: "4242"},
	}
	h := newCardsHandlerForTest(svc)

	body := bytes.NewBufferString(`{"token":"tok_visa"}`)
	rec := httptest.NewRecorder()
	req := withCustomer(httptest.NewRequest(http.MethodPost, "/v1/account/cards", body))

	h.Save(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.saveCalls) != 1 || svc.saveCalls[0] != "tok_visa" {
		t.Errorf("expected SaveCard called with tok_visa, got %v", svc.saveCalls)
	}
	if !strings.Contains(rec.Body.String(), "card_new") {
		t.Errorf("expected saved card in body, got %s", rec.Body.String())
	}
}

func TestCardsSave_MissingTokenIs400(t *testing.T) {
	svc := &mockCardService{}
	h := newCardsHandlerForTest(svc)

	body := bytes.NewBufferString(`{"token":""}`)
	rec := httptest.NewRecorder()
	req := withCustomer(httptest.NewRequest(http.MethodPost, "/v1/account/cards", body))

	h.Save(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.saveCalls) != 0 {
		t.Errorf("SaveCard must not be called for invalid input")
	}
}

func TestCardsSave_GuestAccountGetsNullCard(t *testing.T) {
	// The service returns nil without error for guest accounts; the response
	// carries a null card and the frontend decides how to render that.
	svc := &mockCardService{savedCard: nil}
	h := newCardsHandlerForTest(svc)

	body := bytes.NewBufferString(`{"token":"tok_visa"}`)
	rec := httptest.NewRecorder()
	req := withCustomer(httptest.NewRequest(http.MethodPost, "/v1/account/cards", body))

	h.Save(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"card":null`) {
		t.Errorf("expected null card, got %s", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestCardsDelete_RedirectsToAccountPage(t *testing.T) {
	svc := &mockCardService{}
	h := newCardsHandlerForTest(svc)

	rec := httptest.NewRecorder()
	req := withCustomer(postForm("/v1/account/cards/delete", url.Values{"cardId": {"card_1"}}))

	h.Delete(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != "https://shop.example.com/account/payments" {
		t.Errorf("unexpected redirect target %q", got)
	}
	if len(svc.deleteCalls) != 1 || svc.deleteCalls[0] != "card_1" {
		t.Errorf("expected DeleteCard called with card_1, got %v", svc.deleteCalls)
	}
}

func TestCardsDelete_MissingCardIDIs400(t *testing.T) {
	svc := &mockCardService{}
	h := newCardsHandlerForTest(svc)

	rec := httptest.NewRecorder()
	req := withCustomer(postForm("/v1/account/cards/delete", url.Values{}))

	h.Delete(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.deleteCalls) != 0 {
		t.Errorf("DeleteCard must not be called without cardId")
	}
}

func TestCardsDelete_ServiceFailurePropagates(t *testing.T) {
	svc := &mockCardService{
		deleteErr: types.NewAppError(types.ErrCodeUpstreamStripe, "deleteSource: Stripe error (500)", nil),
	}
	h := newCardsHandlerForTest(svc)

	rec := httptest.NewRecorder()
	req := withCustomer(postForm("/v1/account/cards/delete", url.Values{"cardId": {"card_1"}}))

	h.Delete(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
