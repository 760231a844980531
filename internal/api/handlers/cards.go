// Package handlers contains the HTTP handler implementations for the ShopPay
// gateway API.
//
// This file implements the account card endpoints: listing stored cards,
// saving a new card from a one-time Stripe token, and the form-based delete
// endpoint the account page posts to.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"shoppay/internal/cards"
	"shoppay/internal/config"
	"shoppay/internal/core"
	"shoppay/internal/types"
)

// --- Service Interfaces ---
//
// Interfaces are defined locally so the handler depends on the contract it
// needs, not on the concrete cards.Service, and tests can mock it.

// CardService abstracts card storage against the payment provider.
type CardService interface {
	// ListCards returns the customer's stored cards sorted by id.
	ListCards(ctx context.Context, customer *types.Customer) ([]types.StoredCard, error)

	// DefaultCard returns the customer's default card, or nil when none is set.
	DefaultCard(ctx context.Context, customer *types.Customer) (*types.StoredCard, error)

	// SaveCard attaches a new card from a one-time token. Returns nil for
	// guest accounts.
	SaveCard(ctx context.Context, customer *types.Customer, cardToken string) (*types.StoredCard, error)

	// DeleteCard removes a stored card. No-op when the customer has no
	// provider-side record.
	DeleteCard(ctx context.Context, customer *types.Customer, cardID string) error
}

// --- Request/Response Models ---

// SaveCardRequest is the request body for POST /v1/account/cards. The token
// is a one-time Stripe card token created client-side by Stripe.js.
type SaveCardRequest struct {
	Token string `json:"token" validate:"required"`
}

// CardListResponse is the response for GET /v1/account/cards.
type CardListResponse struct {
	Cards       []types.StoredCard `json:"cards"`
	DefaultCard *types.StoredCard  `json:"defaultCard"`
}

// SaveCardResponse is the response for POST /v1/account/cards. Card is null
// when the account is not eligible for card storage.
type SaveCardResponse struct {
	Card *types.StoredCard `json:"card"`
}

// --- Cards Handler ---

// CardsHandler serves the account card pages. All routes require an
// authenticated shop session; the session middleware is applied by the
// parent router.
type CardsHandler struct {
	service     CardService
	validator   *core.Validator
	shopBaseURL string
	logger      *slog.Logger
}

// NewCardsHandler creates a new CardsHandler with the provided dependencies.
func NewCardsHandler(svc CardService, cfg *config.Config, v *core.Validator, l *slog.Logger) *CardsHandler {
	if l == nil {
		l = slog.Default()
	}

	shopBaseURL := ""
	if cfg != nil {
		shopBaseURL = cfg.Server.ShopBaseURL
	}

	return &CardsHandler{
		service:     svc,
		validator:   v,
		shopBaseURL: shopBaseURL,
		logger:      l,
	}
}

// RegisterRoutes mounts the account card endpoints. The request cache
// middleware scopes Stripe customer resolution to one lookup per request,
// shared between the list and default-card calls.
func (h *CardsHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requestCacheMiddleware)
		r.Get("/account/cards", h.List)
		r.Post("/account/cards", h.Save)
		r.Post("/account/cards/delete", h.Delete)
	})
}

// requestCacheMiddleware installs the per-request Stripe customer cache.
func requestCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(cards.WithRequestCache(r.Context())))
	})
}

// List handles GET /v1/account/cards.
//
// Returns all stored cards plus the default card. Guest accounts get an
// empty list rather than an error; the account page decides how to render
// that state.
func (h *CardsHandler) List(w http.ResponseWriter, r *http.Request) {
	customer, ok := types.GetCustomer(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing,
			"Authentication required",
			nil,
		))
		return
	}

	stored, err := h.service.ListCards(r.Context(), customer)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	defaultCard, err := h.service.DefaultCard(r.Context(), customer)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := CardListResponse{
		Cards:       stored,
		DefaultCard: defaultCard,
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// Save handles POST /v1/account/cards.
//
// Exchanges the one-time token for a stored card. For guest accounts the
// service returns nil without touching Stripe; the response carries a null
// card so the frontend can fall back to one-off payment.
func (h *CardsHandler) Save(w http.ResponseWriter, r *http.Request) {
	customer, ok := types.GetCustomer(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing,
			"Authentication required",
			nil,
		))
		return
	}

	var req SaveCardRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	card, err := h.service.SaveCard(r.Context(), customer, req.Token)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to save card",
			"customer_id", customer.ID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SaveCardResponse{Card: card}})
}

// Delete handles POST /v1/account/cards/delete.
//
// The account page posts a standard HTML form with a hidden cardId field, so
// this endpoint reads form data and answers with a redirect back to the
// payment settings page instead of JSON.
func (h *CardsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	customer, ok := types.GetCustomer(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing,
			"Authentication required",
			nil,
		))
		return
	}

	if err := r.ParseForm(); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingParam,
			"invalid form data",
			err,
		))
		return
	}

	cardID := r.PostFormValue("cardId")
	if cardID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingParam,
			`Required parameter "cardId" not found`,
			nil,
		))
		return
	}

	if err := h.service.DeleteCard(r.Context(), customer, cardID); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to delete card",
			"customer_id", customer.ID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	redirect, err := url.JoinPath(h.shopBaseURL, "/account/payments")
	if err != nil {
		redirect = h.shopBaseURL
	}
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}
