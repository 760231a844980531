// This file implements the payment-method listing endpoint the storefront
// uses to decide which payment options to render at checkout.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shoppay/internal/core"
	"shoppay/internal/payment"
)

// MethodLister enumerates the registered payment methods.
type MethodLister interface {
	List() []payment.Method
}

// MethodsResponse is the response for GET /v1/payment-methods.
type MethodsResponse struct {
	Methods []payment.Method `json:"methods"`
}

// MethodsHandler exposes the payment-method registry. The registry is
// populated once at startup; whether the Stripe card method appears depends
// on the shop's template version.
type MethodsHandler struct {
	registry MethodLister
}

// NewMethodsHandler creates a new MethodsHandler.
func NewMethodsHandler(registry MethodLister) *MethodsHandler {
	return &MethodsHandler{registry: registry}
}

// RegisterRoutes mounts the payment-method endpoint. The route is public;
// the storefront calls it before the customer logs in.
func (h *MethodsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/payment-methods", h.List)
}

// List handles GET /v1/payment-methods.
func (h *MethodsHandler) List(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: MethodsResponse{
		Methods: h.registry.List(),
	}})
}
