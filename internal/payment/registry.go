package payment

import (
	"sort"
	"sync"
)

// MethodKeyStripeCard is the registry key under which the Stripe card payment
// method is published.
const MethodKeyStripeCard = "stripe_card"

// minTemplateVersionForCards is the first shop template generation whose
// checkout can render the Stripe card form. Older templates never see the
// method.
const minTemplateVersionForCards = 3

// Method describes one payment method offered to the shop's checkout.
type Method struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
	Provider    string `json:"provider"`
}

// MethodRegistry is the set of payment methods this service publishes to the
// shop. It is populated once at startup and read concurrently by handlers
// afterwards.
type MethodRegistry struct {
	mu      sync.RWMutex
	methods map[string]Method
}

// NewMethodRegistry creates an empty registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{methods: make(map[string]Method)}
}

// Register adds the method under its key. Registration is idempotent: the
// first registration for a key wins and later ones are ignored, so wiring
// code may run repeatedly without duplicating entries.
func (r *MethodRegistry) Register(m Method) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[m.Key]; exists {
		return
	}
	r.methods[m.Key] = m
}

// Get returns the method registered under the given key.
func (r *MethodRegistry) Get(key string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.methods[key]
	return m, ok
}

// List returns all registered methods sorted by key for stable output.
func (r *MethodRegistry) List() []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Method, 0, len(r.methods))
	for _, m := range r.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RegisterDefaults publishes the methods this service provides, gated on the
// shop's template generation: template versions below 3 cannot render the
// card form, so the Stripe card method is withheld from them.
func RegisterDefaults(r *MethodRegistry, templateVersion int) {
	if templateVersion < minTemplateVersionForCards {
		return
	}
	r.Register(Method{
		Key:         MethodKeyStripeCard,
		DisplayName: "Credit card (Stripe)",
		Provider:    "stripe",
	})
}
