// Package cards implements the card gateway: the bridge between shop
// customers and their Stripe-side card sources. All card state lives in
// Stripe; the only local persistence is the Stripe customer id on the
// customer's attribute row.
package cards

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"shoppay/internal/external"
	"shoppay/internal/types"
)

// stripeAPI is the slice of the Stripe client the gateway needs.
type stripeAPI interface {
	GetCustomer(ctx context.Context, customerID string) (*external.StripeCustomer, error)
	CreateCustomer(ctx context.Context, email, name, cardToken string) (*external.StripeCustomer, error)
	ListSources(ctx context.Context, customerID string) ([]*external.StripeCard, error)
	CreateSource(ctx context.Context, customerID, cardToken string) (*external.StripeCard, error)
	GetSource(ctx context.Context, customerID, sourceID string) (*external.StripeCard, error)
	DeleteSource(ctx context.Context, customerID, sourceID string) error
}

// customerStore is the slice of the customer repository the gateway needs.
type customerStore interface {
	GetStripeCustomerID(ctx context.Context, customerID int64) (string, error)
	SetStripeCustomerID(ctx context.Context, customerID int64, stripeCustomerID string) error
	ReplaceStripeCustomerID(ctx context.Context, customerID int64, stripeCustomerID string) error
}

// Service is the card gateway. It performs no retries: a Stripe failure
// propagates to the caller unchanged.
type Service struct {
	stripe stripeAPI
	store  customerStore
	logger *slog.Logger
}

// NewService creates a card gateway over the given Stripe client and
// customer store.
func NewService(stripe stripeAPI, store customerStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{stripe: stripe, store: store, logger: logger}
}

// ---------------------------------------------------------------------------
// Request-scoped Stripe customer cache
// ---------------------------------------------------------------------------

// customerCache memoizes the resolved Stripe customer for the duration of one
// request, so that a page rendering the card list and the default card does
// not fetch the customer twice. The cache lives in the request context and is
// never shared across requests.
type customerCache struct {
	mu       sync.Mutex
	loaded   bool
	stale    bool // stored id present but unresolvable on the Stripe side
	customer *external.StripeCustomer
}

type cacheKey struct{}

// WithRequestCache returns a context carrying a fresh per-request cache for
// the resolved Stripe customer. Installed by middleware on every request.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheKey{}, &customerCache{})
}

func cacheFrom(ctx context.Context) *customerCache {
	c, _ := ctx.Value(cacheKey{}).(*customerCache)
	return c
}

// resolveStripeCustomer returns the Stripe customer for the given shop
// customer, or (nil, false, nil) when none is resolvable. The boolean
// reports whether a stored id existed but no longer resolves on the Stripe
// side (deleted remote customer).
func (s *Service) resolveStripeCustomer(ctx context.Context, customer *types.Customer) (*external.StripeCustomer, bool, error) {
	if !customer.HasPermanentAccount() {
		return nil, false, nil
	}

	cache := cacheFrom(ctx)
	if cache != nil {
		cache.mu.Lock()
		defer cache.mu.Unlock()
		if cache.loaded {
			return cache.customer, cache.stale, nil
		}
	}

	stripeCustomer, stale, err := s.loadStripeCustomer(ctx, customer.ID)
	if err != nil {
		return nil, false, err
	}

	if cache != nil {
		cache.loaded = true
		cache.stale = stale
		cache.customer = stripeCustomer
	}
	return stripeCustomer, stale, nil
}

func (s *Service) loadStripeCustomer(ctx context.Context, customerID int64) (*external.StripeCustomer, bool, error) {
	stripeCustomerID, err := s.store.GetStripeCustomerID(ctx, customerID)
	if err != nil {
		return nil, false, err
	}
	if stripeCustomerID == "" {
		return nil, false, nil
	}

	stripeCustomer, err := s.stripe.GetCustomer(ctx, stripeCustomerID)
	if err != nil {
		return nil, false, err
	}
	if stripeCustomer == nil {
		// The stored id references a customer Stripe has since deleted.
		s.logger.WarnContext(ctx, "stored stripe customer id no longer resolves",
			"customer_id", customerID,
			"stripe_customer_id", stripeCustomerID,
		)
		return nil, true, nil
	}
	return stripeCustomer, false, nil
}

// cacheCustomer replaces the cached Stripe customer after a mutation such as
// creating a new Stripe customer during SaveCard.
func cacheCustomer(ctx context.Context, customer *external.StripeCustomer) {
	cache := cacheFrom(ctx)
	if cache == nil {
		return
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.loaded = true
	cache.stale = false
	cache.customer = customer
}

// ---------------------------------------------------------------------------
// Gateway operations
// ---------------------------------------------------------------------------

// ListCards returns the customer's stored cards sorted by ascending card id,
// which tracks creation order on the Stripe side. Customers without a
// resolvable Stripe customer get an empty list.
func (s *Service) ListCards(ctx context.Context, customer *types.Customer) ([]types.StoredCard, error) {
	stripeCustomer, _, err := s.resolveStripeCustomer(ctx, customer)
	if err != nil {
		return nil, err
	}
	if stripeCustomer == nil {
		return []types.StoredCard{}, nil
	}

	sources, err := s.stripe.ListSources(ctx, stripeCustomer.ID)
	if err != nil {
		return nil, err
	}

	cards := make([]types.StoredCard, 0, len(sources))
	for _, src := range sources {
		cards = append(cards, toStoredCard(src))
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

// DefaultCard returns the card matching the Stripe customer's default-source
// id, or nil when the customer has no default card.
func (s *Service) DefaultCard(ctx context.Context, customer *types.Customer) (*types.StoredCard, error) {
	stripeCustomer, _, err := s.resolveStripeCustomer(ctx, customer)
	if err != nil {
		return nil, err
	}
	if stripeCustomer == nil || stripeCustomer.DefaultSource == "" {
		return nil, nil
	}

	sources, err := s.stripe.ListSources(ctx, stripeCustomer.ID)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		if src.ID == stripeCustomer.DefaultSource {
			card := toStoredCard(src)
			return &card, nil
		}
	}
	return nil, nil
}

// SaveCard attaches the tokenized card to the customer's Stripe customer,
// creating the Stripe customer first if none exists yet. Guests and
// customers without a permanent account cannot store cards; for them SaveCard
// is a silent no-op returning (nil, nil).
func (s *Service) SaveCard(ctx context.Context, customer *types.Customer, cardToken string) (*types.StoredCard, error) {
	if !customer.HasPermanentAccount() {
		return nil, nil
	}

	stripeCustomer, stale, err := s.resolveStripeCustomer(ctx, customer)
	if err != nil {
		return nil, err
	}

	if stripeCustomer != nil {
		card, err := s.stripe.CreateSource(ctx, stripeCustomer.ID, cardToken)
		if err != nil {
			return nil, err
		}
		stored := toStoredCard(card)
		return &stored, nil
	}

	created, err := s.stripe.CreateCustomer(ctx, customer.Email, customer.DisplayName(), cardToken)
	if err != nil {
		return nil, err
	}

	// A dangling id gets replaced outright; a first assignment goes through
	// the write-once path so a racing save cannot produce two Stripe
	// customers both claiming the attribute row.
	if stale {
		err = s.store.ReplaceStripeCustomerID(ctx, customer.ID, created.ID)
	} else {
		err = s.store.SetStripeCustomerID(ctx, customer.ID, created.ID)
	}
	if err != nil {
		return nil, err
	}
	cacheCustomer(ctx, created)

	if created.DefaultSource == "" {
		// Stripe attached the token as the first source; without a default
		// source id there is nothing further to describe.
		return nil, nil
	}
	card, err := s.stripe.GetSource(ctx, created.ID, created.DefaultSource)
	if err != nil {
		return nil, err
	}
	stored := toStoredCard(card)
	return &stored, nil
}

// DeleteCard detaches the card from the customer's Stripe customer. When no
// Stripe customer is resolvable there is nothing to delete and the call is a
// no-op.
func (s *Service) DeleteCard(ctx context.Context, customer *types.Customer, cardID string) error {
	stripeCustomer, _, err := s.resolveStripeCustomer(ctx, customer)
	if err != nil {
		return err
	}
	if stripeCustomer == nil {
		return nil
	}
	return s.stripe.DeleteSource(ctx, stripeCustomer.ID, cardID)
}

func toStoredCard(src *external.StripeCard) types.StoredCard {
	return types.StoredCard{
		ID:       src.ID,
		Name:     src.Name,
		Brand:    src.Brand,
		Last4:    src.Last4,
		ExpMonth: src.ExpMonth,
		ExpYear:  src.ExpYear,
	}
}
