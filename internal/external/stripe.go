package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"shoppay/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient talks to the Stripe REST API directly through BaseClient
// rather than through the vendor SDK's own transport. This routes every call
// through the shared resilience infrastructure (circuit breaker, error
// mapping) and makes testing with httptest straightforward.
//
// The client never retries. A payment request that timed out may still have
// been executed by Stripe, and replaying it risks double charges or double
// refunds.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a new StripeClient. The httpClient timeout bounds
// every call; 20 seconds is the configured default.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		NoRetryPolicy(),
		"ShopPay/1.0",
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// ---------------------------------------------------------------------------
// Response Types
// ---------------------------------------------------------------------------

// StripeCustomer is the subset of Stripe's customer object this service
// reads.
type StripeCustomer struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Deleted       bool   `json:"deleted"`
	DefaultSource string `json:"default_source"`
}

// StripeCard is the subset of Stripe's card source object this service reads.
type StripeCard struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// StripeCharge is the subset of Stripe's charge object this service reads.
type StripeCharge struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	Refunded       bool   `json:"refunded"`
}

// StripeRefund is the subset of Stripe's refund object this service reads.
type StripeRefund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Charge string `json:"charge"`
	Status string `json:"status"`
}

type stripeCardList struct {
	Data    []*StripeCard `json:"data"`
	HasMore bool          `json:"has_more"`
}

// ---------------------------------------------------------------------------
// Customer Operations
// ---------------------------------------------------------------------------

// GetCustomer retrieves a Stripe customer by id. A customer that Stripe no
// longer knows, or that has been deleted on the Stripe side, yields
// (nil, nil): callers treat both the same way and mint a fresh customer.
func (s *StripeClient) GetCustomer(ctx context.Context, customerID string) (*StripeCustomer, error) {
	resp, err := s.doGet(ctx, "/v1/customers/"+url.PathEscape(customerID), nil)
	if err != nil {
		return nil, s.wrapStripeError("GetCustomer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetCustomer")
	}

	var customer StripeCustomer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe customer response",
			err,
		)
	}
	if customer.Deleted {
		return nil, nil
	}
	return &customer, nil
}

// CreateCustomer creates a Stripe customer carrying the shopper's email and
// display name. When cardToken is non-empty the token becomes the customer's
// first card source.
func (s *StripeClient) CreateCustomer(ctx context.Context, email, name, cardToken string) (*StripeCustomer, error) {
	params := url.Values{}
	params.Set("email", email)
	if name != "" {
		params.Set("name", name)
	}
	if cardToken != "" {
		params.Set("source", cardToken)
	}

	resp, err := s.doPost(ctx, "/v1/customers", params)
	if err != nil {
		return nil, s.wrapStripeError("CreateCustomer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreateCustomer")
	}

	var customer StripeCustomer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe customer creation response",
			err,
		)
	}
	return &customer, nil
}

// ---------------------------------------------------------------------------
// Card Source Operations
// ---------------------------------------------------------------------------

// ListSources returns the card sources attached to the Stripe customer.
// Ordering is whatever Stripe returns; callers sort.
func (s *StripeClient) ListSources(ctx context.Context, customerID string) ([]*StripeCard, error) {
	params := url.Values{}
	params.Set("object", "card")
	params.Set("limit", "100")

	resp, err := s.doGet(ctx, "/v1/customers/"+url.PathEscape(customerID)+"/sources", params)
	if err != nil {
		return nil, s.wrapStripeError("ListSources", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "ListSources")
	}

	var list stripeCardList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe sources response",
			err,
		)
	}
	return list.Data, nil
}

// CreateSource attaches the tokenized card to the Stripe customer and returns
// the resulting card source.
func (s *StripeClient) CreateSource(ctx context.Context, customerID, cardToken string) (*StripeCard, error) {
	params := url.Values{}
	params.Set("source", cardToken)

	resp, err := s.doPost(ctx, "/v1/customers/"+url.PathEscape(customerID)+"/sources", params)
	if err != nil {
		return nil, s.wrapStripeError("CreateSource", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreateSource")
	}

	var card StripeCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe source creation response",
			err,
		)
	}
	return &card, nil
}

// GetSource retrieves a single card source from the Stripe customer.
// Returns ErrCodeNotFoundCard when Stripe does not know the source.
func (s *StripeClient) GetSource(ctx context.Context, customerID, sourceID string) (*StripeCard, error) {
	resp, err := s.doGet(ctx, "/v1/customers/"+url.PathEscape(customerID)+"/sources/"+url.PathEscape(sourceID), nil)
	if err != nil {
		return nil, s.wrapStripeError("GetSource", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, types.NewAppError(types.ErrCodeNotFoundCard, "card not found", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetSource")
	}

	var card StripeCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe source response",
			err,
		)
	}
	return &card, nil
}

// DeleteSource detaches the card source from the Stripe customer. Deleting a
// source Stripe no longer knows is not an error; the end state is the same.
func (s *StripeClient) DeleteSource(ctx context.Context, customerID, sourceID string) error {
	resp, err := s.doDelete(ctx, "/v1/customers/"+url.PathEscape(customerID)+"/sources/"+url.PathEscape(sourceID))
	if err != nil {
		return s.wrapStripeError("DeleteSource", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, "DeleteSource")
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// ---------------------------------------------------------------------------
// Charge and Refund Operations
// ---------------------------------------------------------------------------

// GetCharge retrieves a charge by id.
// Returns ErrCodeNotFoundCharge when Stripe does not know the charge.
func (s *StripeClient) GetCharge(ctx context.Context, chargeID string) (*StripeCharge, error) {
	resp, err := s.doGet(ctx, "/v1/charges/"+url.PathEscape(chargeID), nil)
	if err != nil {
		return nil, s.wrapStripeError("GetCharge", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, types.NewAppError(types.ErrCodeNotFoundCharge, "charge not found", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetCharge")
	}

	var charge StripeCharge
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe charge response",
			err,
		)
	}
	return &charge, nil
}

// RefundCharge creates a partial or full refund against the charge.
// amountMinor is the refund amount in the currency's minor unit (cents).
func (s *StripeClient) RefundCharge(ctx context.Context, chargeID string, amountMinor int64) (*StripeRefund, error) {
	params := url.Values{}
	params.Set("charge", chargeID)
	params.Set("amount", strconv.FormatInt(amountMinor, 10))

	resp, err := s.doPost(ctx, "/v1/refunds", params)
	if err != nil {
		return nil, s.wrapStripeError("RefundCharge", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "RefundCharge")
	}

	var refund StripeRefund
	if err := json.NewDecoder(resp.Body).Decode(&refund); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe refund response",
			err,
		)
	}
	return &refund, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

func (s *StripeClient) doDelete(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
}

// handleErrorResponse reads a Stripe error response and maps it to a
// types.AppError. Stripe's human-readable message is preserved so admin
// responses can surface the real failure reason.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil || stripeErr.Error.Message == "" {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d)", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamStripe,
		stripeErr.Error.Message,
		nil,
		map[string]any{
			"operation":    operation,
			"stripe_type":  stripeErr.Error.Type,
			"stripe_code":  stripeErr.Error.Code,
			"decline_code": stripeErr.Error.DeclineCode,
		},
	)
}

// wrapStripeError wraps a BaseClient transport error. AppErrors pass through
// unchanged since BaseClient already assigned an upstream code.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed", operation),
		err,
	)
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier validates webhook payloads using stripe-go's signature
// verification, which checks the HMAC-SHA256 signature and the timestamp
// tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the Stripe-Signature
// header and the endpoint's signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	if err := stripe.ValidatePayload(payload, header, secret); err != nil {
		return types.NewAppError(types.ErrCodeWebhookSignature, "webhook signature verification failed", err)
	}
	return nil
}
