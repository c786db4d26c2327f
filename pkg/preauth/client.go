package preauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 15 * time.Second

const idempotencyHeader = "X-Idempotency-Key"

// Gateway is a thin client for the card gateway's REST API. It never leaks
// vendor payload shapes to callers: every non-2xx response is normalized into
// a GatewayError and every transport failure on a mutating call into
// ErrOutcomeUnknown.
type Gateway struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *zap.Logger
}

// GatewayOption configures a Gateway instance.
type GatewayOption func(*Gateway)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(gateway *Gateway) {
		if client != nil {
			gateway.httpClient = client
		}
	}
}

// WithGatewayLogger attaches a logger for request outcomes.
func WithGatewayLogger(logger *zap.Logger) GatewayOption {
	return func(gateway *Gateway) {
		if logger != nil {
			gateway.logger = logger
		}
	}
}

// NewGateway builds a client. Missing credentials fail here, at startup,
// rather than on the first payment.
func NewGateway(baseURL, accessToken string, options ...GatewayOption) (*Gateway, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: base URL is empty", ErrMissingCredentials)
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("%w: access token is empty", ErrMissingCredentials)
	}
	gateway := &Gateway{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		accessToken: strings.TrimSpace(accessToken),
		httpClient:  &http.Client{Timeout: defaultRequestTimeout},
		logger:      zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(gateway)
		}
	}
	return gateway, nil
}

// Customer is a gateway-side payer record, one per platform user.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Card is a tokenized card attached to a gateway customer.
type Card struct {
	ID              string `json:"id"`
	LastFour        string `json:"last_four_digits"`
	ExpirationMonth int    `json:"expiration_month"`
	ExpirationYear  int    `json:"expiration_year"`
	PaymentMethod   struct {
		ID string `json:"id"`
	} `json:"payment_method"`
	Cardholder struct {
		Name string `json:"name"`
	} `json:"cardholder"`
}

// Payment is the gateway's view of a charge or pre-authorization.
type Payment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	TransactionAmount float64 `json:"transaction_amount"`
	ExternalReference string  `json:"external_reference"`
	Captured          bool    `json:"captured"`
}

// PaymentInput is the request body for CreatePayment. Amount is in currency
// units, not cents; the payer is referenced by customer id, never by raw
// card data.
type PaymentInput struct {
	TransactionAmount   float64           `json:"transaction_amount"`
	PaymentMethodID     string            `json:"payment_method_id"`
	Payer               PaymentPayer      `json:"payer"`
	ExternalReference   string            `json:"external_reference"`
	Capture             bool              `json:"capture"`
	Description         string            `json:"description,omitempty"`
	StatementDescriptor string            `json:"statement_descriptor,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// PaymentPayer references a stored customer.
type PaymentPayer struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// CreateCustomer registers a payer record for the email.
func (gateway *Gateway) CreateCustomer(ctx context.Context, email string) (Customer, error) {
	var customer Customer
	body := map[string]string{"email": email}
	if err := gateway.do(ctx, http.MethodPost, "/v1/customers", "", body, &customer); err != nil {
		return Customer{}, err
	}
	return customer, nil
}

// FindCustomerByEmail looks up an existing payer record. Returns
// ErrCustomerNotFound when the search comes back empty.
func (gateway *Gateway) FindCustomerByEmail(ctx context.Context, email string) (Customer, error) {
	var result struct {
		Results []Customer `json:"results"`
	}
	path := "/v1/customers/search?email=" + url.QueryEscape(email)
	if err := gateway.do(ctx, http.MethodGet, path, "", nil, &result); err != nil {
		return Customer{}, err
	}
	if len(result.Results) == 0 {
		return Customer{}, fmt.Errorf("%w: email %s", ErrCustomerNotFound, email)
	}
	return result.Results[0], nil
}

// AttachCard exchanges a one-time card token for a stored card.
func (gateway *Gateway) AttachCard(ctx context.Context, customerID, cardToken string) (Card, error) {
	var card Card
	body := map[string]string{"token": cardToken}
	path := "/v1/customers/" + url.PathEscape(customerID) + "/cards"
	if err := gateway.do(ctx, http.MethodPost, path, "", body, &card); err != nil {
		return Card{}, err
	}
	return card, nil
}

// ListCards returns the customer's stored cards.
func (gateway *Gateway) ListCards(ctx context.Context, customerID string) ([]Card, error) {
	var cards []Card
	path := "/v1/customers/" + url.PathEscape(customerID) + "/cards"
	if err := gateway.do(ctx, http.MethodGet, path, "", nil, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// GetCard fetches one stored card, including its payment-method id.
func (gateway *Gateway) GetCard(ctx context.Context, customerID, cardID string) (Card, error) {
	var card Card
	path := "/v1/customers/" + url.PathEscape(customerID) + "/cards/" + url.PathEscape(cardID)
	if err := gateway.do(ctx, http.MethodGet, path, "", nil, &card); err != nil {
		return Card{}, err
	}
	return card, nil
}

// CreatePayment submits a charge or pre-authorization. The idempotency key
// deduplicates retries of the same attempt gateway-side.
func (gateway *Gateway) CreatePayment(ctx context.Context, input PaymentInput, idempotencyKey string) (Payment, error) {
	var payment Payment
	if err := gateway.do(ctx, http.MethodPost, "/v1/payments", idempotencyKey, input, &payment); err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// GetPayment fetches the current state of a payment.
func (gateway *Gateway) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	var payment Payment
	if err := gateway.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), "", nil, &payment); err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// CancelPayment releases an uncaptured pre-authorization.
func (gateway *Gateway) CancelPayment(ctx context.Context, paymentID string) (Payment, error) {
	var payment Payment
	body := map[string]string{"status": "cancelled"}
	if err := gateway.do(ctx, http.MethodPut, "/v1/payments/"+url.PathEscape(paymentID), "", body, &payment); err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// vendorErrorBody is the gateway's error payload shape. It stays private to
// this file; callers only ever see GatewayError.
type vendorErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Cause   []struct {
		Code        json.Number `json:"code"`
		Description string      `json:"description"`
	} `json:"cause"`
}

func (gateway *Gateway) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode gateway request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, gateway.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+gateway.accessToken)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		request.Header.Set(idempotencyHeader, idempotencyKey)
	}

	response, err := gateway.httpClient.Do(request)
	if err != nil {
		if method == http.MethodGet {
			return fmt.Errorf("gateway request failed: %w", err)
		}
		// The request may have reached the gateway before the transport
		// failed; the caller must reconcile, not blindly retry.
		gateway.logger.Warn("gateway transport failure on mutating call",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%w: %s %s: %v", ErrOutcomeUnknown, method, path, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}

	if response.StatusCode >= 400 {
		return gateway.normalizeError(method, path, response.StatusCode, payload)
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}

func (gateway *Gateway) normalizeError(method, path string, status int, payload []byte) error {
	var body vendorErrorBody
	_ = json.Unmarshal(payload, &body)

	code := strings.TrimSpace(body.Error)
	message := strings.TrimSpace(body.Message)
	if message == "" {
		message = http.StatusText(status)
	}
	if code == "" || code == "bad_request" {
		if mapped := causeCode(body); mapped != "" {
			code = mapped
		} else if status == 404 && strings.Contains(path, "/cards/") {
			code = "card_not_found"
		} else if status == 404 && strings.Contains(path, "/payments/") {
			code = "payment_not_found"
		}
	}

	gateway.logger.Warn("gateway error response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.String("vendor_code", code),
		zap.String("message", message))

	return &GatewayError{HTTPStatus: status, VendorCode: code, Message: message}
}

// causeCode resolves the first recognized numeric code from the error body's
// cause array.
func causeCode(body vendorErrorBody) string {
	for _, cause := range body.Cause {
		if mapped, found := vendorCauseCodes[cause.Code.String()]; found {
			return mapped
		}
	}
	return ""
}
