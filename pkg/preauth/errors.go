package preauth

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials indicates the gateway client was built without
	// a base URL or access token. Detected at startup, not on first call.
	ErrMissingCredentials = errors.New("missing gateway credentials")
	// ErrInvalidServiceConfig indicates missing or invalid service dependencies.
	ErrInvalidServiceConfig = errors.New("invalid service configuration")
	// ErrInvalidAmount indicates a non-positive hold amount.
	ErrInvalidAmount = errors.New("invalid hold amount")
	// ErrMissingReference indicates an empty external reference.
	ErrMissingReference = errors.New("external reference is required")
	// ErrCardAlreadyExists indicates the customer already holds this card.
	// SaveCard recovers from it by reusing the existing card.
	ErrCardAlreadyExists = errors.New("card already exists for customer")
	// ErrCardNotFound indicates an unknown card id for the customer.
	ErrCardNotFound = errors.New("card not found")
	// ErrCustomerNotFound indicates no gateway customer exists yet.
	ErrCustomerNotFound = errors.New("gateway customer not found")
	// ErrPaymentNotFound indicates an unknown payment id.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrInvalidToken indicates a rejected or expired card token.
	ErrInvalidToken = errors.New("invalid card token")
	// ErrUnauthorized indicates the gateway rejected the access token.
	ErrUnauthorized = errors.New("gateway rejected credentials")
	// ErrOutcomeUnknown indicates the request may or may not have been
	// applied: the transport failed after the request was sent. Callers
	// must reconcile by re-querying before retrying a money movement.
	ErrOutcomeUnknown = errors.New("gateway outcome unknown")
)

// vendorErrorKinds maps normalized gateway error codes onto sentinels so
// callers branch on errors.Is, never on vendor payload shapes.
var vendorErrorKinds = map[string]error{
	"card_already_exists": ErrCardAlreadyExists,
	"card_not_found":      ErrCardNotFound,
	"customer_not_found":  ErrCustomerNotFound,
	"payment_not_found":   ErrPaymentNotFound,
	"invalid_token":       ErrInvalidToken,
	"unauthorized":        ErrUnauthorized,
}

// vendorCauseCodes maps the gateway's numeric cause codes onto the same
// normalized codes as vendorErrorKinds. When the top-level error field is
// generic ("bad_request") the cause array carries the authoritative code;
// message wording is not stable across gateway releases and is never matched.
var vendorCauseCodes = map[string]string{
	"2006": "invalid_token",
	"2062": "invalid_token",
	"2000": "payment_not_found",
	"2013": "card_already_exists",
	"2001": "customer_not_found",
}

// GatewayError is the normalized form of any gateway 4xx/5xx response.
type GatewayError struct {
	HTTPStatus int
	VendorCode string
	Message    string
}

// Error implements the error interface.
func (gatewayError *GatewayError) Error() string {
	if gatewayError.VendorCode != "" {
		return fmt.Sprintf("gateway error %d (%s): %s", gatewayError.HTTPStatus, gatewayError.VendorCode, gatewayError.Message)
	}
	return fmt.Sprintf("gateway error %d: %s", gatewayError.HTTPStatus, gatewayError.Message)
}

// Unwrap exposes the sentinel matching the vendor code, if any.
func (gatewayError *GatewayError) Unwrap() error {
	if sentinel, found := vendorErrorKinds[gatewayError.VendorCode]; found {
		return sentinel
	}
	switch gatewayError.HTTPStatus {
	case 401, 403:
		return ErrUnauthorized
	}
	return nil
}
