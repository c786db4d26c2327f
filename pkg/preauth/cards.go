package preauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SavedPaymentMethod is the platform-side record of a stored card. Only
// gateway identifiers and display data are kept, never card numbers.
type SavedPaymentMethod struct {
	UserID            string
	GatewayCustomerID string
	GatewayCardID     string
	LastFour          string
	Brand             string
	ExpMonth          int
	ExpYear           int
	CardholderName    string
	IsDefault         bool
}

// CardStore persists the user-to-gateway mapping and saved cards.
// GetGatewayCustomerID returns ErrCustomerNotFound when the user has no
// gateway customer yet.
type CardStore interface {
	GetGatewayCustomerID(ctx context.Context, userID string) (string, error)
	SaveGatewayCustomerID(ctx context.Context, userID, customerID string) error
	UpsertPaymentMethod(ctx context.Context, method SavedPaymentMethod) error
	ListPaymentMethods(ctx context.Context, userID string) ([]SavedPaymentMethod, error)
}

// gatewayAPI is the slice of the Gateway used by the Service.
type gatewayAPI interface {
	CreateCustomer(ctx context.Context, email string) (Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (Customer, error)
	AttachCard(ctx context.Context, customerID, cardToken string) (Card, error)
	ListCards(ctx context.Context, customerID string) ([]Card, error)
	GetCard(ctx context.Context, customerID, cardID string) (Card, error)
	CreatePayment(ctx context.Context, input PaymentInput, idempotencyKey string) (Payment, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
	CancelPayment(ctx context.Context, paymentID string) (Payment, error)
}

// Service wraps the gateway with the platform's card and hold semantics.
type Service struct {
	gateway gatewayAPI
	store   CardStore
	nowFn   func() time.Time
	logger  *zap.Logger
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithLogger attaches a logger to the service.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(service *Service) {
		if logger != nil {
			service.logger = logger
		}
	}
}

// NewService wires a Service.
func NewService(gateway gatewayAPI, store CardStore, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: card store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		gateway: gateway,
		store:   store,
		nowFn:   now,
		logger:  zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// SaveCard exchanges a one-time card token for a stored card, creating the
// gateway customer lazily on the user's first card. A duplicate-card response
// from the gateway is recovered by reusing the customer's existing card, so
// retrying a save is idempotent.
func (service *Service) SaveCard(ctx context.Context, userID, email, cardToken string) (SavedPaymentMethod, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(email) == "" {
		return SavedPaymentMethod{}, fmt.Errorf("%w: user id and email are required", ErrInvalidServiceConfig)
	}
	if strings.TrimSpace(cardToken) == "" {
		return SavedPaymentMethod{}, fmt.Errorf("%w: empty card token", ErrInvalidToken)
	}

	customerID, err := service.resolveCustomer(ctx, userID, email)
	if err != nil {
		return SavedPaymentMethod{}, err
	}

	card, err := service.gateway.AttachCard(ctx, customerID, cardToken)
	if errors.Is(err, ErrCardAlreadyExists) {
		service.logger.Info("card already stored, reusing existing card",
			zap.String("user_id", userID),
			zap.String("customer_id", customerID))
		card, err = service.existingCard(ctx, customerID)
	}
	if err != nil {
		return SavedPaymentMethod{}, err
	}

	saved, err := service.listSaved(ctx, userID)
	if err != nil {
		return SavedPaymentMethod{}, err
	}
	isDefault := len(saved) == 0
	for _, existing := range saved {
		if existing.GatewayCardID == card.ID {
			isDefault = existing.IsDefault
			break
		}
	}
	method := SavedPaymentMethod{
		UserID:            userID,
		GatewayCustomerID: customerID,
		GatewayCardID:     card.ID,
		LastFour:          card.LastFour,
		Brand:             card.PaymentMethod.ID,
		ExpMonth:          card.ExpirationMonth,
		ExpYear:           card.ExpirationYear,
		CardholderName:    card.Cardholder.Name,
		IsDefault:         isDefault,
	}
	if err := service.store.UpsertPaymentMethod(ctx, method); err != nil {
		return SavedPaymentMethod{}, err
	}
	return method, nil
}

// PaymentMethods lists the user's stored cards.
func (service *Service) PaymentMethods(ctx context.Context, userID string) ([]SavedPaymentMethod, error) {
	return service.listSaved(ctx, userID)
}

func (service *Service) listSaved(ctx context.Context, userID string) ([]SavedPaymentMethod, error) {
	methods, err := service.store.ListPaymentMethods(ctx, userID)
	if err != nil {
		return nil, err
	}
	return methods, nil
}

// resolveCustomer finds or creates the user's gateway customer. The id is
// cached locally; the gateway search covers the case where a customer was
// created but the local save failed.
func (service *Service) resolveCustomer(ctx context.Context, userID, email string) (string, error) {
	customerID, err := service.store.GetGatewayCustomerID(ctx, userID)
	if err == nil {
		return customerID, nil
	}
	if !errors.Is(err, ErrCustomerNotFound) {
		return "", err
	}

	customer, err := service.gateway.FindCustomerByEmail(ctx, email)
	if errors.Is(err, ErrCustomerNotFound) {
		customer, err = service.gateway.CreateCustomer(ctx, email)
	}
	if err != nil {
		return "", err
	}
	if err := service.store.SaveGatewayCustomerID(ctx, userID, customer.ID); err != nil {
		return "", err
	}
	return customer.ID, nil
}

// existingCard returns the customer's most recently attached card.
func (service *Service) existingCard(ctx context.Context, customerID string) (Card, error) {
	cards, err := service.gateway.ListCards(ctx, customerID)
	if err != nil {
		return Card{}, err
	}
	if len(cards) == 0 {
		return Card{}, fmt.Errorf("%w: customer %s reported a duplicate but has no cards", ErrCardNotFound, customerID)
	}
	return cards[len(cards)-1], nil
}
