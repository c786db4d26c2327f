package preauth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// renewalKeyWindow is the granularity of the idempotency suffix: retries of
// the same renewal attempt within one window share a key and are deduplicated
// by the gateway, while the next scheduled renewal lands in a new window.
const renewalKeyWindow = time.Hour

const payerTypeCustomer = "customer"

// HoldResult reports the outcome of a renewal attempt.
type HoldResult struct {
	PaymentID    string
	Status       string
	StatusDetail string
}

// RenewHoldInput describes a renewal attempt.
type RenewHoldInput struct {
	CustomerID        string
	CardID            string
	AmountCents       int64
	ExternalReference string
	Capture           bool
	Description       string
}

// RenewHold places a fresh charge or pre-authorization against a stored
// card. The card's payment-method id is looked up per call: it can change
// when the gateway reissues a card.
func (service *Service) RenewHold(ctx context.Context, input RenewHoldInput) (HoldResult, error) {
	if input.AmountCents <= 0 {
		return HoldResult{}, fmt.Errorf("%w: %d cents", ErrInvalidAmount, input.AmountCents)
	}
	if strings.TrimSpace(input.ExternalReference) == "" {
		return HoldResult{}, fmt.Errorf("%w: renewals must carry the original booking reference", ErrMissingReference)
	}

	card, err := service.gateway.GetCard(ctx, input.CustomerID, input.CardID)
	if err != nil {
		return HoldResult{}, err
	}

	payment, err := service.gateway.CreatePayment(ctx, PaymentInput{
		TransactionAmount: float64(input.AmountCents) / 100,
		PaymentMethodID:   card.PaymentMethod.ID,
		Payer:             PaymentPayer{Type: payerTypeCustomer, ID: input.CustomerID},
		ExternalReference: input.ExternalReference,
		Capture:           input.Capture,
		Description:       input.Description,
	}, service.renewalIdempotencyKey(input.ExternalReference))
	if err != nil {
		return HoldResult{}, err
	}

	service.logger.Info("hold renewed",
		zap.String("external_reference", input.ExternalReference),
		zap.Int64("payment_id", payment.ID),
		zap.String("status", payment.Status),
		zap.Bool("captured", input.Capture))

	return HoldResult{
		PaymentID:    strconv.FormatInt(payment.ID, 10),
		Status:       payment.Status,
		StatusDetail: payment.StatusDetail,
	}, nil
}

// renewalIdempotencyKey derives the gateway key from the booking reference
// plus the current window.
func (service *Service) renewalIdempotencyKey(externalReference string) string {
	window := service.nowFn().UTC().Truncate(renewalKeyWindow).Unix()
	return externalReference + ":" + strconv.FormatInt(window, 10)
}

// CancelPreauthorization releases an uncaptured hold. Best effort: a failure
// is logged and reported as false, never returned, so cleanup flows are not
// blocked by a hold that already lapsed gateway-side.
func (service *Service) CancelPreauthorization(ctx context.Context, paymentID string) bool {
	payment, err := service.gateway.CancelPayment(ctx, paymentID)
	if err != nil {
		service.logger.Warn("preauthorization cancel failed",
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return false
	}
	return payment.Status == "cancelled"
}

// GetPayment re-queries a payment's state. Used to reconcile after an
// ErrOutcomeUnknown renewal before deciding whether to retry.
func (service *Service) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	return service.gateway.GetPayment(ctx, paymentID)
}
