// Package settlement sequences the guarantee lifecycle around bookings: it
// sizes the deposit from the renter's risk tier, places the guarantee on the
// chosen funding instrument, renews expiring card holds, releases guarantees
// on cancellation and settles franchise claims against the coverage fund.
// It holds no business rules of its own.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/drivana/settlement/pkg/ledger"
	"github.com/drivana/settlement/pkg/preauth"
	"github.com/drivana/settlement/pkg/risk"
)

// FundingInstrument selects how a booking's guarantee is secured.
type FundingInstrument string

const (
	InstrumentWallet FundingInstrument = "wallet"
	InstrumentCard   FundingInstrument = "card"
)

var (
	// ErrInvalidInstrument indicates an unknown funding instrument.
	ErrInvalidInstrument = errors.New("invalid funding instrument")
	// ErrInvalidServiceConfig indicates missing orchestrator dependencies.
	ErrInvalidServiceConfig = errors.New("invalid orchestrator configuration")
	// ErrMissingCardDetails indicates a card-funded event without gateway ids.
	ErrMissingCardDetails = errors.New("card instrument requires customer and card ids")
)

const guaranteeRefPrefix = "guarantee"

// walletLedger is the slice of the ledger service used here.
type walletLedger interface {
	Debit(ctx context.Context, userID ledger.UserID, kind ledger.EntryKind, amount ledger.AmountCents, ref ledger.Ref, bookingID *ledger.BookingID, metadata ledger.MetadataJSON) error
	Reverse(ctx context.Context, userID ledger.UserID, ref ledger.Ref, metadata ledger.MetadataJSON) error
	ChargeFranchise(ctx context.Context, renterID ledger.UserID, fundID ledger.UserID, amount ledger.AmountCents, ref ledger.Ref, bookingID *ledger.BookingID, metadata ledger.MetadataJSON) error
}

// depositSizer is the slice of the risk service used here.
type depositSizer interface {
	ApplyToDeposit(ctx context.Context, userID string, baseCents int64) (risk.DepositQuote, error)
}

// cardHolds is the slice of the pre-authorization service used here.
type cardHolds interface {
	RenewHold(ctx context.Context, input preauth.RenewHoldInput) (preauth.HoldResult, error)
	CancelPreauthorization(ctx context.Context, paymentID string) bool
	GetPayment(ctx context.Context, paymentID string) (preauth.Payment, error)
}

// Orchestrator wires the guarantee flow. It owns the communal coverage fund
// identity used as the credit side of franchise claims.
type Orchestrator struct {
	wallet     walletLedger
	deposits   depositSizer
	holds      cardHolds
	fundUserID ledger.UserID
	nowFn      func() time.Time
	logger     *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(orchestrator *Orchestrator) {
		if logger != nil {
			orchestrator.logger = logger
		}
	}
}

// New wires an Orchestrator.
func New(wallet walletLedger, deposits depositSizer, holds cardHolds, fundUserID ledger.UserID, now func() time.Time, options ...Option) (*Orchestrator, error) {
	if wallet == nil {
		return nil, fmt.Errorf("%w: wallet ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if deposits == nil {
		return nil, fmt.Errorf("%w: deposit sizer dependency is nil", ErrInvalidServiceConfig)
	}
	if holds == nil {
		return nil, fmt.Errorf("%w: card holds dependency is nil", ErrInvalidServiceConfig)
	}
	if fundUserID.String() == "" {
		return nil, fmt.Errorf("%w: fund user id is empty", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	orchestrator := &Orchestrator{
		wallet:     wallet,
		deposits:   deposits,
		holds:      holds,
		fundUserID: fundUserID,
		nowFn:      now,
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(orchestrator)
		}
	}
	return orchestrator, nil
}

// BookingEvent announces a new booking needing a guarantee.
type BookingEvent struct {
	BookingID        string
	UserID           string
	BaseDepositCents int64
	Instrument       FundingInstrument
	// Gateway ids, required only for card-funded bookings.
	GatewayCustomerID string
	GatewayCardID     string
}

// GuaranteeOutcome reports how a booking's guarantee was secured.
type GuaranteeOutcome struct {
	Quote      risk.DepositQuote
	Instrument FundingInstrument
	// Ref is the ledger idempotency reference for wallet guarantees.
	Ref string
	// PaymentID is the gateway hold id for card guarantees.
	PaymentID    string
	HoldStatus   string
	FullyWaived  bool
}

// OnBookingCreated sizes the risk-adjusted deposit and secures it on the
// chosen instrument. An elite renter's fully waived deposit secures nothing
// and touches neither the wallet nor the gateway.
func (orchestrator *Orchestrator) OnBookingCreated(ctx context.Context, event BookingEvent) (GuaranteeOutcome, error) {
	quote, err := orchestrator.deposits.ApplyToDeposit(ctx, event.UserID, event.BaseDepositCents)
	if err != nil {
		return GuaranteeOutcome{}, err
	}
	outcome := GuaranteeOutcome{Quote: quote, Instrument: event.Instrument}
	if quote.AdjustedCents == 0 {
		outcome.FullyWaived = true
		orchestrator.logger.Info("guarantee fully waived",
			zap.String("booking_id", event.BookingID),
			zap.String("user_id", event.UserID),
			zap.String("tier", quote.Tier.String()))
		return outcome, nil
	}

	switch event.Instrument {
	case InstrumentWallet:
		ref, err := orchestrator.guaranteeRef(event.BookingID)
		if err != nil {
			return GuaranteeOutcome{}, err
		}
		if err := orchestrator.holdOnWallet(ctx, event, quote.AdjustedCents, ref); err != nil {
			return GuaranteeOutcome{}, err
		}
		outcome.Ref = ref.String()
	case InstrumentCard:
		result, err := orchestrator.holdOnCard(ctx, event, quote.AdjustedCents)
		if err != nil {
			return GuaranteeOutcome{}, err
		}
		outcome.PaymentID = result.PaymentID
		outcome.HoldStatus = result.Status
	default:
		return GuaranteeOutcome{}, fmt.Errorf("%w: %q", ErrInvalidInstrument, event.Instrument)
	}
	return outcome, nil
}

func (orchestrator *Orchestrator) holdOnWallet(ctx context.Context, event BookingEvent, amountCents int64, ref ledger.Ref) error {
	userID, err := ledger.NewUserID(event.UserID)
	if err != nil {
		return err
	}
	amount, err := ledger.NewAmountCents(amountCents)
	if err != nil {
		return err
	}
	bookingID, err := ledger.NewBookingID(event.BookingID)
	if err != nil {
		return err
	}
	metadata, err := ledger.NewMetadataJSON(fmt.Sprintf(`{"booking_id":%q}`, event.BookingID))
	if err != nil {
		return err
	}
	return orchestrator.wallet.Debit(ctx, userID, ledger.KindGuaranteeHold, amount, ref, &bookingID, metadata)
}

func (orchestrator *Orchestrator) holdOnCard(ctx context.Context, event BookingEvent, amountCents int64) (preauth.HoldResult, error) {
	if event.GatewayCustomerID == "" || event.GatewayCardID == "" {
		return preauth.HoldResult{}, fmt.Errorf("%w: booking %s", ErrMissingCardDetails, event.BookingID)
	}
	return orchestrator.holds.RenewHold(ctx, preauth.RenewHoldInput{
		CustomerID:        event.GatewayCustomerID,
		CardID:            event.GatewayCardID,
		AmountCents:       amountCents,
		ExternalReference: event.BookingID,
		Capture:           false,
		Description:       "Booking guarantee hold",
	})
}

// HoldExpiryEvent announces a card hold nearing its gateway expiry.
type HoldExpiryEvent struct {
	BookingID         string
	GatewayCustomerID string
	GatewayCardID     string
	AmountCents       int64
	// ExpiringPaymentID is the hold being replaced, released best-effort
	// once the replacement is in place.
	ExpiringPaymentID string
}

// OnHoldExpiring places a replacement hold and then releases the expiring
// one. The old hold is only released after the new one succeeds, so the
// guarantee is never uncovered; a failed release is tolerated because the
// old hold lapses on its own.
func (orchestrator *Orchestrator) OnHoldExpiring(ctx context.Context, event HoldExpiryEvent) (preauth.HoldResult, error) {
	result, err := orchestrator.holds.RenewHold(ctx, preauth.RenewHoldInput{
		CustomerID:        event.GatewayCustomerID,
		CardID:            event.GatewayCardID,
		AmountCents:       event.AmountCents,
		ExternalReference: event.BookingID,
		Capture:           false,
		Description:       "Booking guarantee hold renewal",
	})
	if err != nil {
		return preauth.HoldResult{}, err
	}
	if event.ExpiringPaymentID != "" {
		if !orchestrator.holds.CancelPreauthorization(ctx, event.ExpiringPaymentID) {
			orchestrator.logger.Warn("expiring hold not released, leaving it to lapse",
				zap.String("booking_id", event.BookingID),
				zap.String("payment_id", event.ExpiringPaymentID))
		}
	}
	return result, nil
}

// CancellationEvent announces a cancelled booking whose guarantee must be
// released.
type CancellationEvent struct {
	BookingID  string
	UserID     string
	Instrument FundingInstrument
	// PaymentID is required for card guarantees.
	PaymentID string
}

// OnBookingCancelled releases the guarantee: a wallet hold is reversed with
// an offsetting ledger entry, a card hold is cancelled at the gateway.
func (orchestrator *Orchestrator) OnBookingCancelled(ctx context.Context, event CancellationEvent) error {
	switch event.Instrument {
	case InstrumentWallet:
		userID, err := ledger.NewUserID(event.UserID)
		if err != nil {
			return err
		}
		ref, err := orchestrator.guaranteeRef(event.BookingID)
		if err != nil {
			return err
		}
		metadata, err := ledger.NewMetadataJSON(fmt.Sprintf(`{"booking_id":%q,"cause":"booking_cancelled"}`, event.BookingID))
		if err != nil {
			return err
		}
		return orchestrator.wallet.Reverse(ctx, userID, ref, metadata)
	case InstrumentCard:
		if !orchestrator.holds.CancelPreauthorization(ctx, event.PaymentID) {
			orchestrator.logger.Warn("card hold release failed on cancellation",
				zap.String("booking_id", event.BookingID),
				zap.String("payment_id", event.PaymentID))
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidInstrument, event.Instrument)
}

// ChargeFranchise settles a damage claim: the renter pays their franchise
// share and the communal coverage fund is credited, both legs in one ledger
// transaction.
func (orchestrator *Orchestrator) ChargeFranchise(ctx context.Context, renterID, bookingID string, amountCents int64, claimRef string) error {
	renter, err := ledger.NewUserID(renterID)
	if err != nil {
		return err
	}
	amount, err := ledger.NewAmountCents(amountCents)
	if err != nil {
		return err
	}
	ref, err := ledger.NewRef(claimRef)
	if err != nil {
		return err
	}
	booking, err := ledger.NewBookingID(bookingID)
	if err != nil {
		return err
	}
	metadata, err := ledger.NewMetadataJSON(fmt.Sprintf(`{"booking_id":%q,"cause":"franchise_claim"}`, bookingID))
	if err != nil {
		return err
	}
	return orchestrator.wallet.ChargeFranchise(ctx, renter, orchestrator.fundUserID, amount, ref, &booking, metadata)
}

// ReconcileHold re-queries a hold whose renewal outcome was unknown. The
// caller decides from the reported status whether a retry is safe.
func (orchestrator *Orchestrator) ReconcileHold(ctx context.Context, paymentID string) (preauth.Payment, error) {
	return orchestrator.holds.GetPayment(ctx, paymentID)
}

func (orchestrator *Orchestrator) guaranteeRef(bookingID string) (ledger.Ref, error) {
	base, err := ledger.NewRef(guaranteeRefPrefix)
	if err != nil {
		return ledger.Ref{}, err
	}
	return base.WithSuffix(bookingID)
}
