package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/drivana/settlement/pkg/ledger"
	"github.com/drivana/settlement/pkg/preauth"
	"github.com/drivana/settlement/pkg/risk"
)

type walletCall struct {
	operation string
	userID    string
	kind      ledger.EntryKind
	amount    int64
	ref       string
	fundID    string
}

type stubWallet struct {
	calls    []walletCall
	failWith error
}

func (wallet *stubWallet) Debit(_ context.Context, userID ledger.UserID, kind ledger.EntryKind, amount ledger.AmountCents, ref ledger.Ref, _ *ledger.BookingID, _ ledger.MetadataJSON) error {
	if wallet.failWith != nil {
		return wallet.failWith
	}
	wallet.calls = append(wallet.calls, walletCall{operation: "debit", userID: userID.String(), kind: kind, amount: amount.Int64(), ref: ref.String()})
	return nil
}

func (wallet *stubWallet) Reverse(_ context.Context, userID ledger.UserID, ref ledger.Ref, _ ledger.MetadataJSON) error {
	if wallet.failWith != nil {
		return wallet.failWith
	}
	wallet.calls = append(wallet.calls, walletCall{operation: "reverse", userID: userID.String(), ref: ref.String()})
	return nil
}

func (wallet *stubWallet) ChargeFranchise(_ context.Context, renterID ledger.UserID, fundID ledger.UserID, amount ledger.AmountCents, ref ledger.Ref, _ *ledger.BookingID, _ ledger.MetadataJSON) error {
	if wallet.failWith != nil {
		return wallet.failWith
	}
	wallet.calls = append(wallet.calls, walletCall{operation: "charge_franchise", userID: renterID.String(), amount: amount.Int64(), ref: ref.String(), fundID: fundID.String()})
	return nil
}

type stubDeposits struct {
	tier risk.Tier
}

func (deposits *stubDeposits) ApplyToDeposit(_ context.Context, _ string, baseCents int64) (risk.DepositQuote, error) {
	return risk.ComputeDeposit(baseCents, deposits.tier)
}

type holdCall struct {
	operation string
	input     preauth.RenewHoldInput
	paymentID string
}

type stubHolds struct {
	calls       []holdCall
	renewErr    error
	cancelOK    bool
	nextPayment int
}

func (holds *stubHolds) RenewHold(_ context.Context, input preauth.RenewHoldInput) (preauth.HoldResult, error) {
	if holds.renewErr != nil {
		return preauth.HoldResult{}, holds.renewErr
	}
	holds.nextPayment++
	holds.calls = append(holds.calls, holdCall{operation: "renew", input: input})
	return preauth.HoldResult{PaymentID: fmt.Sprintf("%d", 1000+holds.nextPayment), Status: "authorized", StatusDetail: "pending_capture"}, nil
}

func (holds *stubHolds) CancelPreauthorization(_ context.Context, paymentID string) bool {
	holds.calls = append(holds.calls, holdCall{operation: "cancel", paymentID: paymentID})
	return holds.cancelOK
}

func (holds *stubHolds) GetPayment(_ context.Context, paymentID string) (preauth.Payment, error) {
	holds.calls = append(holds.calls, holdCall{operation: "get", paymentID: paymentID})
	return preauth.Payment{ID: 1001, Status: "authorized"}, nil
}

var testClock = func() time.Time {
	return time.Unix(1700000000, 0).UTC()
}

func mustOrchestrator(test *testing.T, wallet walletLedger, deposits depositSizer, holds cardHolds) *Orchestrator {
	test.Helper()
	fundUserID, err := ledger.NewUserID("coverage-fund")
	if err != nil {
		test.Fatalf("NewUserID: %v", err)
	}
	orchestrator, err := New(wallet, deposits, holds, fundUserID, testClock)
	if err != nil {
		test.Fatalf("New: %v", err)
	}
	return orchestrator
}

func TestOnBookingCreatedWalletHold(test *testing.T) {
	test.Parallel()
	wallet := &stubWallet{}
	holds := &stubHolds{cancelOK: true}
	orchestrator := mustOrchestrator(test, wallet, &stubDeposits{tier: risk.TierTrusted}, holds)

	outcome, err := orchestrator.OnBookingCreated(context.Background(), BookingEvent{
		BookingID:        "booking-77",
		UserID:           "renter-1",
		BaseDepositCents: 100000,
		Instrument:       InstrumentWallet,
	})
	if err != nil {
		test.Fatalf("OnBookingCreated: %v", err)
	}
	if outcome.Quote.AdjustedCents != 50000 {
		test.Fatalf("trusted tier halves the deposit, got %d", outcome.Quote.AdjustedCents)
	}
	if outcome.Ref != "guarantee:booking-77" {
		test.Fatalf("unexpected guarantee ref %q", outcome.Ref)
	}
	if len(wallet.calls) != 1 {
		test.Fatalf("expected one wallet call, got %d", len(wallet.calls))
	}
	call := wallet.calls[0]
	if call.operation != "debit" || call.kind != ledger.KindGuaranteeHold || call.amount != 50000 {
		test.Fatalf("unexpected wallet call %+v", call)
	}
	if len(holds.calls) != 0 {
		test.Fatalf("wallet guarantee must not touch the gateway")
	}
}

func TestOnBookingCreatedCardHold(test *testing.T) {
	test.Parallel()
	wallet := &stubWallet{}
	holds := &stubHolds{cancelOK: true}
	orchestrator := mustOrchestrator(test, wallet, &stubDeposits{tier: risk.TierStandard}, holds)

	outcome, err := orchestrator.OnBookingCreated(context.Background(), BookingEvent{
		BookingID:         "booking-77",
		UserID:            "renter-1",
		BaseDepositCents:  100000,
		Instrument:        InstrumentCard,
		GatewayCustomerID: "cust-1",
		GatewayCardID:     "card-1",
	})
	if err != nil {
		test.Fatalf("OnBookingCreated: %v", err)
	}
	if outcome.PaymentID == "" || outcome.HoldStatus != "authorized" {
		test.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(holds.calls) != 1 {
		test.Fatalf("expected one gateway call, got %d", len(holds.calls))
	}
	input := holds.calls[0].input
	if input.AmountCents != 100000 || input.Capture {
		test.Fatalf("standard tier holds the full deposit uncaptured, got %+v", input)
	}
	if input.ExternalReference != "booking-77" {
		test.Fatalf("hold must carry the booking reference, got %q", input.ExternalReference)
	}
	if len(wallet.calls) != 0 {
		test.Fatalf("card guarantee must not touch the wallet")
	}
}

func TestOnBookingCreatedEliteWaivesEverything(test *testing.T) {
	test.Parallel()
	wallet := &stubWallet{}
	holds := &stubHolds{}
	orchestrator := mustOrchestrator(test, wallet, &stubDeposits{tier: risk.TierElite}, holds)

	outcome, err := orchestrator.OnBookingCreated(context.Background(), BookingEvent{
		BookingID:        "booking-77",
		UserID:           "renter-1",
		BaseDepositCents: 100000,
		Instrument:       InstrumentWallet,
	})
	if err != nil {
		test.Fatalf("OnBookingCreated: %v", err)
	}
	if !outcome.FullyWaived {
		test.Fatalf("elite deposit must be fully waived")
	}
	if len(wallet.calls) != 0 || len(holds.calls) != 0 {
		test.Fatalf("a waived guarantee must secure nothing")
	}
}

func TestOnBookingCreatedRejectsUnknownInstrument(test *testing.T) {
	test.Parallel()
	orchestrator := mustOrchestrator(test, &stubWallet{}, &stubDeposits{tier: risk.TierStandard}, &stubHolds{})
	_, err := orchestrator.OnBookingCreated(context.Background(), BookingEvent{
		BookingID:        "booking-77",
		UserID:           "renter-1",
		BaseDepositCents: 100000,
		Instrument:       FundingInstrument("crypto"),
	})
	if !errors.Is(err, ErrInvalidInstrument) {
		test.Fatalf("expected ErrInvalidInstrument, got %v", err)
	}
}

func TestOnBookingCreatedCardNeedsGatewayIDs(test *testing.T) {
	test.Parallel()
	orchestrator := mustOrchestrator(test, &stubWallet{}, &stubDeposits{tier: risk.TierStandard}, &stubHolds{})
	_, err := orchestrator.OnBookingCreated(context.Background(), BookingEvent{
		BookingID:        "booking-77",
		UserID:           "renter-1",
		BaseDepositCents: 100000,
		Instrument:       InstrumentCard,
	})
	if !errors.Is(err, ErrMissingCardDetails) {
		test.Fatalf("expected ErrMissingCardDetails, got %v", err)
	}
}

func TestOnHoldExpiringRenewsBeforeReleasing(test *testing.T) {
	test.Parallel()
	holds := &stubHolds{cancelOK: true}
	orchestrator := mustOrchestrator(test, &stubWallet{}, &stubDeposits{tier: risk.TierStandard}, holds)

	result, err := orchestrator.OnHoldExpiring(context.Background(), HoldExpiryEvent{
		BookingID:         "booking-77",
		GatewayCustomerID: "cust-1",
		GatewayCardID:     "card-1",
		AmountCents:       100000,
		ExpiringPaymentID: "1001",
	})
	if err != nil {
		test.Fatalf("OnHoldExpiring: %v", err)
	}
	if result.PaymentID == "" {
		test.Fatalf("expected a replacement hold")
	}
	if len(holds.calls) != 2 {
		test.Fatalf("expected renew then cancel, got %d calls", len(holds.calls))
	}
	if holds.calls[0].operation != "renew" || holds.calls[1].operation != "cancel" {
		test.Fatalf("renew must precede release: %+v", holds.calls)
	}
	if holds.calls[1].paymentID != "1001" {
		test.Fatalf("wrong hold released: %+v", holds.calls[1])
	}
}

func TestOnHoldExpiringKeepsOldHoldWhenRenewalFails(test *testing.T) {
	test.Parallel()
	holds := &stubHolds{renewErr: preauth.ErrOutcomeUnknown}
	orchestrator := mustOrchestrator(test, &stubWallet{}, &stubDeposits{tier: risk.TierStandard}, holds)

	_, err := orchestrator.OnHoldExpiring(context.Background(), HoldExpiryEvent{
		BookingID:         "booking-77",
		GatewayCustomerID: "cust-1",
		GatewayCardID:     "card-1",
		AmountCents:       100000,
		ExpiringPaymentID: "1001",
	})
	if !errors.Is(err, preauth.ErrOutcomeUnknown) {
		test.Fatalf("expected ErrOutcomeUnknown, got %v", err)
	}
	for _, call := range holds.calls {
		if call.operation == "cancel" {
			test.Fatalf("the old hold must never be released before a replacement exists")
		}
	}
}

func TestOnBookingCancelledWallet(test *testing.T) {
	test.Parallel()
	wallet := &stubWallet{}
	orchestrator := mustOrchestrator(test, wallet, &stubDeposits{tier: risk.TierStandard}, &stubHolds{cancelOK: true})

	err := orchestrator.OnBookingCancelled(context.Background(), CancellationEvent{
		BookingID:  "booking-77",
		UserID:     "renter-1",
		Instrument: InstrumentWallet,
	})
	if err != nil {
		test.Fatalf("OnBookingCancelled: %v", err)
	}
	if len(wallet.calls) != 1 || wallet.calls[0].operation != "reverse" {
		test.Fatalf("expected a ledger reversal, got %+v", wallet.calls)
	}
	if wallet.calls[0].ref != "guarantee:booking-77" {
		test.Fatalf("reversal must target the guarantee ref, got %q", wallet.calls[0].ref)
	}
}

func TestOnBookingCancelledCardIsBestEffort(test *testing.T) {
	test.Parallel()
	holds := &stubHolds{cancelOK: false}
	orchestrator := mustOrchestrator(test, &stubWallet{}, &stubDeposits{tier: risk.TierStandard}, holds)

	err := orchestrator.OnBookingCancelled(context.Background(), CancellationEvent{
		BookingID:  "booking-77",
		Instrument: InstrumentCard,
		PaymentID:  "1001",
	})
	if err != nil {
		test.Fatalf("a failed gateway release must not surface: %v", err)
	}
}

func TestChargeFranchiseUsesCoverageFund(test *testing.T) {
	test.Parallel()
	wallet := &stubWallet{}
	orchestrator := mustOrchestrator(test, wallet, &stubDeposits{tier: risk.TierStandard}, &stubHolds{})

	err := orchestrator.ChargeFranchise(context.Background(), "renter-1", "booking-77", 80000, "claim-5")
	if err != nil {
		test.Fatalf("ChargeFranchise: %v", err)
	}
	if len(wallet.calls) != 1 {
		test.Fatalf("expected one wallet call, got %d", len(wallet.calls))
	}
	call := wallet.calls[0]
	if call.operation != "charge_franchise" || call.fundID != "coverage-fund" || call.amount != 80000 {
		test.Fatalf("unexpected franchise call %+v", call)
	}
}

func TestNewValidatesDependencies(test *testing.T) {
	test.Parallel()
	fundUserID, err := ledger.NewUserID("coverage-fund")
	if err != nil {
		test.Fatalf("NewUserID: %v", err)
	}
	if _, err := New(nil, &stubDeposits{}, &stubHolds{}, fundUserID, testClock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil wallet, got %v", err)
	}
	if _, err := New(&stubWallet{}, nil, &stubHolds{}, fundUserID, testClock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil deposits, got %v", err)
	}
	if _, err := New(&stubWallet{}, &stubDeposits{}, nil, fundUserID, testClock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil holds, got %v", err)
	}
	if _, err := New(&stubWallet{}, &stubDeposits{}, &stubHolds{}, ledger.UserID{}, testClock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for empty fund id, got %v", err)
	}
	if _, err := New(&stubWallet{}, &stubDeposits{}, &stubHolds{}, fundUserID, nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
}
