package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Service contains the domain logic over a Store.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Balance returns total and available (total minus withdrawals pending
// approval). Available may be negative: a franchise charge debits the renter
// without an available-funds guard, and the resulting overdraft is a valid,
// readable state.
func (service *Service) Balance(ctx context.Context, userID UserID) (Balance, error) {
	accountID, err := service.store.GetOrCreateAccountID(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	total, err := service.store.SumEntries(ctx, accountID)
	if err != nil {
		return Balance{}, err
	}
	pending, err := service.store.SumPendingWithdrawals(ctx, accountID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		TotalCents:     total,
		AvailableCents: total - pending,
	}, nil
}

// Credit appends a positive entry of a credit kind.
func (service *Service) Credit(ctx context.Context, userID UserID, kind EntryKind, amount AmountCents, ref Ref, bookingID *BookingID, metadata MetadataJSON) error {
	if kind.NaturalSign() <= 0 {
		return fmt.Errorf("%w: %s is not a credit kind", ErrInvalidEntryKind, kind)
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		accountID, err := transactionStore.GetOrCreateAccountID(ctx, userID)
		if err != nil {
			return err
		}
		entryInput, err := NewEntryInput(accountID, kind, amount.Signed(), ref, bookingID, metadata, service.nowFn())
		if err != nil {
			return err
		}
		return transactionStore.InsertEntry(ctx, entryInput)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCredit,
		UserID:    userID,
		Kind:      kind,
		Amount:    amount.Int64(),
		Ref:       ref,
		Error:     operationError,
	})
	return operationError
}

// Debit appends a negative entry of a debit kind if the available balance covers it.
func (service *Service) Debit(ctx context.Context, userID UserID, kind EntryKind, amount AmountCents, ref Ref, bookingID *BookingID, metadata MetadataJSON) error {
	if kind.NaturalSign() >= 0 {
		return fmt.Errorf("%w: %s is not a debit kind", ErrInvalidEntryKind, kind)
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		accountID, err := transactionStore.GetOrCreateAccountID(ctx, userID)
		if err != nil {
			return err
		}
		total, err := transactionStore.SumEntries(ctx, accountID)
		if err != nil {
			return err
		}
		pending, err := transactionStore.SumPendingWithdrawals(ctx, accountID)
		if err != nil {
			return err
		}
		if total-pending < amount.Int64() {
			return ErrInsufficientFunds
		}
		entryInput, err := NewEntryInput(accountID, kind, amount.Signed().Negated(), ref, bookingID, metadata, service.nowFn())
		if err != nil {
			return err
		}
		return transactionStore.InsertEntry(ctx, entryInput)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDebit,
		UserID:    userID,
		Kind:      kind,
		Amount:    amount.Int64(),
		Ref:       ref,
		Error:     operationError,
	})
	return operationError
}

// ChargeFranchise records an incident deductible: the renter is debited and the
// communal coverage fund is credited in one transaction, with refs derived from
// a common prefix. The renter debit is a liability and may drive the renter's
// wallet negative.
func (service *Service) ChargeFranchise(ctx context.Context, renterID UserID, fundID UserID, amount AmountCents, ref Ref, bookingID *BookingID, metadata MetadataJSON) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		renterAccountID, err := transactionStore.GetOrCreateAccountID(ctx, renterID)
		if err != nil {
			return err
		}
		fundAccountID, err := transactionStore.GetOrCreateAccountID(ctx, fundID)
		if err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		renterRef, err := ref.WithSuffix(refSuffixRenter)
		if err != nil {
			return err
		}
		renterEntry, err := NewEntryInput(renterAccountID, KindFranchiseUser, amount.Signed().Negated(), renterRef, bookingID, metadata, nowUnixUTC)
		if err != nil {
			return err
		}
		if err := transactionStore.InsertEntry(ctx, renterEntry); err != nil {
			return err
		}
		fundRef, err := ref.WithSuffix(refSuffixFund)
		if err != nil {
			return err
		}
		fundEntry, err := NewEntryInput(fundAccountID, KindFranchiseFund, amount.Signed(), fundRef, bookingID, metadata, nowUnixUTC)
		if err != nil {
			return err
		}
		return transactionStore.InsertEntry(ctx, fundEntry)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationChargeFranchise,
		UserID:    renterID,
		Kind:      KindFranchiseUser,
		Amount:    amount.Int64(),
		Ref:       ref,
		Error:     operationError,
	})
	return operationError
}

// Reverse appends the offsetting entry for the entry stored under ref. A
// second reversal of the same ref fails with ErrAlreadyReversed.
func (service *Service) Reverse(ctx context.Context, userID UserID, ref Ref, metadata MetadataJSON) error {
	var reversedKind EntryKind
	var reversedAmount int64
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		accountID, err := transactionStore.GetOrCreateAccountID(ctx, userID)
		if err != nil {
			return err
		}
		original, err := transactionStore.GetEntryByRef(ctx, accountID, ref)
		if err != nil {
			return err
		}
		reversalRef, err := ref.WithSuffix(refSuffixReverse)
		if err != nil {
			return err
		}
		if _, err := transactionStore.GetEntryByRef(ctx, accountID, reversalRef); err == nil {
			return ErrAlreadyReversed
		} else if !errors.Is(err, ErrUnknownRef) {
			return err
		}
		reversedKind = original.Kind
		reversedAmount = original.AmountCents.Int64()
		reversalEntry, err := NewReversalInput(original, metadata, service.nowFn())
		if err != nil {
			return err
		}
		return transactionStore.InsertEntry(ctx, reversalEntry)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationReverse,
		UserID:    userID,
		Kind:      reversedKind,
		Amount:    reversedAmount,
		Ref:       ref,
		Error:     operationError,
	})
	return operationError
}

// Entries lists ledger entries for a user before a cutoff time.
func (service *Service) Entries(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Entry, error) {
	accountID, err := service.store.GetOrCreateAccountID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return service.store.ListEntries(ctx, accountID, beforeUnixUTC, limit)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
