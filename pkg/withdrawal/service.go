package withdrawal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MinWithdrawalCents is the default platform minimum, 100 ARS.
const MinWithdrawalCents int64 = 10000

const feeBasisPointDenominator = 10000

const (
	operationAddBankAccount    = "add_bank_account"
	operationSetDefaultAccount = "set_default_bank_account"
	operationRemoveBankAccount = "remove_bank_account"
	operationRequest           = "request_withdrawal"
	operationApprove           = "approve_withdrawal"
	operationReject            = "reject_withdrawal"
	operationCancel            = "cancel_withdrawal"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)

// Service drives the withdrawal request state machine and the bank account
// registry backing it. Balance sufficiency and status transitions are
// delegated to the Store as single atomic operations; the service never
// computes "is there enough balance" on its own.
type Service struct {
	store              Store
	nowFn              func() time.Time
	logger             OperationLogger
	feeBasisPoints     int64
	minWithdrawalCents int64
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:              store,
		nowFn:              now,
		minWithdrawalCents: MinWithdrawalCents,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// AddBankAccount registers a new withdrawal destination. The store defaults
// the first account registered for the user.
func (service *Service) AddBankAccount(ctx context.Context, input BankAccountInput) (BankAccount, error) {
	account, err := service.store.CreateBankAccount(ctx, BankAccount{
		UserID:         input.UserID(),
		AccountType:    input.AccountType(),
		AccountNumber:  input.AccountNumber(),
		HolderName:     input.HolderName(),
		HolderDocument: input.HolderDocument(),
		BankName:       input.BankName(),
		IsActive:       true,
		CreatedUnixUTC: service.nowFn().Unix(),
	})
	service.logOperation(operationAddBankAccount, input.UserID(), "", 0, err)
	if err != nil {
		return BankAccount{}, err
	}
	return account, nil
}

// BankAccounts lists the user's active destinations.
func (service *Service) BankAccounts(ctx context.Context, userID string) ([]BankAccount, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return service.store.ListBankAccounts(ctx, userID)
}

// SetDefaultAccount marks one account as the user's default. Unsetting the
// previous default and setting the new one happen in a single store
// transaction so two racing calls cannot leave two defaults behind.
func (service *Service) SetDefaultAccount(ctx context.Context, userID, accountID string) error {
	account, err := service.ownedAccount(ctx, userID, accountID)
	if err == nil && !account.IsActive {
		err = fmt.Errorf("%w: %s", ErrAccountInactive, accountID)
	}
	if err == nil {
		err = service.store.SetDefaultBankAccount(ctx, userID, accountID)
	}
	service.logOperation(operationSetDefaultAccount, userID, "", 0, err)
	return err
}

// RemoveBankAccount deactivates a destination. Deactivating the default
// leaves the user without one until they pick another.
func (service *Service) RemoveBankAccount(ctx context.Context, userID, accountID string) error {
	_, err := service.ownedAccount(ctx, userID, accountID)
	if err == nil {
		err = service.store.DeactivateBankAccount(ctx, userID, accountID)
	}
	service.logOperation(operationRemoveBankAccount, userID, "", 0, err)
	return err
}

// RequestWithdrawal opens a pending withdrawal against one of the user's
// active accounts, or the default account when accountID is empty. The
// balance check and row creation are one atomic store operation.
func (service *Service) RequestWithdrawal(ctx context.Context, userID, accountID string, amountCents int64, notes string) (RequestReceipt, error) {
	receipt, err := service.requestWithdrawal(ctx, userID, accountID, amountCents, notes)
	service.logOperation(operationRequest, userID, receipt.RequestID, amountCents, err)
	return receipt, err
}

func (service *Service) requestWithdrawal(ctx context.Context, userID, accountID string, amountCents int64, notes string) (RequestReceipt, error) {
	if strings.TrimSpace(userID) == "" {
		return RequestReceipt{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if amountCents <= 0 {
		return RequestReceipt{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amountCents)
	}
	if amountCents < service.minWithdrawalCents {
		return RequestReceipt{}, fmt.Errorf("%w: minimum is %d cents", ErrAmountBelowMinimum, service.minWithdrawalCents)
	}

	account, err := service.resolveAccount(ctx, userID, accountID)
	if err != nil {
		return RequestReceipt{}, err
	}

	feeCents := amountCents * service.feeBasisPoints / feeBasisPointDenominator
	now := service.nowFn().Unix()
	request, availableCents, err := service.store.CreateWithdrawal(ctx, Request{
		UserID:         userID,
		BankAccountID:  account.AccountID,
		AmountCents:    amountCents,
		FeeCents:       feeCents,
		NetCents:       amountCents - feeCents,
		Status:         StatusPending,
		UserNotes:      strings.TrimSpace(notes),
		CreatedUnixUTC: now,
		UpdatedUnixUTC: now,
	})
	if err != nil {
		return RequestReceipt{}, err
	}
	return RequestReceipt{
		RequestID:         request.RequestID,
		AmountCents:       request.AmountCents,
		FeeCents:          request.FeeCents,
		NetCents:          request.NetCents,
		NewAvailableCents: availableCents,
	}, nil
}

func (service *Service) resolveAccount(ctx context.Context, userID, accountID string) (BankAccount, error) {
	if strings.TrimSpace(accountID) == "" {
		accounts, err := service.store.ListBankAccounts(ctx, userID)
		if err != nil {
			return BankAccount{}, err
		}
		for _, account := range accounts {
			if account.IsDefault && account.IsActive {
				return account, nil
			}
		}
		return BankAccount{}, fmt.Errorf("%w: user %s", ErrNoDefaultAccount, userID)
	}
	account, err := service.ownedAccount(ctx, userID, accountID)
	if err != nil {
		return BankAccount{}, err
	}
	if !account.IsActive {
		return BankAccount{}, fmt.Errorf("%w: %s", ErrAccountInactive, accountID)
	}
	return account, nil
}

// ApproveWithdrawal transitions a pending request to completed and writes the
// wallet debit in the same store transaction. A request that already left
// pending surfaces ErrRequestNotPending.
func (service *Service) ApproveWithdrawal(ctx context.Context, requestID, adminNotes string) (Request, error) {
	request, err := service.store.CompleteWithdrawal(ctx, requestID, strings.TrimSpace(adminNotes), service.nowFn().Unix())
	service.logOperation(operationApprove, request.UserID, requestID, request.AmountCents, err)
	if err != nil {
		return Request{}, err
	}
	return request, nil
}

// RejectWithdrawal transitions a pending request to rejected. The reason is
// mandatory and stored on the request.
func (service *Service) RejectWithdrawal(ctx context.Context, requestID, reason string) (Request, error) {
	if strings.TrimSpace(reason) == "" {
		err := fmt.Errorf("%w: request %s", ErrMissingReason, requestID)
		service.logOperation(operationReject, "", requestID, 0, err)
		return Request{}, err
	}
	request, err := service.store.RejectWithdrawal(ctx, requestID, strings.TrimSpace(reason), service.nowFn().Unix())
	service.logOperation(operationReject, request.UserID, requestID, request.AmountCents, err)
	if err != nil {
		return Request{}, err
	}
	return request, nil
}

// CancelRequest is the user-initiated transition to cancelled, guarded the
// same way as the admin actions. Only the request owner may cancel.
func (service *Service) CancelRequest(ctx context.Context, userID, requestID string) (Request, error) {
	request, err := service.cancelRequest(ctx, userID, requestID)
	service.logOperation(operationCancel, userID, requestID, request.AmountCents, err)
	return request, err
}

func (service *Service) cancelRequest(ctx context.Context, userID, requestID string) (Request, error) {
	current, err := service.store.GetWithdrawal(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if current.UserID != userID {
		return Request{}, fmt.Errorf("%w: request %s", ErrNotRequestOwner, requestID)
	}
	return service.store.CancelWithdrawal(ctx, requestID, service.nowFn().Unix())
}

// Request returns a single withdrawal request.
func (service *Service) Request(ctx context.Context, requestID string) (Request, error) {
	return service.store.GetWithdrawal(ctx, requestID)
}

// Requests lists withdrawal requests matching the filters.
func (service *Service) Requests(ctx context.Context, filters Filters) ([]Request, error) {
	return service.store.ListWithdrawals(ctx, filters)
}

func (service *Service) ownedAccount(ctx context.Context, userID, accountID string) (BankAccount, error) {
	if strings.TrimSpace(userID) == "" {
		return BankAccount{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	account, err := service.store.GetBankAccount(ctx, accountID)
	if err != nil {
		return BankAccount{}, err
	}
	if account.UserID != userID {
		return BankAccount{}, fmt.Errorf("%w: account %s", ErrNotAccountOwner, accountID)
	}
	return account, nil
}

func (service *Service) logOperation(operation, userID, requestID string, amountCents int64, err error) {
	if service.logger == nil {
		return
	}
	entry := OperationLog{
		Operation: operation,
		UserID:    userID,
		RequestID: requestID,
		Amount:    amountCents,
		Status:    operationStatusOK,
	}
	if err != nil {
		entry.Status = operationStatusError
		entry.Error = err.Error()
	}
	service.logger.LogOperation(entry)
}
