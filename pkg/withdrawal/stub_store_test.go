package withdrawal

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// stubStore is an in-memory Store honoring the atomicity contracts: balance
// check plus insert in CreateWithdrawal, status guard on every transition.
type stubStore struct {
	accounts       map[string]BankAccount
	requests       map[string]Request
	balanceCents   map[string]int64
	nextAccountSeq int
	nextRequestSeq int
	failWith       error
}

func newStubStore() *stubStore {
	return &stubStore{
		accounts:     make(map[string]BankAccount),
		requests:     make(map[string]Request),
		balanceCents: make(map[string]int64),
	}
}

func (store *stubStore) CreateBankAccount(_ context.Context, account BankAccount) (BankAccount, error) {
	if store.failWith != nil {
		return BankAccount{}, store.failWith
	}
	store.nextAccountSeq++
	account.AccountID = fmt.Sprintf("acct-%d", store.nextAccountSeq)
	account.IsDefault = true
	for _, existing := range store.accounts {
		if existing.UserID == account.UserID && existing.IsActive {
			account.IsDefault = false
			break
		}
	}
	store.accounts[account.AccountID] = account
	return account, nil
}

func (store *stubStore) GetBankAccount(_ context.Context, accountID string) (BankAccount, error) {
	if store.failWith != nil {
		return BankAccount{}, store.failWith
	}
	account, found := store.accounts[accountID]
	if !found {
		return BankAccount{}, fmt.Errorf("%w: %s", ErrUnknownBankAccount, accountID)
	}
	return account, nil
}

func (store *stubStore) ListBankAccounts(_ context.Context, userID string) ([]BankAccount, error) {
	if store.failWith != nil {
		return nil, store.failWith
	}
	accounts := []BankAccount{}
	for _, account := range store.accounts {
		if account.UserID == userID && account.IsActive {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

func (store *stubStore) SetDefaultBankAccount(_ context.Context, userID, accountID string) error {
	if store.failWith != nil {
		return store.failWith
	}
	for id, account := range store.accounts {
		if account.UserID == userID {
			account.IsDefault = id == accountID
			store.accounts[id] = account
		}
	}
	return nil
}

func (store *stubStore) DeactivateBankAccount(_ context.Context, userID, accountID string) error {
	if store.failWith != nil {
		return store.failWith
	}
	account, found := store.accounts[accountID]
	if !found || account.UserID != userID {
		return fmt.Errorf("%w: %s", ErrUnknownBankAccount, accountID)
	}
	account.IsActive = false
	account.IsDefault = false
	store.accounts[accountID] = account
	return nil
}

func (store *stubStore) CreateWithdrawal(_ context.Context, request Request) (Request, int64, error) {
	if store.failWith != nil {
		return Request{}, 0, store.failWith
	}
	available := store.availableFor(request.UserID)
	if request.AmountCents > available {
		return Request{}, 0, fmt.Errorf("%w: available %d", ErrInsufficientFunds, available)
	}
	store.nextRequestSeq++
	request.RequestID = fmt.Sprintf("wr-%d", store.nextRequestSeq)
	store.requests[request.RequestID] = request
	return request, available - request.AmountCents, nil
}

func (store *stubStore) availableFor(userID string) int64 {
	available := store.balanceCents[userID]
	for _, request := range store.requests {
		if request.UserID == userID && request.Status == StatusPending {
			available -= request.AmountCents
		}
	}
	return available
}

func (store *stubStore) GetWithdrawal(_ context.Context, requestID string) (Request, error) {
	if store.failWith != nil {
		return Request{}, store.failWith
	}
	request, found := store.requests[requestID]
	if !found {
		return Request{}, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	return request, nil
}

func (store *stubStore) ListWithdrawals(_ context.Context, filters Filters) ([]Request, error) {
	if store.failWith != nil {
		return nil, store.failWith
	}
	requests := []Request{}
	for _, request := range store.requests {
		if filters.UserID != "" && request.UserID != filters.UserID {
			continue
		}
		if filters.Status != "" && request.Status != filters.Status {
			continue
		}
		requests = append(requests, request)
		if filters.Limit > 0 && len(requests) == filters.Limit {
			break
		}
	}
	return requests, nil
}

func (store *stubStore) transition(requestID string, to Status, atUnixUTC int64, mutate func(*Request)) (Request, error) {
	request, found := store.requests[requestID]
	if !found {
		return Request{}, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	if request.Status != StatusPending {
		return Request{}, fmt.Errorf("%w: status %s", ErrRequestNotPending, request.Status)
	}
	request.Status = to
	request.UpdatedUnixUTC = atUnixUTC
	if mutate != nil {
		mutate(&request)
	}
	store.requests[requestID] = request
	return request, nil
}

func (store *stubStore) CompleteWithdrawal(_ context.Context, requestID, adminNotes string, atUnixUTC int64) (Request, error) {
	if store.failWith != nil {
		return Request{}, store.failWith
	}
	request, err := store.transition(requestID, StatusCompleted, atUnixUTC, func(request *Request) {
		request.AdminNotes = adminNotes
	})
	if err != nil {
		return Request{}, err
	}
	store.balanceCents[request.UserID] -= request.AmountCents
	return request, nil
}

func (store *stubStore) RejectWithdrawal(_ context.Context, requestID, reason string, atUnixUTC int64) (Request, error) {
	if store.failWith != nil {
		return Request{}, store.failWith
	}
	return store.transition(requestID, StatusRejected, atUnixUTC, func(request *Request) {
		request.RejectionReason = reason
	})
}

func (store *stubStore) CancelWithdrawal(_ context.Context, requestID string, atUnixUTC int64) (Request, error) {
	if store.failWith != nil {
		return Request{}, store.failWith
	}
	return store.transition(requestID, StatusCancelled, atUnixUTC, nil)
}

var testClock = func() time.Time {
	return time.Unix(1700000000, 0).UTC()
}

func mustService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, testClock, options...)
	if err != nil {
		test.Fatalf("NewService: %v", err)
	}
	return service
}

func mustAccountInput(test *testing.T, userID, rawType, number string) BankAccountInput {
	test.Helper()
	input, err := NewBankAccountInput(userID, rawType, number, "Jane Renter", "30123456", "Banco Nación")
	if err != nil {
		test.Fatalf("NewBankAccountInput: %v", err)
	}
	return input
}

func mustAddAccount(test *testing.T, service *Service, userID, rawType, number string) BankAccount {
	test.Helper()
	account, err := service.AddBankAccount(context.Background(), mustAccountInput(test, userID, rawType, number))
	if err != nil {
		test.Fatalf("AddBankAccount: %v", err)
	}
	return account
}
