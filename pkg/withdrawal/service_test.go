package withdrawal

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const cbu22 = "2850590940090418135201"

func TestFirstAccountIsAutoDefaulted(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustService(test, store)

	first := mustAddAccount(test, service, "renter-1", "cbu", cbu22)
	if !first.IsDefault {
		test.Fatalf("first account must be defaulted automatically")
	}
	second := mustAddAccount(test, service, "renter-1", "alias", "jane.renter.mp")
	if second.IsDefault {
		test.Fatalf("second account must not steal the default")
	}
}

func TestSetDefaultAccountIsExclusive(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustService(test, store)
	mustAddAccount(test, service, "renter-1", "cbu", cbu22)
	second := mustAddAccount(test, service, "renter-1", "alias", "jane.renter.mp")

	if err := service.SetDefaultAccount(context.Background(), "renter-1", second.AccountID); err != nil {
		test.Fatalf("SetDefaultAccount: %v", err)
	}

	accounts, err := service.BankAccounts(context.Background(), "renter-1")
	if err != nil {
		test.Fatalf("BankAccounts: %v", err)
	}
	defaults := 0
	for _, account := range accounts {
		if account.IsDefault {
			defaults++
			if account.AccountID != second.AccountID {
				test.Fatalf("wrong default account %s", account.AccountID)
			}
		}
	}
	if defaults != 1 {
		test.Fatalf("expected exactly one default account, got %d", defaults)
	}
}

func TestSetDefaultRejectsForeignAccount(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustService(test, store)
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)

	err := service.SetDefaultAccount(context.Background(), "renter-2", account.AccountID)
	if !errors.Is(err, ErrNotAccountOwner) {
		test.Fatalf("expected ErrNotAccountOwner, got %v", err)
	}
}

func TestRemoveBankAccountDeactivates(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustService(test, store)
	account := mustAddAccount(test, service, "renter-1", "cvu", "0000003100010000000001")

	if err := service.RemoveBankAccount(context.Background(), "renter-1", account.AccountID); err != nil {
		test.Fatalf("RemoveBankAccount: %v", err)
	}
	accounts, err := service.BankAccounts(context.Background(), "renter-1")
	if err != nil {
		test.Fatalf("BankAccounts: %v", err)
	}
	if len(accounts) != 0 {
		test.Fatalf("deactivated account must not be listed, got %v", accounts)
	}
}

func TestRequestWithdrawalHappyPath(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	service := mustService(test, store)
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)

	receipt, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 20000, "rent payout")
	if err != nil {
		test.Fatalf("RequestWithdrawal: %v", err)
	}
	if receipt.FeeCents != 0 || receipt.NetCents != 20000 {
		test.Fatalf("expected fee-free receipt, got %+v", receipt)
	}
	if receipt.NewAvailableCents != 30000 {
		test.Fatalf("expected available 30000 after request, got %d", receipt.NewAvailableCents)
	}
	request, err := service.Request(context.Background(), receipt.RequestID)
	if err != nil {
		test.Fatalf("Request: %v", err)
	}
	if request.Status != StatusPending {
		test.Fatalf("new request must be pending, got %s", request.Status)
	}
	if request.UserNotes != "rent payout" {
		test.Fatalf("notes not stored: %+v", request)
	}
}

func TestRequestWithdrawalUsesDefaultAccount(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	service := mustService(test, store)
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)

	receipt, err := service.RequestWithdrawal(context.Background(), "renter-1", "", 20000, "")
	if err != nil {
		test.Fatalf("RequestWithdrawal: %v", err)
	}
	request, err := service.Request(context.Background(), receipt.RequestID)
	if err != nil {
		test.Fatalf("Request: %v", err)
	}
	if request.BankAccountID != account.AccountID {
		test.Fatalf("expected default account %s, got %s", account.AccountID, request.BankAccountID)
	}
}

func TestRequestWithdrawalNoDefaultAccount(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	service := mustService(test, store)

	_, err := service.RequestWithdrawal(context.Background(), "renter-1", "", 20000, "")
	if !errors.Is(err, ErrNoDefaultAccount) {
		test.Fatalf("expected ErrNoDefaultAccount, got %v", err)
	}
}

func TestRequestWithdrawalValidation(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	service := mustService(test, store)
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)

	if _, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 0, ""); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if _, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 9999, ""); !errors.Is(err, ErrAmountBelowMinimum) {
		test.Fatalf("expected ErrAmountBelowMinimum, got %v", err)
	}
	if _, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 60000, ""); !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestPendingRequestsReserveBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	service := mustService(test, store)
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)

	if _, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 30000, ""); err != nil {
		test.Fatalf("first request: %v", err)
	}
	// 20000 remains available; a second 30000 request must not fit.
	_, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 30000, "")
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestWithdrawalFee(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	service := mustService(test, store, WithFeeBasisPoints(150))
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)

	receipt, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 20000, "")
	if err != nil {
		test.Fatalf("RequestWithdrawal: %v", err)
	}
	if receipt.FeeCents != 300 {
		test.Fatalf("expected 1.5%% fee of 300 cents, got %d", receipt.FeeCents)
	}
	if receipt.NetCents != 19700 {
		test.Fatalf("expected net 19700, got %d", receipt.NetCents)
	}
}

func TestApproveWithdrawalCompletesAndDebits(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	service := mustService(test, store)
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)
	receipt, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 20000, "")
	if err != nil {
		test.Fatalf("RequestWithdrawal: %v", err)
	}

	request, err := service.ApproveWithdrawal(context.Background(), receipt.RequestID, "manual review ok")
	if err != nil {
		test.Fatalf("ApproveWithdrawal: %v", err)
	}
	if request.Status != StatusCompleted {
		test.Fatalf("expected completed, got %s", request.Status)
	}
	if request.AdminNotes != "manual review ok" {
		test.Fatalf("admin notes not stored: %+v", request)
	}
	if store.balanceCents["renter-1"] != 30000 {
		test.Fatalf("approval must debit the wallet, balance %d", store.balanceCents["renter-1"])
	}
}

func TestRejectOnCompletedRequestConflicts(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	service := mustService(test, store)
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)
	receipt, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 20000, "")
	if err != nil {
		test.Fatalf("RequestWithdrawal: %v", err)
	}
	if _, err := service.ApproveWithdrawal(context.Background(), receipt.RequestID, ""); err != nil {
		test.Fatalf("ApproveWithdrawal: %v", err)
	}

	_, err = service.RejectWithdrawal(context.Background(), receipt.RequestID, "too slow")
	if !errors.Is(err, ErrRequestNotPending) {
		test.Fatalf("expected ErrRequestNotPending, got %v", err)
	}
	request, err := service.Request(context.Background(), receipt.RequestID)
	if err != nil {
		test.Fatalf("Request: %v", err)
	}
	if request.Status != StatusCompleted {
		test.Fatalf("failed reject must leave the request unchanged, got %s", request.Status)
	}
}

func TestRejectRequiresReason(test *testing.T) {
	test.Parallel()
	service := mustService(test, newStubStore())
	if _, err := service.RejectWithdrawal(context.Background(), "wr-1", "  "); !errors.Is(err, ErrMissingReason) {
		test.Fatalf("expected ErrMissingReason, got %v", err)
	}
}

func TestCancelRequestSecondAttemptConflicts(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	service := mustService(test, store)
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)
	receipt, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 20000, "")
	if err != nil {
		test.Fatalf("RequestWithdrawal: %v", err)
	}

	if _, err := service.CancelRequest(context.Background(), "renter-1", receipt.RequestID); err != nil {
		test.Fatalf("first cancel: %v", err)
	}
	_, err = service.CancelRequest(context.Background(), "renter-1", receipt.RequestID)
	if !errors.Is(err, ErrRequestNotPending) {
		test.Fatalf("second cancel must conflict, got %v", err)
	}
}

func TestCancelRequestRejectsForeignRequest(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	service := mustService(test, store)
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)
	receipt, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 20000, "")
	if err != nil {
		test.Fatalf("RequestWithdrawal: %v", err)
	}

	_, err = service.CancelRequest(context.Background(), "renter-2", receipt.RequestID)
	if !errors.Is(err, ErrNotRequestOwner) {
		test.Fatalf("expected ErrNotRequestOwner, got %v", err)
	}
}

func TestCancelledRequestReleasesReservedBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	service := mustService(test, store)
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)
	receipt, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 40000, "")
	if err != nil {
		test.Fatalf("RequestWithdrawal: %v", err)
	}
	if _, err := service.CancelRequest(context.Background(), "renter-1", receipt.RequestID); err != nil {
		test.Fatalf("CancelRequest: %v", err)
	}

	if _, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 40000, ""); err != nil {
		test.Fatalf("cancelled request must release its reservation: %v", err)
	}
}

func TestRequestsFiltering(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 100000
	store.balanceCents["renter-2"] = 100000
	service := mustService(test, store)
	accountOne := mustAddAccount(test, service, "renter-1", "cbu", cbu22)
	accountTwo := mustAddAccount(test, service, "renter-2", "alias", "other.renter")
	if _, err := service.RequestWithdrawal(context.Background(), "renter-1", accountOne.AccountID, 20000, ""); err != nil {
		test.Fatalf("RequestWithdrawal: %v", err)
	}
	if _, err := service.RequestWithdrawal(context.Background(), "renter-2", accountTwo.AccountID, 30000, ""); err != nil {
		test.Fatalf("RequestWithdrawal: %v", err)
	}

	requests, err := service.Requests(context.Background(), Filters{UserID: "renter-1"})
	if err != nil {
		test.Fatalf("Requests: %v", err)
	}
	if len(requests) != 1 || requests[0].UserID != "renter-1" {
		test.Fatalf("unexpected filter result %v", requests)
	}
	pending, err := service.Requests(context.Background(), Filters{Status: StatusPending})
	if err != nil {
		test.Fatalf("Requests: %v", err)
	}
	if len(pending) != 2 {
		test.Fatalf("expected 2 pending requests, got %d", len(pending))
	}
}

func TestOperationLoggerReceivesOutcomes(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.balanceCents["renter-1"] = 50000
	recorder := &recorderLogger{}
	service := mustService(test, store, WithOperationLogger(recorder))
	account := mustAddAccount(test, service, "renter-1", "cbu", cbu22)

	if _, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 20000, ""); err != nil {
		test.Fatalf("RequestWithdrawal: %v", err)
	}
	if _, err := service.RequestWithdrawal(context.Background(), "renter-1", account.AccountID, 90000, ""); !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	var requestLogs []OperationLog
	for _, entry := range recorder.entries {
		if entry.Operation == "request_withdrawal" {
			requestLogs = append(requestLogs, entry)
		}
	}
	if len(requestLogs) != 2 {
		test.Fatalf("expected 2 request logs, got %d", len(requestLogs))
	}
	if requestLogs[0].Status != "ok" || requestLogs[1].Status != "error" {
		test.Fatalf("unexpected log statuses %v", requestLogs)
	}
	if !strings.Contains(requestLogs[1].Error, "insufficient") {
		test.Fatalf("error log must carry the failure: %+v", requestLogs[1])
	}
}

type recorderLogger struct {
	entries []OperationLog
}

func (recorder *recorderLogger) LogOperation(entry OperationLog) {
	recorder.entries = append(recorder.entries, entry)
}

func TestNewServiceValidatesDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, testClock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewService(newStubStore(), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
}
