package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/drivana/settlement/pkg/ledger"
	"github.com/drivana/settlement/pkg/withdrawal"
)

const withdrawalRefPrefix = "withdrawal"

// CreateBankAccount implements withdrawal.Store. The user's first active
// account is defaulted inside the same transaction.
func (store *Store) CreateBankAccount(ctx context.Context, account withdrawal.BankAccount) (withdrawal.BankAccount, error) {
	var created BankAccount
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		var activeCount int64
		if err := transaction.Model(&BankAccount{}).
			Where("user_id = ? AND is_active = ?", account.UserID, true).
			Count(&activeCount).Error; err != nil {
			return err
		}
		created = BankAccount{
			UserID:         account.UserID,
			AccountType:    account.AccountType.String(),
			AccountNumber:  account.AccountNumber,
			HolderName:     account.HolderName,
			HolderDocument: account.HolderDocument,
			BankName:       account.BankName,
			IsDefault:      activeCount == 0,
			IsActive:       true,
			CreatedAt:      createdAtOrNow(account.CreatedUnixUTC),
		}
		return transaction.Create(&created).Error
	})
	if err != nil {
		return withdrawal.BankAccount{}, fmt.Errorf("create bank account: %w", err)
	}
	return mapBankAccount(created)
}

// GetBankAccount implements withdrawal.Store.
func (store *Store) GetBankAccount(ctx context.Context, accountID string) (withdrawal.BankAccount, error) {
	var row BankAccount
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return withdrawal.BankAccount{}, fmt.Errorf("%w: %s", withdrawal.ErrUnknownBankAccount, accountID)
	}
	if err != nil {
		return withdrawal.BankAccount{}, fmt.Errorf("get bank account: %w", err)
	}
	return mapBankAccount(row)
}

// ListBankAccounts implements withdrawal.Store: active accounts only.
func (store *Store) ListBankAccounts(ctx context.Context, userID string) ([]withdrawal.BankAccount, error) {
	var rows []BankAccount
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list bank accounts: %w", err)
	}
	accounts := make([]withdrawal.BankAccount, 0, len(rows))
	for _, row := range rows {
		account, err := mapBankAccount(row)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// SetDefaultBankAccount implements withdrawal.Store: the previous default is
// unset and the new one set in a single transaction, so two racing calls
// cannot leave two defaults behind.
func (store *Store) SetDefaultBankAccount(ctx context.Context, userID, accountID string) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := transaction.Model(&BankAccount{}).
			Where("user_id = ? AND is_default = ?", userID, true).
			Update("is_default", false).Error; err != nil {
			return fmt.Errorf("unset default bank account: %w", err)
		}
		result := transaction.Model(&BankAccount{}).
			Where("account_id = ? AND user_id = ? AND is_active = ?", accountID, userID, true).
			Update("is_default", true)
		if result.Error != nil {
			return fmt.Errorf("set default bank account: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", withdrawal.ErrUnknownBankAccount, accountID)
		}
		return nil
	})
}

// DeactivateBankAccount implements withdrawal.Store.
func (store *Store) DeactivateBankAccount(ctx context.Context, userID, accountID string) error {
	result := store.db.WithContext(ctx).
		Model(&BankAccount{}).
		Where("account_id = ? AND user_id = ? AND is_active = ?", accountID, userID, true).
		Updates(map[string]interface{}{"is_active": false, "is_default": false})
	if result.Error != nil {
		return fmt.Errorf("deactivate bank account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", withdrawal.ErrUnknownBankAccount, accountID)
	}
	return nil
}

// CreateWithdrawal implements withdrawal.Store: the balance check and the
// pending row creation happen in one transaction, so two concurrent requests
// cannot both fit into the same available balance.
func (store *Store) CreateWithdrawal(ctx context.Context, request withdrawal.Request) (withdrawal.Request, int64, error) {
	var created WithdrawalRequest
	var availableAfter int64
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		txStore := &Store{db: transaction}
		userID, err := ledger.NewUserID(request.UserID)
		if err != nil {
			return err
		}
		accountID, err := txStore.GetOrCreateAccountID(ctx, userID)
		if err != nil {
			return err
		}
		total, err := txStore.SumEntries(ctx, accountID)
		if err != nil {
			return err
		}
		pending, err := txStore.SumPendingWithdrawals(ctx, accountID)
		if err != nil {
			return err
		}
		available := total - pending
		if request.AmountCents > available {
			return fmt.Errorf("%w: available %d cents", withdrawal.ErrInsufficientFunds, available)
		}
		created = WithdrawalRequest{
			UserID:        request.UserID,
			BankAccountID: request.BankAccountID,
			AmountCents:   request.AmountCents,
			FeeCents:      request.FeeCents,
			NetCents:      request.NetCents,
			Status:        withdrawal.StatusPending.String(),
			UserNotes:     request.UserNotes,
			CreatedAt:     createdAtOrNow(request.CreatedUnixUTC),
			UpdatedAt:     createdAtOrNow(request.UpdatedUnixUTC),
		}
		if err := transaction.Create(&created).Error; err != nil {
			return fmt.Errorf("create withdrawal request: %w", err)
		}
		availableAfter = available - request.AmountCents
		return nil
	})
	if err != nil {
		return withdrawal.Request{}, 0, err
	}
	mapped, err := mapWithdrawalRequest(created)
	if err != nil {
		return withdrawal.Request{}, 0, err
	}
	return mapped, availableAfter, nil
}

// GetWithdrawal implements withdrawal.Store.
func (store *Store) GetWithdrawal(ctx context.Context, requestID string) (withdrawal.Request, error) {
	var row WithdrawalRequest
	err := store.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return withdrawal.Request{}, fmt.Errorf("%w: %s", withdrawal.ErrUnknownRequest, requestID)
	}
	if err != nil {
		return withdrawal.Request{}, fmt.Errorf("get withdrawal request: %w", err)
	}
	return mapWithdrawalRequest(row)
}

// ListWithdrawals implements withdrawal.Store.
func (store *Store) ListWithdrawals(ctx context.Context, filters withdrawal.Filters) ([]withdrawal.Request, error) {
	query := store.db.WithContext(ctx).Model(&WithdrawalRequest{}).Order("created_at DESC")
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status.String())
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	var rows []WithdrawalRequest
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list withdrawal requests: %w", err)
	}
	requests := make([]withdrawal.Request, 0, len(rows))
	for _, row := range rows {
		request, err := mapWithdrawalRequest(row)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, nil
}

// CompleteWithdrawal implements withdrawal.Store: the pending-to-completed
// transition and the compensating wallet debit commit together or not at all.
func (store *Store) CompleteWithdrawal(ctx context.Context, requestID, adminNotes string, atUnixUTC int64) (withdrawal.Request, error) {
	var row WithdrawalRequest
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		txStore := &Store{db: transaction}
		if err := txStore.guardedTransition(requestID, withdrawal.StatusCompleted, atUnixUTC, map[string]interface{}{
			"admin_notes": adminNotes,
		}); err != nil {
			return err
		}
		if err := transaction.Where("request_id = ?", requestID).Take(&row).Error; err != nil {
			return fmt.Errorf("reload withdrawal request: %w", err)
		}

		userID, err := ledger.NewUserID(row.UserID)
		if err != nil {
			return err
		}
		accountID, err := txStore.GetOrCreateAccountID(ctx, userID)
		if err != nil {
			return err
		}
		baseRef, err := ledger.NewRef(withdrawalRefPrefix)
		if err != nil {
			return err
		}
		ref, err := baseRef.WithSuffix(row.RequestID)
		if err != nil {
			return err
		}
		amount, err := ledger.NewSignedAmountCents(-row.AmountCents)
		if err != nil {
			return err
		}
		metadata, err := ledger.NewMetadataJSON(fmt.Sprintf(`{"withdrawal_request_id":%q}`, row.RequestID))
		if err != nil {
			return err
		}
		debit, err := ledger.NewEntryInput(accountID, ledger.KindWithdrawalDebit, amount, ref, nil, metadata, atUnixUTC)
		if err != nil {
			return err
		}
		return txStore.InsertEntry(ctx, debit)
	})
	if err != nil {
		return withdrawal.Request{}, err
	}
	return mapWithdrawalRequest(row)
}

// RejectWithdrawal implements withdrawal.Store.
func (store *Store) RejectWithdrawal(ctx context.Context, requestID, reason string, atUnixUTC int64) (withdrawal.Request, error) {
	return store.transitionAndReload(ctx, requestID, withdrawal.StatusRejected, atUnixUTC, map[string]interface{}{
		"rejection_reason": reason,
	})
}

// CancelWithdrawal implements withdrawal.Store.
func (store *Store) CancelWithdrawal(ctx context.Context, requestID string, atUnixUTC int64) (withdrawal.Request, error) {
	return store.transitionAndReload(ctx, requestID, withdrawal.StatusCancelled, atUnixUTC, nil)
}

func (store *Store) transitionAndReload(ctx context.Context, requestID string, to withdrawal.Status, atUnixUTC int64, extra map[string]interface{}) (withdrawal.Request, error) {
	var row WithdrawalRequest
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		txStore := &Store{db: transaction}
		if err := txStore.guardedTransition(requestID, to, atUnixUTC, extra); err != nil {
			return err
		}
		if err := transaction.Where("request_id = ?", requestID).Take(&row).Error; err != nil {
			return fmt.Errorf("reload withdrawal request: %w", err)
		}
		return nil
	})
	if err != nil {
		return withdrawal.Request{}, err
	}
	return mapWithdrawalRequest(row)
}

// guardedTransition is the status-guard compare-and-swap: the update is
// conditioned on the row still being pending. Zero affected rows means the
// request either does not exist or already left pending; the two cases are
// distinguished for the caller.
func (store *Store) guardedTransition(requestID string, to withdrawal.Status, atUnixUTC int64, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     to.String(),
		"updated_at": time.Unix(atUnixUTC, 0).UTC(),
	}
	for column, value := range extra {
		updates[column] = value
	}
	result := store.db.Model(&WithdrawalRequest{}).
		Where("request_id = ? AND status = ?", requestID, withdrawal.StatusPending.String()).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update withdrawal status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var current WithdrawalRequest
		err := store.db.Where("request_id = ?", requestID).Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", withdrawal.ErrUnknownRequest, requestID)
		}
		if err != nil {
			return fmt.Errorf("inspect withdrawal request: %w", err)
		}
		return fmt.Errorf("%w: status %s", withdrawal.ErrRequestNotPending, current.Status)
	}
	return nil
}

func mapBankAccount(row BankAccount) (withdrawal.BankAccount, error) {
	accountType, err := withdrawal.ParseAccountType(row.AccountType)
	if err != nil {
		return withdrawal.BankAccount{}, err
	}
	return withdrawal.BankAccount{
		AccountID:      row.AccountID,
		UserID:         row.UserID,
		AccountType:    accountType,
		AccountNumber:  row.AccountNumber,
		HolderName:     row.HolderName,
		HolderDocument: row.HolderDocument,
		BankName:       row.BankName,
		IsDefault:      row.IsDefault,
		IsActive:       row.IsActive,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func mapWithdrawalRequest(row WithdrawalRequest) (withdrawal.Request, error) {
	status, err := withdrawal.ParseStatus(row.Status)
	if err != nil {
		return withdrawal.Request{}, err
	}
	return withdrawal.Request{
		RequestID:       row.RequestID,
		UserID:          row.UserID,
		BankAccountID:   row.BankAccountID,
		AmountCents:     row.AmountCents,
		FeeCents:        row.FeeCents,
		NetCents:        row.NetCents,
		Status:          status,
		UserNotes:       row.UserNotes,
		RejectionReason: row.RejectionReason,
		AdminNotes:      row.AdminNotes,
		CreatedUnixUTC:  row.CreatedAt.Unix(),
		UpdatedUnixUTC:  row.UpdatedAt.Unix(),
	}, nil
}

func createdAtOrNow(unixUTC int64) time.Time {
	if unixUTC == 0 {
		return time.Now().UTC()
	}
	return time.Unix(unixUTC, 0).UTC()
}
