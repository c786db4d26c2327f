// Package gormstore backs every domain store interface with one GORM
// database: the wallet ledger, bonus-malus records, bank accounts,
// withdrawal requests and saved payment methods.
package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drivana/settlement/pkg/ledger"
)

const (
	constraintEntryAccountRef = "uniq_entry_account_ref"
	defaultMetadataJSON       = "{}"
	pgUniqueViolationCode     = "23505"
	sqliteConstraintCode      = 19

	errorOperationStore  = "store"
	errorSubjectAccount  = "account"
	errorSubjectBalance  = "balance"
	errorSubjectEntry    = "entry"
	errorCodeDuplicate   = "duplicate"
	errorCodeGet         = "get"
	errorCodeInsert      = "insert"
	errorCodeInvalid     = "invalid"
	errorCodeList        = "list"
	errorCodeLookup      = "lookup"
	errorCodeSumPending  = "sum_pending_withdrawals"
	errorCodeSumTotal    = "sum_total"
)

// Store implements ledger.Store, risk.Store, withdrawal.Store and
// preauth.CardStore using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table.
func (store *Store) Migrate() error {
	return store.db.AutoMigrate(Models()...)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// GetOrCreateAccountID resolves the user's wallet account, creating it on
// first touch.
func (store *Store) GetOrCreateAccountID(ctx context.Context, userID ledger.UserID) (string, error) {
	var account Account
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"user_id": clause.Expr{SQL: "excluded.user_id"},
			}),
		}).
		FirstOrCreate(&account, Account{UserID: userID.String()}).Error
	if err != nil {
		return "", wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return account.AccountID, nil
}

// InsertEntry appends one ledger line. A ref collision within the account
// surfaces as ledger.ErrDuplicateRef.
func (store *Store) InsertEntry(ctx context.Context, entryInput ledger.EntryInput) error {
	var bookingID *string
	if booking, hasBooking := entryInput.BookingID(); hasBooking {
		value := booking.String()
		bookingID = &value
	}
	entry := LedgerEntry{
		AccountID:   entryInput.AccountID(),
		Kind:        entryInput.Kind().String(),
		AmountCents: entryInput.AmountCents().Int64(),
		Ref:         entryInput.Ref().String(),
		BookingID:   bookingID,
		Metadata:    datatypesJSON(entryInput.MetadataJSON().String()),
		CreatedAt:   time.Unix(entryInput.CreatedUnixUTC(), 0).UTC(),
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&entry).Error
	if isUniqueViolation(err, constraintEntryAccountRef) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, ledger.ErrDuplicateRef)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

// SumEntries returns the signed total of all entries on the account.
func (store *Store) SumEntries(ctx context.Context, accountID string) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("account_id = ?", accountID).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSumTotal, err)
	}
	return sum.Total, nil
}

// SumPendingWithdrawals returns the amount reserved by withdrawal requests
// still awaiting an admin decision for the account's owner.
func (store *Store) SumPendingWithdrawals(ctx context.Context, accountID string) (int64, error) {
	var account Account
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSumPending, err)
	}
	var sum sqlSum
	err = store.db.WithContext(ctx).
		Model(&WithdrawalRequest{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("user_id = ? AND status = ?", account.UserID, "pending").
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSumPending, err)
	}
	return sum.Total, nil
}

// GetEntryByRef fetches one entry by its idempotency reference.
func (store *Store) GetEntryByRef(ctx context.Context, accountID string, ref ledger.Ref) (ledger.Entry, error) {
	var row LedgerEntry
	err := store.db.WithContext(ctx).
		Where("account_id = ? AND ref = ?", accountID, ref.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.ErrUnknownRef)
	}
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	entry, err := mapLedgerEntry(row)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

// ListEntries returns entries before the cutoff, newest first.
func (store *Store) ListEntries(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]ledger.Entry, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}

	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("account_id = ? AND created_at < ?", accountID, before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}

	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	kind, err := ledger.ParseEntryKind(row.Kind)
	if err != nil {
		return ledger.Entry{}, err
	}
	amountCents, err := ledger.NewSignedAmountCents(row.AmountCents)
	if err != nil {
		return ledger.Entry{}, err
	}
	var bookingID string
	if row.BookingID != nil {
		bookingID = *row.BookingID
	}
	return ledger.Entry{
		EntryID:        row.EntryID,
		AccountID:      row.AccountID,
		Kind:           kind,
		AmountCents:    amountCents,
		Ref:            row.Ref,
		BookingID:      bookingID,
		MetadataJSON:   string(row.Metadata),
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintName
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
