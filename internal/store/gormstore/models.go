package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table: one wallet account per user.
type Account struct {
	AccountID string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"not null;index:uniq_accounts_user,unique"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the ledger_entries table. Rows are append-only; the ref
// is unique per account and doubles as the idempotency key.
type LedgerEntry struct {
	EntryID     string         `gorm:"type:uuid;primaryKey"`
	AccountID   string         `gorm:"type:uuid;not null;index:idx_ledger_account_created,priority:1;index:uniq_entry_account_ref,unique,priority:1"`
	Kind        string         `gorm:"not null"`
	AmountCents int64          `gorm:"not null"`
	Ref         string         `gorm:"not null;index:uniq_entry_account_ref,unique,priority:2"`
	BookingID   *string        `gorm:"index"`
	Metadata    datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_ledger_account_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// BonusMalusRecord mirrors the bonus_malus_records table, one row per user,
// overwritten wholesale on each recalculation.
type BonusMalusRecord struct {
	UserID              string    `gorm:"primaryKey"`
	TotalFactor         float64   `gorm:"not null"`
	Tier                string    `gorm:"not null"`
	AverageRating       float64   `gorm:"not null"`
	CancellationRate    float64   `gorm:"not null"`
	CompletedRentals    int       `gorm:"not null"`
	IsVerified          bool      `gorm:"not null"`
	NextRecalculationAt time.Time `gorm:"not null;index"`
	UpdatedAt           time.Time `gorm:"not null"`
}

func (BonusMalusRecord) TableName() string { return "bonus_malus_records" }

// RenterMetrics mirrors the renter_metrics table: rolling marketplace
// statistics pushed in from the booking system, read by the risk scorer.
type RenterMetrics struct {
	UserID           string    `gorm:"primaryKey"`
	AverageRating    float64   `gorm:"not null"`
	CancellationRate float64   `gorm:"not null"`
	CompletedRentals int       `gorm:"not null"`
	IsVerified       bool      `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (RenterMetrics) TableName() string { return "renter_metrics" }

// BankAccount mirrors the bank_accounts table.
type BankAccount struct {
	AccountID      string    `gorm:"type:uuid;primaryKey"`
	UserID         string    `gorm:"not null;index"`
	AccountType    string    `gorm:"not null"`
	AccountNumber  string    `gorm:"not null"`
	HolderName     string    `gorm:"not null"`
	HolderDocument string    `gorm:"not null"`
	BankName       string    `gorm:""`
	IsDefault      bool      `gorm:"not null"`
	IsActive       bool      `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (BankAccount) TableName() string { return "bank_accounts" }

func (account *BankAccount) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// WithdrawalRequest mirrors the withdrawal_requests table. Status changes are
// conditional updates guarded on the prior status.
type WithdrawalRequest struct {
	RequestID       string    `gorm:"type:uuid;primaryKey"`
	UserID          string    `gorm:"not null;index"`
	BankAccountID   string    `gorm:"type:uuid;not null"`
	AmountCents     int64     `gorm:"not null"`
	FeeCents        int64     `gorm:"not null"`
	NetCents        int64     `gorm:"not null"`
	Status          string    `gorm:"not null;index"`
	UserNotes       string    `gorm:""`
	RejectionReason string    `gorm:""`
	AdminNotes      string    `gorm:""`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (WithdrawalRequest) TableName() string { return "withdrawal_requests" }

func (request *WithdrawalRequest) BeforeCreate(tx *gorm.DB) error {
	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}
	return nil
}

// GatewayCustomer maps a platform user to their gateway customer id.
type GatewayCustomer struct {
	UserID     string    `gorm:"primaryKey"`
	CustomerID string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (GatewayCustomer) TableName() string { return "gateway_customers" }

// StoredPaymentMethod mirrors the payment_methods table: gateway identifiers
// and display data only, never card numbers.
type StoredPaymentMethod struct {
	UserID            string    `gorm:"primaryKey"`
	GatewayCardID     string    `gorm:"primaryKey"`
	GatewayCustomerID string    `gorm:"not null"`
	LastFour          string    `gorm:"not null"`
	Brand             string    `gorm:""`
	ExpMonth          int       `gorm:"not null"`
	ExpYear           int       `gorm:"not null"`
	CardholderName    string    `gorm:""`
	IsDefault         bool      `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (StoredPaymentMethod) TableName() string { return "payment_methods" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Account{},
		&LedgerEntry{},
		&BonusMalusRecord{},
		&RenterMetrics{},
		&BankAccount{},
		&WithdrawalRequest{},
		&GatewayCustomer{},
		&StoredPaymentMethod{},
	}
}
