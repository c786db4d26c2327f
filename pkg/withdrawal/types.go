package withdrawal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// AccountType identifies the Argentine bank account identifier scheme.
type AccountType string

const (
	AccountTypeCBU   AccountType = "cbu"
	AccountTypeCVU   AccountType = "cvu"
	AccountTypeAlias AccountType = "alias"
)

// ParseAccountType validates a stored account type value.
func ParseAccountType(raw string) (AccountType, error) {
	switch AccountType(strings.ToLower(strings.TrimSpace(raw))) {
	case AccountTypeCBU:
		return AccountTypeCBU, nil
	case AccountTypeCVU:
		return AccountTypeCVU, nil
	case AccountTypeAlias:
		return AccountTypeAlias, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAccountType, raw)
}

// String returns the stored account type value.
func (accountType AccountType) String() string {
	return string(accountType)
}

var (
	cbuPattern   = regexp.MustCompile(`^\d{22}$`)
	aliasPattern = regexp.MustCompile(`^[a-zA-Z0-9.]{6,20}$`)
)

const minHolderDocumentLength = 7

// BankAccountInput carries the fields required to register a destination
// account. All fields are validated by NewBankAccountInput.
type BankAccountInput struct {
	userID         string
	accountType    AccountType
	accountNumber  string
	holderName     string
	holderDocument string
	bankName       string
}

// NewBankAccountInput validates the account identifier against its scheme:
// cbu and cvu are exactly 22 digits, an alias is 6-20 characters drawn from
// letters, digits and dots.
func NewBankAccountInput(userID, rawType, accountNumber, holderName, holderDocument, bankName string) (BankAccountInput, error) {
	if strings.TrimSpace(userID) == "" {
		return BankAccountInput{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	accountType, err := ParseAccountType(rawType)
	if err != nil {
		return BankAccountInput{}, err
	}
	accountNumber = strings.TrimSpace(accountNumber)
	switch accountType {
	case AccountTypeCBU, AccountTypeCVU:
		if !cbuPattern.MatchString(accountNumber) {
			return BankAccountInput{}, fmt.Errorf("%w: %s must be exactly 22 digits", ErrInvalidAccountNumber, accountType)
		}
	case AccountTypeAlias:
		if !aliasPattern.MatchString(accountNumber) {
			return BankAccountInput{}, fmt.Errorf("%w: alias must be 6-20 alphanumeric or dot characters", ErrInvalidAccountNumber)
		}
	}
	if strings.TrimSpace(holderName) == "" {
		return BankAccountInput{}, fmt.Errorf("%w: empty value", ErrInvalidHolderName)
	}
	if len(strings.TrimSpace(holderDocument)) < minHolderDocumentLength {
		return BankAccountInput{}, fmt.Errorf("%w: at least %d characters required", ErrInvalidHolderDocument, minHolderDocumentLength)
	}
	return BankAccountInput{
		userID:         strings.TrimSpace(userID),
		accountType:    accountType,
		accountNumber:  accountNumber,
		holderName:     strings.TrimSpace(holderName),
		holderDocument: strings.TrimSpace(holderDocument),
		bankName:       strings.TrimSpace(bankName),
	}, nil
}

func (input BankAccountInput) UserID() string { return input.userID }

func (input BankAccountInput) AccountType() AccountType { return input.accountType }

func (input BankAccountInput) AccountNumber() string { return input.accountNumber }

func (input BankAccountInput) HolderName() string { return input.holderName }

func (input BankAccountInput) HolderDocument() string { return input.holderDocument }

func (input BankAccountInput) BankName() string { return input.bankName }

// BankAccount is a registered withdrawal destination. At most one active
// account per user carries IsDefault=true; the first account registered for a
// user is defaulted automatically.
type BankAccount struct {
	AccountID      string
	UserID         string
	AccountType    AccountType
	AccountNumber  string
	HolderName     string
	HolderDocument string
	BankName       string
	IsDefault      bool
	IsActive       bool
	CreatedUnixUTC int64
}

// Status is the withdrawal request state machine. The only legal transitions
// leave pending; completed, rejected and cancelled are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a stored status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusCompleted, StatusRejected, StatusCancelled:
		return Status(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// String returns the stored status value.
func (status Status) String() string {
	return string(status)
}

// IsTerminal reports whether no further transitions are possible.
func (status Status) IsTerminal() bool {
	return status != StatusPending
}

// Request is a withdrawal request row. Status transitions are guarded at the
// storage layer by the prior status, never overwritten blindly.
type Request struct {
	RequestID       string
	UserID          string
	BankAccountID   string
	AmountCents     int64
	FeeCents        int64
	NetCents        int64
	Status          Status
	UserNotes       string
	RejectionReason string
	AdminNotes      string
	CreatedUnixUTC  int64
	UpdatedUnixUTC  int64
}

// RequestReceipt is returned to the user after a successful request.
type RequestReceipt struct {
	RequestID         string
	AmountCents       int64
	FeeCents          int64
	NetCents          int64
	NewAvailableCents int64
}

// Filters narrows request listings. Zero values match everything.
type Filters struct {
	UserID string
	Status Status
	Limit  int
}

// Store persists bank accounts and withdrawal requests.
//
// CreateWithdrawal must check balance sufficiency and insert the pending row
// in one server-side transaction, returning ErrInsufficientFunds when the
// available balance cannot cover the amount, plus the available balance after
// the insert. CompleteWithdrawal must transition pending to completed and
// write the compensating wallet debit in the same transaction. Every
// transition method is conditioned on the prior status being pending and
// returns ErrRequestNotPending when the guard misses.
type Store interface {
	CreateBankAccount(ctx context.Context, account BankAccount) (BankAccount, error)
	GetBankAccount(ctx context.Context, accountID string) (BankAccount, error)
	ListBankAccounts(ctx context.Context, userID string) ([]BankAccount, error)
	SetDefaultBankAccount(ctx context.Context, userID, accountID string) error
	DeactivateBankAccount(ctx context.Context, userID, accountID string) error

	CreateWithdrawal(ctx context.Context, request Request) (Request, int64, error)
	GetWithdrawal(ctx context.Context, requestID string) (Request, error)
	ListWithdrawals(ctx context.Context, filters Filters) ([]Request, error)
	CompleteWithdrawal(ctx context.Context, requestID, adminNotes string, atUnixUTC int64) (Request, error)
	RejectWithdrawal(ctx context.Context, requestID, reason string, atUnixUTC int64) (Request, error)
	CancelWithdrawal(ctx context.Context, requestID string, atUnixUTC int64) (Request, error)
}
