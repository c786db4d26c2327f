package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// UserID identifies a wallet owner.
type UserID struct {
	value string
}

// Ref is the external idempotency reference attached to an entry. Reversals
// and multi-leg movements derive suffixed refs from a common prefix.
type Ref struct {
	value string
}

// BookingID optionally links an entry to the booking that caused it.
type BookingID struct {
	value string
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewRef validates and normalizes an entry ref.
func NewRef(raw string) (Ref, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Ref{}, fmt.Errorf("%w: empty value", ErrInvalidRef)
	}
	return Ref{value: trimmed}, nil
}

// String returns the normalized ref.
func (ref Ref) String() string {
	return ref.value
}

// WithSuffix derives a ref sharing this ref's prefix.
func (ref Ref) WithSuffix(suffix string) (Ref, error) {
	return NewRef(ref.value + refDelimiter + suffix)
}

// NewBookingID validates and normalizes a booking id.
func NewBookingID(raw string) (BookingID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BookingID{}, fmt.Errorf("%w: empty value", ErrInvalidBookingID)
	}
	return BookingID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BookingID) String() string {
	return id.value
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// AmountCents is a strictly positive amount in integer cents.
type AmountCents int64

// NewAmountCents validates a strictly positive amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// Int64 returns the raw cents value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Signed widens the amount to a signed entry amount.
func (amount AmountCents) Signed() SignedAmountCents {
	return SignedAmountCents(amount)
}

// SignedAmountCents is a non-zero signed entry amount in integer cents.
type SignedAmountCents int64

// NewSignedAmountCents validates a non-zero signed amount.
func NewSignedAmountCents(raw int64) (SignedAmountCents, error) {
	if raw == 0 {
		return 0, fmt.Errorf("%w: must be non-zero", ErrInvalidAmountCents)
	}
	return SignedAmountCents(raw), nil
}

// Int64 returns the raw cents value.
func (amount SignedAmountCents) Int64() int64 {
	return int64(amount)
}

// Negated flips the sign.
func (amount SignedAmountCents) Negated() SignedAmountCents {
	return -amount
}

// EntryKind enumerates ledger entry kinds.
type EntryKind string

const (
	KindDeposit         EntryKind = "deposit"
	KindRefund          EntryKind = "refund"
	KindBonus           EntryKind = "bonus"
	KindGuaranteeHold   EntryKind = "guarantee_hold"
	KindFranchiseUser   EntryKind = "franchise_user"
	KindFranchiseFund   EntryKind = "franchise_fund"
	KindWithdrawalDebit EntryKind = "withdrawal_debit"
)

var entrySigns = map[EntryKind]int{
	KindDeposit:         +1,
	KindRefund:          +1,
	KindBonus:           +1,
	KindGuaranteeHold:   -1,
	KindFranchiseUser:   -1,
	KindFranchiseFund:   +1,
	KindWithdrawalDebit: -1,
}

// ParseEntryKind validates a stored kind value.
func ParseEntryKind(raw string) (EntryKind, error) {
	kind := EntryKind(raw)
	if _, known := entrySigns[kind]; !known {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryKind, raw)
	}
	return kind, nil
}

// String returns the stored kind value.
func (kind EntryKind) String() string {
	return string(kind)
}

// NaturalSign reports the sign an entry of this kind carries (+1 credit, -1 debit).
func (kind EntryKind) NaturalSign() int {
	return entrySigns[kind]
}

// EntryInput is a validated, not-yet-persisted ledger line.
type EntryInput struct {
	accountID      string
	kind           EntryKind
	amountCents    SignedAmountCents
	ref            Ref
	bookingID      *BookingID
	metadata       MetadataJSON
	createdUnixUTC int64
}

// NewEntryInput validates an entry whose amount carries the kind's natural sign.
func NewEntryInput(accountID string, kind EntryKind, amount SignedAmountCents, ref Ref, bookingID *BookingID, metadata MetadataJSON, createdUnixUTC int64) (EntryInput, error) {
	input, err := newEntryInput(accountID, kind, amount, ref, bookingID, metadata, createdUnixUTC)
	if err != nil {
		return EntryInput{}, err
	}
	if sign := kind.NaturalSign(); (sign > 0) != (amount > 0) {
		return EntryInput{}, fmt.Errorf("%w: %s entries must carry sign %+d", ErrInvalidAmountCents, kind, sign)
	}
	return input, nil
}

// NewReversalInput builds the offsetting entry for a stored entry: same kind,
// negated amount, ref derived from the original ref prefix.
func NewReversalInput(original Entry, metadata MetadataJSON, createdUnixUTC int64) (EntryInput, error) {
	originalRef, err := NewRef(original.Ref)
	if err != nil {
		return EntryInput{}, err
	}
	reversalRef, err := originalRef.WithSuffix(refSuffixReverse)
	if err != nil {
		return EntryInput{}, err
	}
	var bookingID *BookingID
	if original.BookingID != "" {
		parsed, err := NewBookingID(original.BookingID)
		if err != nil {
			return EntryInput{}, err
		}
		bookingID = &parsed
	}
	return newEntryInput(original.AccountID, original.Kind, original.AmountCents.Negated(), reversalRef, bookingID, metadata, createdUnixUTC)
}

func newEntryInput(accountID string, kind EntryKind, amount SignedAmountCents, ref Ref, bookingID *BookingID, metadata MetadataJSON, createdUnixUTC int64) (EntryInput, error) {
	if strings.TrimSpace(accountID) == "" {
		return EntryInput{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	if _, err := ParseEntryKind(kind.String()); err != nil {
		return EntryInput{}, err
	}
	if amount == 0 {
		return EntryInput{}, fmt.Errorf("%w: must be non-zero", ErrInvalidAmountCents)
	}
	if ref.value == "" {
		return EntryInput{}, fmt.Errorf("%w: empty value", ErrInvalidRef)
	}
	if metadata.value == "" {
		metadata = MetadataJSON{value: "{}"}
	}
	return EntryInput{
		accountID:      accountID,
		kind:           kind,
		amountCents:    amount,
		ref:            ref,
		bookingID:      bookingID,
		metadata:       metadata,
		createdUnixUTC: createdUnixUTC,
	}, nil
}

// AccountID returns the owning account.
func (input EntryInput) AccountID() string {
	return input.accountID
}

// Kind returns the entry kind.
func (input EntryInput) Kind() EntryKind {
	return input.kind
}

// AmountCents returns the signed amount.
func (input EntryInput) AmountCents() SignedAmountCents {
	return input.amountCents
}

// Ref returns the idempotency reference.
func (input EntryInput) Ref() Ref {
	return input.ref
}

// BookingID returns the linked booking, if any.
func (input EntryInput) BookingID() (BookingID, bool) {
	if input.bookingID == nil {
		return BookingID{}, false
	}
	return *input.bookingID, true
}

// MetadataJSON returns the metadata blob.
func (input EntryInput) MetadataJSON() MetadataJSON {
	return input.metadata
}

// CreatedUnixUTC returns the creation timestamp.
func (input EntryInput) CreatedUnixUTC() int64 {
	return input.createdUnixUTC
}

// Entry is a stored immutable ledger line.
type Entry struct {
	EntryID        string
	AccountID      string
	Kind           EntryKind
	AmountCents    SignedAmountCents
	Ref            string
	BookingID      string
	MetadataJSON   string
	CreatedUnixUTC int64
}

// Balance is the wallet view for a user: total is the sum of all entries,
// available subtracts withdrawal amounts still pending approval.
type Balance struct {
	TotalCents     int64
	AvailableCents int64
}

// Store is the persistence contract used by Service. All mutating calls made
// inside WithTx share one transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOrCreateAccountID(ctx context.Context, userID UserID) (string, error)
	InsertEntry(ctx context.Context, entry EntryInput) error
	SumEntries(ctx context.Context, accountID string) (int64, error)
	SumPendingWithdrawals(ctx context.Context, accountID string) (int64, error)
	GetEntryByRef(ctx context.Context, accountID string, ref Ref) (Entry, error)
	ListEntries(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]Entry, error)
}
