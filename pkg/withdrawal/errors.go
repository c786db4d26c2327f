package withdrawal

import "errors"

var (
	// ErrInvalidUserID indicates an empty or malformed user identifier.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidAccountType indicates an unknown bank account scheme.
	ErrInvalidAccountType = errors.New("invalid account type")
	// ErrInvalidAccountNumber indicates an identifier that fails its scheme's format.
	ErrInvalidAccountNumber = errors.New("invalid account number")
	// ErrInvalidHolderName indicates an empty account holder name.
	ErrInvalidHolderName = errors.New("invalid holder name")
	// ErrInvalidHolderDocument indicates a holder document below the minimum length.
	ErrInvalidHolderDocument = errors.New("invalid holder document")
	// ErrInvalidStatus indicates an unknown withdrawal status value.
	ErrInvalidStatus = errors.New("invalid withdrawal status")
	// ErrInvalidAmount indicates a non-positive withdrawal amount.
	ErrInvalidAmount = errors.New("invalid withdrawal amount")
	// ErrAmountBelowMinimum indicates an amount under the platform minimum.
	ErrAmountBelowMinimum = errors.New("amount below minimum withdrawal")
	// ErrInsufficientFunds indicates the available balance cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient available balance")
	// ErrUnknownBankAccount indicates the referenced bank account does not exist.
	ErrUnknownBankAccount = errors.New("unknown bank account")
	// ErrUnknownRequest indicates the referenced withdrawal request does not exist.
	ErrUnknownRequest = errors.New("unknown withdrawal request")
	// ErrNotAccountOwner indicates the bank account belongs to another user.
	ErrNotAccountOwner = errors.New("bank account belongs to another user")
	// ErrNotRequestOwner indicates the withdrawal request belongs to another user.
	ErrNotRequestOwner = errors.New("withdrawal request belongs to another user")
	// ErrAccountInactive indicates the bank account has been removed.
	ErrAccountInactive = errors.New("bank account is inactive")
	// ErrNoDefaultAccount indicates the user has no default bank account.
	ErrNoDefaultAccount = errors.New("no default bank account")
	// ErrRequestNotPending indicates a status transition attempted on a
	// request that already left pending. The storage guard reports it as
	// zero affected rows; it must surface as a conflict, never succeed
	// silently.
	ErrRequestNotPending = errors.New("withdrawal request is not pending")
	// ErrMissingReason indicates a rejection without a reason.
	ErrMissingReason = errors.New("rejection reason is required")
	// ErrInvalidServiceConfig indicates missing or invalid service dependencies.
	ErrInvalidServiceConfig = errors.New("invalid service configuration")
)
