package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drivana/settlement/pkg/ledger"
	"github.com/drivana/settlement/pkg/preauth"
	"github.com/drivana/settlement/pkg/risk"
	"github.com/drivana/settlement/pkg/settlement"
	"github.com/drivana/settlement/pkg/withdrawal"
)

func dataResponse(payload any) gin.H {
	return gin.H{
		"success": true,
		"data":    payload,
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

var validationErrors = []error{
	ledger.ErrInvalidUserID,
	ledger.ErrInvalidRef,
	ledger.ErrInvalidBookingID,
	ledger.ErrInvalidAmountCents,
	ledger.ErrInvalidEntryKind,
	ledger.ErrInvalidMetadataJSON,
	risk.ErrInvalidUserID,
	risk.ErrInvalidBaseAmount,
	risk.ErrInvalidTier,
	withdrawal.ErrInvalidUserID,
	withdrawal.ErrInvalidAccountType,
	withdrawal.ErrInvalidAccountNumber,
	withdrawal.ErrInvalidHolderName,
	withdrawal.ErrInvalidHolderDocument,
	withdrawal.ErrInvalidStatus,
	withdrawal.ErrInvalidAmount,
	withdrawal.ErrAmountBelowMinimum,
	withdrawal.ErrAccountInactive,
	withdrawal.ErrNoDefaultAccount,
	withdrawal.ErrMissingReason,
	preauth.ErrInvalidAmount,
	preauth.ErrMissingReference,
	preauth.ErrInvalidToken,
	settlement.ErrInvalidInstrument,
	settlement.ErrMissingCardDetails,
}

var notFoundErrors = []error{
	ledger.ErrUnknownRef,
	risk.ErrNoRecord,
	withdrawal.ErrUnknownBankAccount,
	withdrawal.ErrUnknownRequest,
	preauth.ErrCustomerNotFound,
	preauth.ErrCardNotFound,
	preauth.ErrPaymentNotFound,
}

var conflictErrors = []error{
	ledger.ErrDuplicateRef,
	ledger.ErrAlreadyReversed,
	withdrawal.ErrRequestNotPending,
	preauth.ErrCardAlreadyExists,
}

// statusForError maps domain sentinels onto HTTP semantics. Anything
// unrecognized is an internal error and must not leak detail.
func statusForError(err error) (int, string) {
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest, "invalid_request"
		}
	}
	for _, sentinel := range notFoundErrors {
		if errors.Is(err, sentinel) {
			return http.StatusNotFound, "not_found"
		}
	}
	for _, sentinel := range conflictErrors {
		if errors.Is(err, sentinel) {
			return http.StatusConflict, "conflict"
		}
	}
	switch {
	case errors.Is(err, withdrawal.ErrNotAccountOwner), errors.Is(err, withdrawal.ErrNotRequestOwner):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, withdrawal.ErrInsufficientFunds):
		return http.StatusConflict, "insufficient_funds"
	case errors.Is(err, preauth.ErrOutcomeUnknown):
		return http.StatusBadGateway, "gateway_outcome_unknown"
	case errors.Is(err, preauth.ErrUnauthorized):
		return http.StatusBadGateway, "gateway_error"
	}
	var gatewayErr *preauth.GatewayError
	if errors.As(err, &gatewayErr) {
		return http.StatusBadGateway, "gateway_error"
	}
	return http.StatusInternalServerError, "internal_error"
}
