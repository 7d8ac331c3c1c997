package common

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers know whether to fix input, re-read
// state, or page an operator.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindState
	KindAuthorization
	KindConsistency
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindAuthorization:
		return "authorization"
	case KindConsistency:
		return "consistency"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a typed failure returned by the native engines. Sentinel values are
// compared with errors.Is; engines wrap them with module context.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// NewError declares a sentinel error of the supplied kind.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf reports the kind of the first typed error in err's chain.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}

// CodeOf reports the stable code of the first typed error in err's chain.
func CodeOf(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return ""
}

// Wrap prefixes err with module context while keeping it matchable.
func Wrap(module string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", module, err)
}

var (
	ErrInvalidAmount       = NewError(KindValidation, "invalid_amount", "amount must be positive")
	ErrAmountMismatch      = NewError(KindValidation, "amount_mismatch", "amount does not match payment")
	ErrInvalidParty        = NewError(KindValidation, "invalid_party", "buyer and seller must be distinct non-zero external addresses")
	ErrSelfTransfer        = NewError(KindValidation, "self_transfer", "transfer source and destination are the same account")
	ErrUnsupportedMethod   = NewError(KindValidation, "unsupported_method", "payment method not supported for custody")
	ErrPaymentMismatch     = NewError(KindValidation, "payment_mismatch", "payment is not bound to this escrow")
	ErrDestinationMismatch = NewError(KindValidation, "destination_mismatch", "destination is not the escrow seller")
	ErrInvalidTracking     = NewError(KindValidation, "invalid_tracking", "unknown tracking value")
	ErrInsufficientFunds   = NewError(KindValidation, "insufficient_funds", "insufficient funds")

	ErrWrongState           = NewError(KindState, "wrong_state", "operation not allowed in current state")
	ErrAlreadySettled       = NewError(KindState, "already_settled", "payment already settled")
	ErrStillActive          = NewError(KindState, "still_active", "record is still active")
	ErrPaymentNotPending    = NewError(KindState, "payment_not_pending", "payment is not pending")
	ErrPaymentSlotOccupied  = NewError(KindState, "payment_slot_occupied", "owner already has a payment; close it first")
	ErrEscrowAlreadyActive  = NewError(KindState, "escrow_already_active", "owner already has an active escrow")
	ErrEscrowNeedsClose     = NewError(KindState, "escrow_needs_close", "settled escrow must be closed before re-opening")
	ErrReleaseNotSet        = NewError(KindState, "release_not_set", "release flag not set")
	ErrInvalidTransition    = NewError(KindState, "invalid_transition", "tracking may only advance")
	ErrRefundNotAvailable   = NewError(KindState, "refund_not_available", "refund window has not opened")
	ErrForceCloseDisabled   = NewError(KindState, "force_close_disabled", "force close is disabled")
	ErrOrderPaymentMismatch = NewError(KindState, "order_payment_mismatch", "order slot bound to a different payment")

	ErrUnauthorized = NewError(KindAuthorization, "unauthorized", "caller not authorized")

	ErrVaultBalanceMismatch = NewError(KindConsistency, "vault_balance_mismatch", "vault balance does not match escrow amount")
	ErrVaultNotEmpty        = NewError(KindConsistency, "vault_not_empty", "vault still holds funds")
	ErrDerivationMismatch   = NewError(KindConsistency, "derivation_mismatch", "record does not match its derived reference")

	ErrNotFound       = NewError(KindNotFound, "not_found", "record not found")
	ErrPaymentMissing = NewError(KindNotFound, "payment_missing", "payment not found")
)
