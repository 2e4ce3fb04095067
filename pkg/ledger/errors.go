package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrBelowMinimumWithdrawal = errors.New("below minimum withdrawal")
	ErrDuplicateEntry         = errors.New("duplicate ledger entry")
	ErrUnknownReferralCode    = errors.New("unknown referral code")
	ErrSelfReferral           = errors.New("self referral")
	ErrAlreadyReferred        = errors.New("already referred")
	ErrAccountNotFound        = errors.New("account not found")
	ErrBalanceDrift           = errors.New("balance drift")
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrInvalidEntryKind       = errors.New("invalid entry kind")
	ErrInvalidCoins           = errors.New("invalid coin amount")
	ErrInvalidIdempotencyKey  = errors.New("invalid idempotency key")
	ErrInvalidMetadataJSON    = errors.New("invalid metadata json")
	ErrInvalidReferralCode    = errors.New("invalid referral code")
	ErrInvalidSessionRef      = errors.New("invalid session reference")
	ErrInvalidPayoutMethod    = errors.New("invalid payout method")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
	ErrInvalidListLimit       = errors.New("invalid list limit")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
