// Package apperr defines the structured error taxonomy returned by the
// settlement core. Every error carries a stable machine-readable code and a
// human-readable message; handlers map codes to HTTP statuses at the edge so
// callers never see raw internals.
package apperr

import (
	"errors"
	"fmt"
)

// Stable error codes.
const (
	CodeInvalidTransition        = "INVALID_TRANSITION"
	CodeAlreadySettled           = "ALREADY_SETTLED"
	CodeAlreadyReversed          = "ALREADY_REVERSED"
	CodeSettlementNotFound       = "SETTLEMENT_NOT_FOUND"
	CodeStageNotFound            = "STAGE_NOT_FOUND"
	CodeNoConsensus              = "NO_CONSENSUS"
	CodeNoTransactions           = "NO_TRANSACTIONS"
	CodeInvalidDistributionInput = "INVALID_DISTRIBUTION_INPUT"
	CodeInsufficientPermission   = "INSUFFICIENT_PERMISSION"
	CodePartialSettlementFailure = "PARTIAL_SETTLEMENT_FAILURE"
	CodeInvalidInput             = "INVALID_INPUT"
	CodeInternal                 = "INTERNAL_ERROR"
)

// Error is a structured error with a stable code.
type Error struct {
	Code    string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// Is matches two apperr errors by code, so sentinel-style checks like
// errors.Is(err, apperr.AlreadySettled("")) work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New builds an error with the given code and formatted message.
func New(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error with the given code and message around a cause.
func Wrap(err error, code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), err: err}
}

// CodeOf returns the code of err if it is (or wraps) an apperr.Error, or
// CodeInternal otherwise.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Constructors for the common cases.

func InvalidTransition(from, to string) *Error {
	return New(CodeInvalidTransition, "cannot transition stage from %s to %s", from, to)
}

func AlreadySettled(stageID string) *Error {
	return New(CodeAlreadySettled, "stage %s already has an active settlement", stageID)
}

func AlreadyReversed(settlementID string) *Error {
	return New(CodeAlreadyReversed, "settlement %s has already been reversed", settlementID)
}

func SettlementNotFound(settlementID string) *Error {
	return New(CodeSettlementNotFound, "settlement not found: %s", settlementID)
}

func StageNotFound(stageID string) *Error {
	return New(CodeStageNotFound, "stage not found: %s", stageID)
}

func NoConsensus(groupID string) *Error {
	return New(CodeNoConsensus, "group %s has no agreed ranking", groupID)
}

func InsufficientPermission(userEmail, capability string) *Error {
	return New(CodeInsufficientPermission, "user %s lacks the %s capability", userEmail, capability)
}
