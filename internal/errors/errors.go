// Package errors defines the ledger error taxonomy. Every failure surfaced by
// the engine carries one of these codes so integrators can tell request
// problems apart without parsing messages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown                  Code = "UNKNOWN"
	CodeUnknownAsset             Code = "UNKNOWN_ASSET"
	CodeDuplicateAsset           Code = "DUPLICATE_ASSET"
	CodeAssetNotEmpty            Code = "ASSET_NOT_EMPTY"
	CodeInsufficientShares       Code = "INSUFFICIENT_SHARES"
	CodeInsufficientVaultBalance Code = "INSUFFICIENT_VAULT_BALANCE"
	CodeInsufficientClaimable    Code = "INSUFFICIENT_CLAIMABLE"
	CodeUnauthorized             Code = "UNAUTHORIZED"
	CodeTransferFailed           Code = "TRANSFER_FAILED"
	CodeZeroAmount               Code = "ZERO_AMOUNT"
	CodeInvalidArgument          Code = "INVALID_ARGUMENT"
	CodePriceUnavailable         Code = "PRICE_UNAVAILABLE"
)

// Sentinels for errors.Is comparisons.
var (
	ErrUnknownAsset             = &Error{Code: CodeUnknownAsset, Message: "unknown asset"}
	ErrDuplicateAsset           = &Error{Code: CodeDuplicateAsset, Message: "duplicate asset"}
	ErrAssetNotEmpty            = &Error{Code: CodeAssetNotEmpty, Message: "asset not empty"}
	ErrInsufficientShares       = &Error{Code: CodeInsufficientShares, Message: "insufficient shares"}
	ErrInsufficientVaultBalance = &Error{Code: CodeInsufficientVaultBalance, Message: "insufficient vault balance"}
	ErrInsufficientClaimable    = &Error{Code: CodeInsufficientClaimable, Message: "insufficient claimable rewards"}
	ErrUnauthorized             = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrTransferFailed           = &Error{Code: CodeTransferFailed, Message: "transfer failed"}
	ErrZeroAmount               = &Error{Code: CodeZeroAmount, Message: "zero amount"}
	ErrInvalidArgument          = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrPriceUnavailable         = &Error{Code: CodePriceUnavailable, Message: "price unavailable"}
)

// Error is a coded ledger error.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so detailed errors built with New
// still satisfy errors.Is against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds a coded error with a formatted message.
func New(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying cause.
func Wrap(code Code, cause error, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf returns the code of the first coded error in the chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}
