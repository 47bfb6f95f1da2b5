package errors

import (
	stderrors "errors"
	"fmt"
)

// Category groups protocol errors by the kind of precondition they reject.
type Category string

const (
	CategoryPhase         Category = "phase"
	CategoryAuthorization Category = "authorization"
	CategorySolvency      Category = "solvency"
	CategoryState         Category = "state"
	CategoryValidation    Category = "validation"
)

// Code is the stable, named identifier of a protocol error condition.
type Code string

const (
	CodeNotInPeriod                 Code = "NotInPeriod"
	CodeNotInClaimPeriod            Code = "NotInClaimPeriod"
	CodeInvalidPeriod               Code = "InvalidPeriod"
	CodeInsufficientAllowance       Code = "InsufficientAllowance"
	CodeInsufficientBalance         Code = "InsufficientBalance"
	CodeNotWhitelisted              Code = "NotWhitelisted"
	CodeNotEligible                 Code = "NotEligible"
	CodeInsufficientAmount          Code = "InsufficientAmount"
	CodeInvalidAmount               Code = "InvalidAmount"
	CodeZeroStakeBalance            Code = "ZeroStakeBalance"
	CodeBelowMinimum                Code = "BelowMinimum"
	CodeAboveMaximum                Code = "AboveMaximum"
	CodeTargetExceeded              Code = "TargetExceeded"
	CodeInsufficientSaleTokenSupply Code = "InsufficientSaleTokenSupply"
	CodeAlreadyConfigured           Code = "AlreadyConfigured"
	CodeNotConfigured               Code = "NotConfigured"
	CodeInsufficientCollateral      Code = "InsufficientCollateral"
	CodePoolExhausted               Code = "PoolExhausted"
	CodeExceedsOwed                 Code = "ExceedsOwed"
	CodeDepositCapExceeded          Code = "DepositCapExceeded"
	CodeAlreadyClaimed              Code = "AlreadyClaimed"
	CodeAlreadyWithdrawn            Code = "AlreadyWithdrawn"
	CodeNothingToClaim              Code = "NothingToClaim"
	CodeNothingToWithdraw           Code = "NothingToWithdraw"
	CodeInvalidConfig               Code = "InvalidConfig"
	CodeModulePaused                Code = "ModulePaused"
)

// Error is a named protocol failure. Two errors are considered equal by
// errors.Is when their codes match, so sentinels below can be compared against
// errors carrying a more specific reason.
type Error struct {
	Code     Code
	Category Category
	Reason   string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Reason == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is implements errors.Is matching on the error code.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var other *Error
	if !stderrors.As(target, &other) || other == nil {
		return false
	}
	return other.Code == e.Code
}

// Withf returns a copy of the sentinel carrying a formatted reason.
func (e *Error) Withf(format string, args ...any) *Error {
	if e == nil {
		return nil
	}
	return &Error{Code: e.Code, Category: e.Category, Reason: fmt.Sprintf(format, args...)}
}

func newError(code Code, category Category, reason string) *Error {
	return &Error{Code: code, Category: category, Reason: reason}
}

var (
	ErrNotInPeriod      = newError(CodeNotInPeriod, CategoryPhase, "operation not valid in the current phase")
	ErrNotInClaimPeriod = newError(CodeNotInClaimPeriod, CategoryPhase, "claim period has not started")
	ErrInvalidPeriod    = newError(CodeInvalidPeriod, CategoryValidation, "phase ranges must be ordered and non-overlapping")

	ErrInsufficientAllowance = newError(CodeInsufficientAllowance, CategoryAuthorization, "allowance below requested amount")
	ErrNotWhitelisted        = newError(CodeNotWhitelisted, CategoryAuthorization, "account not in allow-list")
	ErrNotEligible           = newError(CodeNotEligible, CategoryAuthorization, "stake requirement not satisfied")

	ErrInsufficientBalance         = newError(CodeInsufficientBalance, CategorySolvency, "token balance below requested amount")
	ErrInsufficientCollateral      = newError(CodeInsufficientCollateral, CategorySolvency, "available collateral below requirement")
	ErrPoolExhausted               = newError(CodePoolExhausted, CategorySolvency, "lending pool liquidity exhausted")
	ErrTargetExceeded              = newError(CodeTargetExceeded, CategorySolvency, "contribution exceeds funding target")
	ErrInsufficientSaleTokenSupply = newError(CodeInsufficientSaleTokenSupply, CategorySolvency, "sale token supply does not back the target")
	ErrDepositCapExceeded          = newError(CodeDepositCapExceeded, CategorySolvency, "deposit exceeds allocation cap")
	ErrExceedsOwed                 = newError(CodeExceedsOwed, CategorySolvency, "repayment exceeds outstanding debt")

	ErrAlreadyClaimed     = newError(CodeAlreadyClaimed, CategoryState, "position already claimed")
	ErrAlreadyWithdrawn   = newError(CodeAlreadyWithdrawn, CategoryState, "deposit already withdrawn")
	ErrZeroStakeBalance   = newError(CodeZeroStakeBalance, CategoryState, "no stake to withdraw")
	ErrAlreadyConfigured  = newError(CodeAlreadyConfigured, CategoryState, "already configured")
	ErrNotConfigured      = newError(CodeNotConfigured, CategoryState, "not configured")
	ErrNothingToClaim     = newError(CodeNothingToClaim, CategoryState, "no funding position to claim")
	ErrNothingToWithdraw  = newError(CodeNothingToWithdraw, CategoryState, "no deposit to withdraw")
	ErrModulePaused       = newError(CodeModulePaused, CategoryState, "module paused")
	ErrInsufficientAmount = newError(CodeInsufficientAmount, CategoryValidation, "resulting stake below minimum")
	ErrInvalidAmount      = newError(CodeInvalidAmount, CategoryValidation, "invalid amount")
	ErrBelowMinimum       = newError(CodeBelowMinimum, CategoryValidation, "contribution below per-user minimum")
	ErrAboveMaximum       = newError(CodeAboveMaximum, CategoryValidation, "contribution above per-user maximum")
	ErrInvalidConfig      = newError(CodeInvalidConfig, CategoryValidation, "invalid configuration")
)

// CodeOf extracts the protocol code from err. Errors outside the protocol
// model report an empty code.
func CodeOf(err error) Code {
	var pe *Error
	if stderrors.As(err, &pe) && pe != nil {
		return pe.Code
	}
	return ""
}

// CategoryOf extracts the protocol category from err.
func CategoryOf(err error) Category {
	var pe *Error
	if stderrors.As(err, &pe) && pe != nil {
		return pe.Category
	}
	return ""
}
