// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"errors"
	"fmt"
)

// ErrInsufficientBalance defines that spendable utxos do not cover requested amount and fee.
var ErrInsufficientBalance = errors.New("insufficient balance")

type balanceErrorType string

type causerSign string

const (
	// InsufficientErrorTypeBitcoin defines insufficient bitcoin balance error type.
	InsufficientErrorTypeBitcoin balanceErrorType = "bitcoin"
	// InsufficientErrorTypeChange defines that inputs do not cover outputs and fee, so change is negative.
	InsufficientErrorTypeChange balanceErrorType = "change"

	// CauserSelection defines that coin selection caused this error type.
	CauserSelection causerSign = "selection"
	// CauserFee defines that fee convergence caused this error type.
	CauserFee causerSign = "fee"
)

// InsufficientError is the error type to describe insufficient balance errors with details.
type InsufficientError struct {
	Type   balanceErrorType
	Need   int64
	Have   int64
	Causer causerSign
	// Causes holds per-address failures swallowed during cross-address selection.
	Causes []error
}

// NewInsufficientError is a constructor for InsufficientError.
func NewInsufficientError(type_ balanceErrorType, need, have int64) *InsufficientError {
	return &InsufficientError{Type: type_, Need: need, Have: have}
}

// Error returns error description.
func (e *InsufficientError) Error() string {
	errMsg := fmt.Sprintf("insufficient %s balance: need %d, have %d", e.Type, e.Need, e.Have)
	if e.Causer != "" {
		errMsg += " (" + string(e.Causer) + ")"
	}

	if len(e.Causes) != 0 {
		errMsg += ": " + errors.Join(e.Causes...).Error()
	}

	return errMsg
}

// Is implements comparator method for [errors] package.
func (e *InsufficientError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// Unwrap returns swallowed per-address errors.
func (e *InsufficientError) Unwrap() []error {
	return e.Causes
}

// SetCauser updates InsufficientError with provided causer.
func (e *InsufficientError) SetCauser(causer causerSign) *InsufficientError {
	e.Causer = causer
	return e
}
