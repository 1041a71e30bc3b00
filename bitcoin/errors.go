// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidAddress defines that address matches no known script type.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrUnsupportedInputType defines that there is no input recipe for the address type.
	ErrUnsupportedInputType = errors.New("unsupported input type")
	// ErrTimeout defines that transaction did not appear in mempool in time.
	ErrTimeout = errors.New("transaction acceptance timeout")
	// ErrTransactionRejected defines that mempool acceptance check refused the transaction.
	ErrTransactionRejected = errors.New("transaction rejected")
)

// InvalidAddressError describes address which failed classification.
type InvalidAddressError struct {
	Address string
}

// Error returns error description.
func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q", e.Address)
}

// Is implements comparator method for [errors] package.
func (e *InvalidAddressError) Is(target error) bool {
	return target == ErrInvalidAddress
}

// TimeoutError describes transaction which was not seen in mempool within the wait bound.
// TxID is kept so the caller can resume polling.
type TimeoutError struct {
	TxID   string
	Waited time.Duration
}

// Error returns error description.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not found in mempool after %s", e.TxID, e.Waited)
}

// Is implements comparator method for [errors] package.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// RejectedError describes transaction refused by mempool acceptance check.
type RejectedError struct {
	TxID   string
	Reason string
}

// Error returns error description.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("transaction %s rejected: %s", e.TxID, e.Reason)
}

// Is implements comparator method for [errors] package.
func (e *RejectedError) Is(target error) bool {
	return target == ErrTransactionRejected
}

// SelectionError describes failure of selection attempt scoped to one address.
type SelectionError struct {
	Address string
	Err     error
}

// Error returns error description.
func (e *SelectionError) Error() string {
	return fmt.Sprintf("select utxos of %s: %v", e.Address, e.Err)
}

// Unwrap returns underlying error.
func (e *SelectionError) Unwrap() error {
	return e.Err
}
