package engine

import "errors"

// Engine error taxonomy. Every failure surfaced by the saga, ledger or
// position adapter wraps exactly one of these sentinels; callers branch with
// errors.Is.
var (
	// ErrInvalidParameters rejects malformed creation input at the earliest
	// phase.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrInvalidState rejects a saga phase attempted out of order or twice.
	ErrInvalidState = errors.New("invalid creation state")

	// ErrUnauthorized rejects a caller outside the adapter allowlist, or one
	// who is not the owner/borrower the operation requires.
	ErrUnauthorized = errors.New("unauthorized caller")

	// ErrInsufficientBalance rejects transfers and withdrawals exceeding the
	// available balance or liquidity.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPoolCreationFailed propagates a pool lookup/creation failure from
	// the AMM.
	ErrPoolCreationFailed = errors.New("pool creation failed")

	// ErrMintFailed propagates a position mint failure from the AMM.
	ErrMintFailed = errors.New("position mint failed")

	// ErrStalePrice rejects a transfer whose pool price has drifted from the
	// accrual-implied price beyond tolerance. Recoverable: accrue interest
	// and retry.
	ErrStalePrice = errors.New("stale pool price")

	// ErrTransferFailed covers transfer mutations that fail for reasons other
	// than balance or price.
	ErrTransferFailed = errors.New("transfer failed")
)
