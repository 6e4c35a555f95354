package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors;
// callers branch with errors.Is.
var (
	// General
	ErrNotFound = errors.New("resource not found")

	// Position engine
	ErrInsufficientMargin = errors.New("insufficient balance for margin")
	ErrPairNotFound       = errors.New("tradable pair not found")
	ErrWalletNotFound     = errors.New("wallet not found for account")
	ErrAccountNotFound    = errors.New("account not found")
	ErrPositionNotFound   = errors.New("position not found")
	ErrInvalidOrder       = errors.New("invalid order parameters")

	// Copy trading
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBelowMinAllocation  = errors.New("allocation below trader minimum")
	ErrSubscriptionExists  = errors.New("subscription already exists for this account and trader")
	ErrLeadTraderNotFound  = errors.New("lead trader not found")
	ErrFeeAlreadyApplied   = errors.New("performance fee already applied")
)
