package escrow

import "errors"

var (
	// ErrEscrowNotFound indicates no escrow is stored under the supplied identifier.
	ErrEscrowNotFound = errors.New("escrow: not found")
	// ErrEscrowExists indicates the deterministic identifier is taken by a
	// different definition.
	ErrEscrowExists = errors.New("escrow: identifier already exists with different definition")
	// ErrInvalidState indicates the requested transition is not legal from the
	// escrow's current state.
	ErrInvalidState = errors.New("escrow: invalid state for transition")
	// ErrAlreadyWithdrawn indicates a transition against a terminally withdrawn escrow.
	ErrAlreadyWithdrawn = errors.New("escrow: already withdrawn")
	// ErrAlreadyCancelled indicates a transition against a terminally cancelled escrow.
	ErrAlreadyCancelled = errors.New("escrow: already cancelled")
	// ErrUnauthorized indicates the caller may not perform the transition in the
	// current timelock phase.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrInvalidSecret indicates the supplied secret does not open the hashlock.
	ErrInvalidSecret = errors.New("escrow: secret does not match hashlock")
	// ErrTooEarly indicates the transition's timelock window has not opened yet.
	ErrTooEarly = errors.New("escrow: transition window not open")
	// ErrTooLate indicates the transition's timelock window has closed.
	ErrTooLate = errors.New("escrow: transition window closed")
	// ErrInvalidAmount indicates a non-positive escrow amount.
	ErrInvalidAmount = errors.New("escrow: amount must be positive")
	// ErrLedgerNotConfigured indicates no asset ledger capability was injected.
	ErrLedgerNotConfigured = errors.New("escrow: asset ledger not configured")
	// ErrTransferFailed wraps asset ledger failures; the underlying reason is
	// preserved in the chain.
	ErrTransferFailed = errors.New("escrow: transfer failed")
)
