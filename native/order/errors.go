package order

import "errors"

var (
	// ErrInvalidAmount indicates a zero or negative making/taking amount.
	ErrInvalidAmount = errors.New("order: invalid amount")
	// ErrInvalidAssetPair indicates the maker and taker assets are identical or empty.
	ErrInvalidAssetPair = errors.New("order: invalid asset pair")
	// ErrInvalidExpiration indicates the expiration is in the past or beyond the allowed horizon.
	ErrInvalidExpiration = errors.New("order: invalid expiration")
	// ErrInvalidSignature indicates the submitted signature does not recover to the maker.
	ErrInvalidSignature = errors.New("order: invalid signature")
	// ErrExtensionMismatch indicates the supplied extension bytes do not match the traits commitment.
	ErrExtensionMismatch = errors.New("order: extension mismatch")
	// ErrOrderNotFound indicates no order is stored under the supplied hash.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderAlreadyFilled indicates the order has no remaining capacity.
	ErrOrderAlreadyFilled = errors.New("order: already filled")
	// ErrOrderCancelled indicates the order was cancelled by its maker.
	ErrOrderCancelled = errors.New("order: cancelled")
	// ErrOrderExpired indicates the order expiration has passed.
	ErrOrderExpired = errors.New("order: expired")
	// ErrUnauthorized indicates the caller is not permitted to perform the operation.
	ErrUnauthorized = errors.New("order: unauthorized")
	// ErrInvalidPartialFill indicates a partial amount against an order that forbids partial fills.
	ErrInvalidPartialFill = errors.New("order: invalid partial fill")
	// ErrSecretProofRequired indicates the order committed a secret tree and the fill carried no proof.
	ErrSecretProofRequired = errors.New("order: secret proof required")
	// ErrInvalidSecretProof indicates the supplied secret proof did not verify against the committed root.
	ErrInvalidSecretProof = errors.New("order: invalid secret proof")
	// ErrAlreadyInvalidated indicates the invalidation mask had no effect on the stored word.
	ErrAlreadyInvalidated = errors.New("order: already invalidated")
	// ErrInsufficientRemaining indicates a fill amount exceeding the order's remaining capacity.
	ErrInsufficientRemaining = errors.New("order: insufficient remaining")
	// ErrTooManyOrders indicates the active order cap has been reached.
	ErrTooManyOrders = errors.New("order: too many active orders")
	// ErrNonceUsed indicates the traits nonce is already claimed by a live or
	// consumed order of the same maker.
	ErrNonceUsed = errors.New("order: traits nonce already used")
)
