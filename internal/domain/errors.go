package domain

import "errors"

var (
	// ErrNotFound is returned by store lookups that match no row.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks a malformed event field. Validation failures skip
	// only the offending item, never the batch.
	ErrValidation = errors.New("validation failed")

	// ErrNotOwner means the signing key does not control the contract; the
	// settlement attempt is recorded as failed and never retried.
	ErrNotOwner = errors.New("signer is not the contract owner")

	// ErrTxReverted means the settlement transaction was mined with a failed
	// receipt status.
	ErrTxReverted = errors.New("transaction reverted")

	// ErrRelayExhausted means the order relay gave up after its bounded
	// retries.
	ErrRelayExhausted = errors.New("relay retries exhausted")

	// ErrLockHeld means another process holds the distributed lock.
	ErrLockHeld = errors.New("lock already held")
)
