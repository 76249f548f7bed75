package interfaces

import "errors"

var (
	// ErrValidation is returned for malformed input: negative price, zero duration, bad address.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned for an unknown credential or content, or when the admin is unset.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the caller is not the principal the operation requires.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotTransferable is returned when transferring a credential minted as non-transferable.
	ErrNotTransferable = errors.New("credential is not transferable")

	// ErrInactiveOrFrozen is returned when a credential is inactive or frozen at the key level.
	ErrInactiveOrFrozen = errors.New("credential is inactive or frozen")

	// ErrExpired is returned when a credential's expiry time has passed.
	ErrExpired = errors.New("credential has expired")

	// ErrAccountFrozen is returned when a principal involved in a mutation is frozen at the account level.
	ErrAccountFrozen = errors.New("account is frozen")

	// ErrAlreadyInitialized is returned on a second initialization attempt.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrAlreadyExists signals an id collision in the credential store.
	// Ids come from the counter, so this is an internal invariant violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrCorrupted is returned when stored state contradicts a ledger invariant,
	// such as a credential missing from its owner's index.
	ErrCorrupted = errors.New("ledger state corrupted")

	// ErrSupplyExhausted is returned when content has issued its maximum number of keys.
	ErrSupplyExhausted = errors.New("content key supply exhausted")

	// ErrReadOnly is returned when writing through a read-only store transaction.
	ErrReadOnly = errors.New("read-only transaction")
)
