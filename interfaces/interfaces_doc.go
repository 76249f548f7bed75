// Package interfaces defines the core interfaces and types for the access-key registry.
//
// This package provides the contracts between different components of the system
// without including implementation details. Implementations live in kvstore, auth,
// events and ledger.
//
// # Ports
//
//   - KVStore / Txn: transactional key-value substrate with structured keys
//   - Authorizer: confirms a Proof approves acting as a principal
//   - Clock: current time for expiry comparisons
//   - EventSink: append-only channel for committed operations
//   - Registry: the public surface of the credential lifecycle engine
//
// # Data Types
//
//   - Credential: an access key with owner, content reference, terms and status flags
//   - OwnerIndex: a principal's active, expired and frozen credential ids
//   - ContentMetadata: licensed content description with a key supply cap
//   - Event: notification of a committed operation
package interfaces
