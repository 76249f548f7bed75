// Package ledger implements the credential lifecycle engine and the stores it is
// built from: the credential counter, credential records, per-principal ownership
// indices, the admin registry, account freezes, the content catalog and the
// per-principal proof nonces.
//
// The stores are stateless views over an interfaces.Txn; all state lives in the
// KVStore. Engine operations run inside a single KVStore transaction, so a failed
// precondition leaves no trace.
package ledger
