package ledger

import (
	"github.com/ruteri/accesskeys-registry/interfaces"
)

// CredentialCounter hands out credential ids. The last issued id is persisted
// under the counter key, so the first id is 1 and ids are never reused.
type CredentialCounter struct{}

// Current returns the last issued id, or zero if none was issued yet.
func (CredentialCounter) Current(tx interfaces.Txn) (uint64, error) {
	var n uint64
	if _, err := getJSON(tx, interfaces.CounterKeyValue, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Next advances the counter and returns the new id.
func (c CredentialCounter) Next(tx interfaces.Txn) (interfaces.CredentialID, error) {
	n, err := c.Current(tx)
	if err != nil {
		return 0, err
	}
	n++
	if err := putJSON(tx, interfaces.CounterKeyValue, n); err != nil {
		return 0, err
	}
	return interfaces.CredentialID(n), nil
}

// Ensure persists a zero counter if none exists yet. An existing counter is left untouched.
func (CredentialCounter) Ensure(tx interfaces.Txn) error {
	_, ok, err := tx.Get(interfaces.CounterKeyValue)
	if err != nil || ok {
		return err
	}
	return putJSON(tx, interfaces.CounterKeyValue, uint64(0))
}
