package ledger

import (
	"fmt"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// NonceRegistry remembers the last proof nonce accepted for each principal.
type NonceRegistry struct{}

// Last returns the last accepted nonce, zero if none.
func (NonceRegistry) Last(tx interfaces.Txn, principal interfaces.Address) (uint64, error) {
	var last uint64
	if _, err := getJSON(tx, interfaces.NonceKeyFor(principal), &last); err != nil {
		return 0, err
	}
	return last, nil
}

// Consume accepts nonce if it exceeds the last accepted one and records it.
func (r NonceRegistry) Consume(tx interfaces.Txn, principal interfaces.Address, nonce uint64) error {
	last, err := r.Last(tx, principal)
	if err != nil {
		return err
	}
	if nonce <= last {
		return fmt.Errorf("%w: nonce %d already used by %s (last %d)", interfaces.ErrUnauthorized, nonce, principal.Hex(), last)
	}
	return putJSON(tx, interfaces.NonceKeyFor(principal), nonce)
}
