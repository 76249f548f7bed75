package ledger

import (
	"fmt"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// AdminRegistry holds the single administrative principal.
type AdminRegistry struct{}

// Get returns the admin and whether it was set.
func (AdminRegistry) Get(tx interfaces.Txn) (interfaces.Address, bool, error) {
	var admin interfaces.Address
	ok, err := getJSON(tx, interfaces.AdminKeyValue, &admin)
	return admin, ok, err
}

// Set stores the admin. It refuses to overwrite an existing one.
func (r AdminRegistry) Set(tx interfaces.Txn, admin interfaces.Address) error {
	if admin == (interfaces.Address{}) {
		return fmt.Errorf("%w: admin must not be the zero address", interfaces.ErrValidation)
	}
	_, ok, err := r.Get(tx)
	if err != nil {
		return err
	}
	if ok {
		return interfaces.ErrAlreadyInitialized
	}
	return putJSON(tx, interfaces.AdminKeyValue, admin)
}

// AccountFreezes tracks principals frozen at the account level.
// A missing flag means the account is not frozen.
type AccountFreezes struct{}

// IsFrozen reports whether the account is frozen.
func (AccountFreezes) IsFrozen(tx interfaces.Txn, account interfaces.Address) (bool, error) {
	var frozen bool
	if _, err := getJSON(tx, interfaces.FrozenAccountKeyFor(account), &frozen); err != nil {
		return false, err
	}
	return frozen, nil
}

// Set freezes or unfreezes the account.
func (AccountFreezes) Set(tx interfaces.Txn, account interfaces.Address, frozen bool) error {
	key := interfaces.FrozenAccountKeyFor(account)
	if !frozen {
		return tx.Remove(key)
	}
	return putJSON(tx, key, true)
}
