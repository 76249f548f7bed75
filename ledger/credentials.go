package ledger

import (
	"fmt"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// CredentialStore reads and writes credential records. Records are never deleted.
type CredentialStore struct{}

// Create writes a new record. An existing record with the same id is an invariant violation.
func (CredentialStore) Create(tx interfaces.Txn, c *interfaces.Credential) error {
	key := interfaces.CredentialKeyFor(c.ID)
	_, exists, err := tx.Get(key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: credential %d", interfaces.ErrAlreadyExists, c.ID)
	}
	return putJSON(tx, key, c)
}

// Get returns the record with the given id and whether it exists.
func (CredentialStore) Get(tx interfaces.Txn, id interfaces.CredentialID) (*interfaces.Credential, bool, error) {
	var c interfaces.Credential
	ok, err := getJSON(tx, interfaces.CredentialKeyFor(id), &c)
	if err != nil || !ok {
		return nil, false, err
	}
	return &c, true, nil
}

// MustGet is Get with absence reported as ErrNotFound.
func (s CredentialStore) MustGet(tx interfaces.Txn, id interfaces.CredentialID) (*interfaces.Credential, error) {
	c, ok, err := s.Get(tx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: credential %d", interfaces.ErrNotFound, id)
	}
	return c, nil
}

// Update overwrites an existing record.
func (CredentialStore) Update(tx interfaces.Txn, c *interfaces.Credential) error {
	key := interfaces.CredentialKeyFor(c.ID)
	_, exists, err := tx.Get(key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: credential %d", interfaces.ErrNotFound, c.ID)
	}
	return putJSON(tx, key, c)
}
