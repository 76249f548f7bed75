package ledger

import (
	"slices"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// OwnershipIndex maintains each principal's partition of credential ids into
// active, expired and frozen buckets.
type OwnershipIndex struct{}

// Load returns the principal's index, empty if none was written yet.
func (OwnershipIndex) Load(tx interfaces.Txn, owner interfaces.Address) (*interfaces.OwnerIndex, error) {
	var idx interfaces.OwnerIndex
	if _, err := getJSON(tx, interfaces.OwnerIndexKeyFor(owner), &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (OwnershipIndex) save(tx interfaces.Txn, owner interfaces.Address, idx *interfaces.OwnerIndex) error {
	return putJSON(tx, interfaces.OwnerIndexKeyFor(owner), idx)
}

// Insert appends id to the named bucket.
func (o OwnershipIndex) Insert(tx interfaces.Txn, owner interfaces.Address, id interfaces.CredentialID, b interfaces.Bucket) error {
	idx, err := o.Load(tx, owner)
	if err != nil {
		return err
	}
	bucket := idx.Bucket(b)
	*bucket = append(*bucket, id)
	return o.save(tx, owner, idx)
}

// Move removes id from one bucket, if present, and appends it to another.
func (o OwnershipIndex) Move(tx interfaces.Txn, owner interfaces.Address, id interfaces.CredentialID, from, to interfaces.Bucket) error {
	idx, err := o.Load(tx, owner)
	if err != nil {
		return err
	}
	removeID(idx.Bucket(from), id)
	bucket := idx.Bucket(to)
	*bucket = append(*bucket, id)
	return o.save(tx, owner, idx)
}

// Remove deletes id from whichever bucket holds it and reports that bucket.
func (o OwnershipIndex) Remove(tx interfaces.Txn, owner interfaces.Address, id interfaces.CredentialID) (interfaces.Bucket, bool, error) {
	idx, err := o.Load(tx, owner)
	if err != nil {
		return 0, false, err
	}
	for _, b := range []interfaces.Bucket{interfaces.BucketActive, interfaces.BucketExpired, interfaces.BucketFrozen} {
		if removeID(idx.Bucket(b), id) {
			return b, true, o.save(tx, owner, idx)
		}
	}
	return 0, false, nil
}

// Balances counts the ids held in each bucket.
func (o OwnershipIndex) Balances(tx interfaces.Txn, owner interfaces.Address) (interfaces.Balances, error) {
	idx, err := o.Load(tx, owner)
	if err != nil {
		return interfaces.Balances{}, err
	}
	return interfaces.Balances{
		Active:  len(idx.Active),
		Expired: len(idx.Expired),
		Frozen:  len(idx.Frozen),
	}, nil
}

// removeID drops every occurrence of id, keeping the order of the rest.
func removeID(bucket *[]interfaces.CredentialID, id interfaces.CredentialID) bool {
	n := len(*bucket)
	*bucket = slices.DeleteFunc(*bucket, func(v interfaces.CredentialID) bool { return v == id })
	return len(*bucket) != n
}
