package ledger

import (
	"fmt"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// ContentCatalog stores content metadata records keyed by content reference.
type ContentCatalog struct{}

// Get returns the metadata for ref and whether it exists.
func (ContentCatalog) Get(tx interfaces.Txn, ref string) (*interfaces.ContentMetadata, bool, error) {
	var meta interfaces.ContentMetadata
	ok, err := getJSON(tx, interfaces.ContentKeyFor(ref), &meta)
	if err != nil || !ok {
		return nil, false, err
	}
	return &meta, true, nil
}

// Put writes the metadata record.
func (ContentCatalog) Put(tx interfaces.Txn, meta *interfaces.ContentMetadata) error {
	return putJSON(tx, interfaces.ContentKeyFor(meta.ContentRef), meta)
}

// Reserve counts one more key issued for ref. Content without metadata is unlimited.
func (c ContentCatalog) Reserve(tx interfaces.Txn, ref string) error {
	meta, ok, err := c.Get(tx, ref)
	if err != nil || !ok {
		return err
	}
	if meta.MaxKeys > 0 && meta.Issued >= meta.MaxKeys {
		return fmt.Errorf("%w: %d of %d keys issued for %q", interfaces.ErrSupplyExhausted, meta.Issued, meta.MaxKeys, ref)
	}
	meta.Issued++
	return c.Put(tx, meta)
}

// ValidateContentMetadata checks a metadata record supplied by a creator.
func ValidateContentMetadata(meta *interfaces.ContentMetadata) error {
	if err := interfaces.ValidateContentRef(meta.ContentRef); err != nil {
		return err
	}
	if meta.Title == "" {
		return fmt.Errorf("%w: title is required", interfaces.ErrValidation)
	}
	if meta.Creator == (interfaces.Address{}) {
		return fmt.Errorf("%w: creator is required", interfaces.ErrValidation)
	}
	if meta.Price < 0 {
		return fmt.Errorf("%w: negative price %d", interfaces.ErrValidation, meta.Price)
	}
	return nil
}
