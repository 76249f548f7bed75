package interfaces

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a principal (holder, issuer, admin).
type Address = common.Address

// MaxContentRefLength bounds the opaque content reference carried by a credential.
const MaxContentRefLength = 256

// NewAddressFromHex parses a 40-char hex address, with or without the 0x prefix.
// The zero address is rejected since it can never act as a principal.
func NewAddressFromHex(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return Address{}, fmt.Errorf("%w: invalid address %q", ErrValidation, s)
	}
	addr := common.HexToAddress(s)
	if addr == (Address{}) {
		return Address{}, fmt.Errorf("%w: zero address", ErrValidation)
	}
	return addr, nil
}

// AddressKey returns the canonical lower-case hex form used in storage keys.
func AddressKey(addr Address) string {
	return strings.ToLower(addr.Hex())
}

// CredentialID is assigned from the credential counter at mint time.
type CredentialID uint64

// Credential is an access key granting its owner time-bounded rights to content.
type Credential struct {
	ID           CredentialID  `json:"id"`
	Owner        Address       `json:"owner"`
	ContentRef   string        `json:"content_ref"`
	Price        int64         `json:"price"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	IsActive     bool          `json:"is_active"`
	IsFrozen     bool          `json:"is_frozen"`
	FrozenBy     Address       `json:"frozen_by"`
	Transferable bool          `json:"transferable"`
}

// ExpiredAt reports whether the credential is logically expired at now,
// regardless of its stored flags.
func (c *Credential) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// UsableBy reports whether user may access the credential's content at now.
func (c *Credential) UsableBy(user Address, now time.Time) bool {
	return c.Owner == user && c.IsActive && !c.IsFrozen && !c.ExpiredAt(now)
}

// Bucket classifies a credential inside its owner's index.
type Bucket int

const (
	// BucketActive holds usable credentials (possibly expired but not yet swept).
	BucketActive Bucket = iota
	// BucketExpired holds swept credentials.
	BucketExpired
	// BucketFrozen holds key-level frozen credentials.
	BucketFrozen
)

// String returns the bucket name.
func (b Bucket) String() string {
	switch b {
	case BucketActive:
		return "active"
	case BucketExpired:
		return "expired"
	case BucketFrozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// BucketFor returns the bucket a credential with the given flags belongs in.
func BucketFor(c *Credential) Bucket {
	switch {
	case c.IsFrozen:
		return BucketFrozen
	case c.IsActive:
		return BucketActive
	default:
		return BucketExpired
	}
}

// OwnerIndex partitions a principal's credential ids into three disjoint buckets.
type OwnerIndex struct {
	Active  []CredentialID `json:"active"`
	Expired []CredentialID `json:"expired"`
	Frozen  []CredentialID `json:"frozen"`
}

// Bucket returns a pointer to the named bucket slice.
func (idx *OwnerIndex) Bucket(b Bucket) *[]CredentialID {
	switch b {
	case BucketExpired:
		return &idx.Expired
	case BucketFrozen:
		return &idx.Frozen
	default:
		return &idx.Active
	}
}

// Balances counts a principal's credentials per bucket.
type Balances struct {
	Active  int `json:"active"`
	Expired int `json:"expired"`
	Frozen  int `json:"frozen"`
}

// ContentMetadata describes licensed content and caps how many keys may be issued for it.
type ContentMetadata struct {
	ContentRef  string  `json:"content_ref"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Creator     Address `json:"creator"`
	Price       int64   `json:"price"`
	// MaxKeys of zero means unlimited.
	MaxKeys uint32 `json:"max_keys"`
	Issued  uint32 `json:"issued"`
}

// MintRequest carries the terms of a new credential.
type MintRequest struct {
	Owner        Address
	ContentRef   string
	Price        int64
	Duration     time.Duration
	Transferable bool
}

// Validate checks the request terms.
func (r *MintRequest) Validate() error {
	if r.Owner == (Address{}) {
		return fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if err := ValidateContentRef(r.ContentRef); err != nil {
		return err
	}
	if r.Price < 0 {
		return fmt.Errorf("%w: negative price %d", ErrValidation, r.Price)
	}
	if r.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %s", ErrValidation, r.Duration)
	}
	return nil
}

// ValidateContentRef checks a content reference is non-empty and bounded.
func ValidateContentRef(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("%w: content reference is required", ErrValidation)
	}
	if len(ref) > MaxContentRefLength {
		return fmt.Errorf("%w: content reference longer than %d bytes", ErrValidation, MaxContentRefLength)
	}
	return nil
}
