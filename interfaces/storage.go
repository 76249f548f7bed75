package interfaces

import (
	"context"
	"fmt"
	"strconv"
)

// KeyKind indicates the namespace of a persisted value.
type KeyKind int

const (
	// CredentialKey stores a Credential, keyed by id.
	CredentialKey KeyKind = iota
	// OwnerIndexKey stores an OwnerIndex, keyed by principal.
	OwnerIndexKey
	// CounterKey stores the credential counter.
	CounterKey
	// AdminKey stores the admin principal.
	AdminKey
	// FrozenAccountKey marks a principal as frozen at the account level.
	FrozenAccountKey
	// ContentKey stores ContentMetadata, keyed by content reference.
	ContentKey
	// NonceKey stores the last accepted proof nonce, keyed by principal.
	NonceKey
)

// String returns the kind name used as key prefix.
func (k KeyKind) String() string {
	switch k {
	case CredentialKey:
		return "credential"
	case OwnerIndexKey:
		return "owner_index"
	case CounterKey:
		return "counter"
	case AdminKey:
		return "admin"
	case FrozenAccountKey:
		return "frozen_account"
	case ContentKey:
		return "content"
	case NonceKey:
		return "nonce"
	default:
		return "unknown"
	}
}

// Key is a structured storage key.
type Key struct {
	Kind KeyKind
	ID   string
}

// String returns the flat form "<kind>/<id>" used by persistent backends.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Kind, k.ID)
}

// CredentialKeyFor returns the key of a credential record.
func CredentialKeyFor(id CredentialID) Key {
	return Key{Kind: CredentialKey, ID: strconv.FormatUint(uint64(id), 10)}
}

// OwnerIndexKeyFor returns the key of a principal's index.
func OwnerIndexKeyFor(owner Address) Key {
	return Key{Kind: OwnerIndexKey, ID: AddressKey(owner)}
}

// FrozenAccountKeyFor returns the key of a principal's account freeze flag.
func FrozenAccountKeyFor(account Address) Key {
	return Key{Kind: FrozenAccountKey, ID: AddressKey(account)}
}

// ContentKeyFor returns the key of a content metadata record.
func ContentKeyFor(ref string) Key {
	return Key{Kind: ContentKey, ID: ref}
}

// NonceKeyFor returns the key of a principal's last accepted nonce.
func NonceKeyFor(principal Address) Key {
	return Key{Kind: NonceKey, ID: AddressKey(principal)}
}

var (
	// CounterKeyValue is the single counter key.
	CounterKeyValue = Key{Kind: CounterKey}
	// AdminKeyValue is the single admin key.
	AdminKeyValue = Key{Kind: AdminKey}
)

// Txn is a view of the store scoped to one invocation.
type Txn interface {
	// Get returns the value stored under key and whether it exists.
	Get(key Key) ([]byte, bool, error)

	// Set stores value under key.
	Set(key Key, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key Key) error
}

// KVStore is the persistent key-value substrate.
// Update runs fn in a serialized transaction whose writes are committed only if fn
// returns nil; otherwise every write is discarded. View runs fn against a consistent
// read-only snapshot.
type KVStore interface {
	View(ctx context.Context, fn func(tx Txn) error) error
	Update(ctx context.Context, fn func(tx Txn) error) error

	// Name returns identifier for logging.
	Name() string

	Close() error
}
