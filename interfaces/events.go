package interfaces

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventKind tags an event with the operation that produced it.
type EventKind string

const (
	EventInitialize    EventKind = "initialize"
	EventMint          EventKind = "mint"
	EventTransfer      EventKind = "transfer"
	EventFreeze        EventKind = "freeze"
	EventFreezeAccount EventKind = "freeze_account"
	EventExpire        EventKind = "expire"
	EventContent       EventKind = "content"
)

// Topic returns the keccak256 hash of the kind, matching how indexers filter ledger logs.
func (k EventKind) Topic() common.Hash {
	return crypto.Keccak256Hash([]byte(k))
}

// Event is an append-only notification of a committed operation.
type Event struct {
	ID           string       `json:"id"`
	Kind         EventKind    `json:"kind"`
	Topic        common.Hash  `json:"topic"`
	CredentialID CredentialID `json:"credential_id,omitempty"`
	Owner        *Address     `json:"owner,omitempty"`
	From         *Address     `json:"from,omitempty"`
	To           *Address     `json:"to,omitempty"`
	Account      *Address     `json:"account,omitempty"`
	ContentRef   string       `json:"content_ref,omitempty"`
	Price        int64        `json:"price,omitempty"`
	Frozen       *bool        `json:"frozen,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// EventSink is an append-only notification channel. Events are never read back by the registry.
type EventSink interface {
	// Publish appends events in order.
	Publish(ctx context.Context, events ...Event) error

	// Name returns identifier for logging.
	Name() string
}
