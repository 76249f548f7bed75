package interfaces

import (
	"context"
	"time"
)

// Operation names the mutation a proof approves.
type Operation string

const (
	OpMint          Operation = "mint"
	OpTransfer      Operation = "transfer"
	OpFreeze        Operation = "freeze"
	OpFreezeAccount Operation = "freeze_account"
	OpSetContent    Operation = "set_content_metadata"
)

// Proof is a caller's evidence that Operation was approved by Principal.
// Payload is the request content the principal signed along with Operation and Nonce.
type Proof struct {
	Principal Address
	Operation Operation

	// Nonce sequences a principal's signed proofs. A non-zero nonce is accepted
	// once and only if it exceeds the last nonce accepted for the principal.
	// Zero marks an unsequenced proof, which only TrustedAuthorizer accepts.
	Nonce uint64

	Payload   []byte
	Signature []byte
}

// Authorizer confirms that a proof authorizes acting as a principal for op.
type Authorizer interface {
	// Authorize returns nil if proof shows approval of op by principal, or an error
	// wrapping ErrUnauthorized.
	Authorize(ctx context.Context, principal Address, op Operation, proof Proof) error
}

// Clock supplies non-decreasing current time for expiry comparisons.
type Clock interface {
	Now() time.Time
}
