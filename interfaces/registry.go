package interfaces

import "context"

// Registry is the public surface of the credential lifecycle engine.
type Registry interface {
	Initialize(ctx context.Context, admin Address) error
	Admin(ctx context.Context) (Address, error)

	Mint(ctx context.Context, proof Proof, req MintRequest) (CredentialID, error)
	Transfer(ctx context.Context, proof Proof, id CredentialID, to Address) error
	Freeze(ctx context.Context, proof Proof, id CredentialID, freeze bool) error
	FreezeAccount(ctx context.Context, proof Proof, account Address, freeze bool) error
	IsAccountFrozen(ctx context.Context, account Address) (bool, error)

	VerifyAccess(ctx context.Context, user Address, id CredentialID) (bool, error)
	SweepExpired(ctx context.Context, principal Address) (bool, error)
	ExpireCredential(ctx context.Context, id CredentialID) (bool, error)

	GetCredential(ctx context.Context, id CredentialID) (*Credential, error)
	GetBalance(ctx context.Context, principal Address) (Balances, error)
	GetUserCredentials(ctx context.Context, principal Address) ([]Credential, error)

	SetContentMetadata(ctx context.Context, proof Proof, meta ContentMetadata) error
	GetContentMetadata(ctx context.Context, ref string) (*ContentMetadata, error)

	// Nonce returns the last proof nonce accepted for principal, zero if none.
	Nonce(ctx context.Context, principal Address) (uint64, error)
}
