package auth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/accesskeys-registry/interfaces"
)

// SignatureLength is the length of a recoverable secp256k1 signature [R || S || V].
const SignatureLength = crypto.SignatureLength

// RequestPayload builds the byte string a client signs for an HTTP request.
func RequestPayload(method, path string, body []byte) []byte {
	payload := make([]byte, 0, len(method)+len(path)+len(body)+2)
	payload = append(payload, method...)
	payload = append(payload, ' ')
	payload = append(payload, path...)
	payload = append(payload, '\n')
	payload = append(payload, body...)
	return payload
}

// SigningMessage binds a request payload to the operation it authorizes and
// to a per-principal nonce. This is the byte string that is actually signed.
func SigningMessage(op interfaces.Operation, nonce uint64, payload []byte) []byte {
	msg := make([]byte, 0, len(op)+len(payload)+22)
	msg = append(msg, op...)
	msg = append(msg, '\n')
	msg = strconv.AppendUint(msg, nonce, 10)
	msg = append(msg, '\n')
	msg = append(msg, payload...)
	return msg
}

// Sign produces a recoverable signature over the EIP-191 text hash of payload.
func Sign(key *ecdsa.PrivateKey, payload []byte) ([]byte, error) {
	return crypto.Sign(accounts.TextHash(payload), key)
}

// NewProof signs payload for op under nonce and returns a proof for the key's address.
func NewProof(key *ecdsa.PrivateKey, op interfaces.Operation, nonce uint64, payload []byte) (interfaces.Proof, error) {
	sig, err := Sign(key, SigningMessage(op, nonce, payload))
	if err != nil {
		return interfaces.Proof{}, fmt.Errorf("failed to sign payload: %w", err)
	}
	return interfaces.Proof{
		Principal: crypto.PubkeyToAddress(key.PublicKey),
		Operation: op,
		Nonce:     nonce,
		Payload:   payload,
		Signature: sig,
	}, nil
}

// Recover returns the address that signed payload.
// Signatures with V in {27, 28} are accepted as well as {0, 1}.
func Recover(payload, signature []byte) (interfaces.Address, error) {
	if len(signature) != SignatureLength {
		return interfaces.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(payload), sig)
	if err != nil {
		return interfaces.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignatureAuthorizer verifies proofs by signature recovery.
type SignatureAuthorizer struct{}

var _ interfaces.Authorizer = (*SignatureAuthorizer)(nil)

// NewSignatureAuthorizer creates a signature-checking authorizer.
func NewSignatureAuthorizer() *SignatureAuthorizer {
	return &SignatureAuthorizer{}
}

// Authorize checks that principal signed proof for op under a non-zero nonce.
// Nonce freshness is checked by the ledger.
func (a *SignatureAuthorizer) Authorize(_ context.Context, principal interfaces.Address, op interfaces.Operation, proof interfaces.Proof) error {
	if proof.Principal != principal {
		return fmt.Errorf("%w: proof is for %s, not %s", interfaces.ErrUnauthorized, proof.Principal.Hex(), principal.Hex())
	}
	if proof.Operation != op {
		return fmt.Errorf("%w: proof authorizes %q, not %q", interfaces.ErrUnauthorized, proof.Operation, op)
	}
	if proof.Nonce == 0 {
		return fmt.Errorf("%w: signed proofs require a nonce", interfaces.ErrUnauthorized)
	}
	signer, err := Recover(SigningMessage(proof.Operation, proof.Nonce, proof.Payload), proof.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrUnauthorized, err)
	}
	if signer != principal {
		return fmt.Errorf("%w: signature recovers to %s", interfaces.ErrUnauthorized, signer.Hex())
	}
	return nil
}

// TrustedAuthorizer accepts every proof that names the principal.
type TrustedAuthorizer struct{}

var _ interfaces.Authorizer = (*TrustedAuthorizer)(nil)

// NewTrustedAuthorizer creates an authorizer that trusts the claimed principal.
func NewTrustedAuthorizer() *TrustedAuthorizer {
	return &TrustedAuthorizer{}
}

// Authorize checks that the proof claims principal and, when it names an
// operation, that the operation is op.
func (a *TrustedAuthorizer) Authorize(_ context.Context, principal interfaces.Address, op interfaces.Operation, proof interfaces.Proof) error {
	if proof.Principal != principal {
		return fmt.Errorf("%w: proof is for %s, not %s", interfaces.ErrUnauthorized, proof.Principal.Hex(), principal.Hex())
	}
	if proof.Operation != "" && proof.Operation != op {
		return fmt.Errorf("%w: proof authorizes %q, not %q", interfaces.ErrUnauthorized, proof.Operation, op)
	}
	return nil
}

// As returns a proof asserting principal, for use with TrustedAuthorizer.
func As(principal interfaces.Address) interfaces.Proof {
	return interfaces.Proof{Principal: principal}
}
