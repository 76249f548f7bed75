package api

import (
	"time"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// Header constants used in signed requests.
const (
	// PrincipalHeader carries the hex address the request acts as.
	PrincipalHeader = "X-Principal"

	// NonceHeader carries the decimal request nonce. Each signed request from a
	// principal must use a nonce greater than the last one the registry accepted.
	NonceHeader = "X-Nonce"

	// SignatureHeader carries the hex-encoded recoverable signature of the request.
	SignatureHeader = "X-Signature"
)

// InitializeRequest sets the registry admin.
type InitializeRequest struct {
	Admin interfaces.Address `json:"admin"`
}

// AdminResponse reports the registry admin.
type AdminResponse struct {
	Admin interfaces.Address `json:"admin"`
}

// MintRequest asks for a new credential.
type MintRequest struct {
	Owner           interfaces.Address `json:"owner"`
	ContentRef      string             `json:"content_ref"`
	Price           int64              `json:"price"`
	DurationSeconds int64              `json:"duration_seconds"`
	Transferable    bool               `json:"transferable"`
}

// ToMintRequest converts the wire form into the registry request.
func (r *MintRequest) ToMintRequest() interfaces.MintRequest {
	return interfaces.MintRequest{
		Owner:        r.Owner,
		ContentRef:   r.ContentRef,
		Price:        r.Price,
		Duration:     time.Duration(r.DurationSeconds) * time.Second,
		Transferable: r.Transferable,
	}
}

// MintResponse returns the id of a minted credential.
type MintResponse struct {
	ID interfaces.CredentialID `json:"id"`
}

// TransferRequest names the new owner.
type TransferRequest struct {
	To interfaces.Address `json:"to"`
}

// FreezeRequest sets or clears a freeze.
type FreezeRequest struct {
	Frozen bool `json:"frozen"`
}

// FrozenResponse reports an account freeze flag.
type FrozenResponse struct {
	Account interfaces.Address `json:"account"`
	Frozen  bool               `json:"frozen"`
}

// NonceResponse reports the last request nonce accepted for a principal.
type NonceResponse struct {
	Principal interfaces.Address `json:"principal"`
	Nonce     uint64             `json:"nonce"`
}

// ChangedResponse reports whether a maintenance operation changed state.
type ChangedResponse struct {
	Changed bool `json:"changed"`
}

// AccessResponse reports the result of an access check.
type AccessResponse struct {
	User         interfaces.Address      `json:"user"`
	CredentialID interfaces.CredentialID `json:"credential_id"`
	Access       bool                    `json:"access"`
}

// CredentialsResponse lists a principal's credentials.
type CredentialsResponse struct {
	Principal   interfaces.Address      `json:"principal"`
	Credentials []interfaces.Credential `json:"credentials"`
}

// BalanceResponse reports a principal's bucket counts.
type BalanceResponse struct {
	Principal interfaces.Address `json:"principal"`
	interfaces.Balances
}

// StatusResponse acknowledges a mutation without a payload.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeValidation         = "validation"
	CodeUnauthorized       = "unauthorized"
	CodeNotFound           = "not_found"
	CodeNotTransferable    = "not_transferable"
	CodeInactiveOrFrozen   = "inactive_or_frozen"
	CodeExpired            = "expired"
	CodeAccountFrozen      = "account_frozen"
	CodeAlreadyInitialized = "already_initialized"
	CodeSupplyExhausted    = "supply_exhausted"
	CodeInternal           = "internal"
)
