package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/accesskeys-registry/api"
	"github.com/ruteri/accesskeys-registry/auth"
	"github.com/ruteri/accesskeys-registry/interfaces"
	"go.uber.org/atomic"
)

// RegistryClient calls the registry HTTP API, signing mutating requests with its key.
//
// Every signed request carries a fresh nonce greater than the previous one, and
// the registry rejects a nonce that does not exceed the last it accepted. Signed
// calls sharing one key should therefore be issued sequentially: concurrent
// requests may reach the server out of order and the later nonce wins.
//
// The signed path is relative to baseURL, so a baseURL with a path prefix works
// behind a proxy that strips that prefix before forwarding.
type RegistryClient struct {
	baseURL    string
	privateKey *ecdsa.PrivateKey
	httpClient *http.Client
	lastNonce  atomic.Uint64
}

// NewRegistryClient creates a client for the registry at baseURL.
// privateKey may be nil for read-only use.
func NewRegistryClient(baseURL string, privateKey *ecdsa.PrivateKey, timeout ...time.Duration) *RegistryClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &RegistryClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		privateKey: privateKey,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Address returns the principal the client signs as.
func (c *RegistryClient) Address() interfaces.Address {
	if c.privateKey == nil {
		return interfaces.Address{}
	}
	return crypto.PubkeyToAddress(c.privateKey.PublicKey)
}

// Initialize sets the registry admin.
func (c *RegistryClient) Initialize(ctx context.Context, admin interfaces.Address) error {
	return c.do(ctx, http.MethodPost, "/api/v1/initialize", api.InitializeRequest{Admin: admin}, "", nil)
}

// Admin returns the registry admin.
func (c *RegistryClient) Admin(ctx context.Context) (interfaces.Address, error) {
	var resp api.AdminResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/admin", nil, "", &resp)
	return resp.Admin, err
}

// Mint issues a credential, signed by the client's key.
func (c *RegistryClient) Mint(ctx context.Context, req api.MintRequest) (interfaces.CredentialID, error) {
	var resp api.MintResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/credentials", req, interfaces.OpMint, &resp)
	return resp.ID, err
}

// GetCredential returns a credential record.
func (c *RegistryClient) GetCredential(ctx context.Context, id interfaces.CredentialID) (*interfaces.Credential, error) {
	var cred interfaces.Credential
	if err := c.do(ctx, http.MethodGet, credentialPath(id, ""), nil, "", &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// Transfer moves a credential owned by the client to another principal.
func (c *RegistryClient) Transfer(ctx context.Context, id interfaces.CredentialID, to interfaces.Address) error {
	return c.do(ctx, http.MethodPost, credentialPath(id, "/transfer"), api.TransferRequest{To: to}, interfaces.OpTransfer, nil)
}

// Freeze applies or lifts a key-level freeze.
func (c *RegistryClient) Freeze(ctx context.Context, id interfaces.CredentialID, frozen bool) error {
	return c.do(ctx, http.MethodPost, credentialPath(id, "/freeze"), api.FreezeRequest{Frozen: frozen}, interfaces.OpFreeze, nil)
}

// ExpireCredential deactivates a single expired credential.
func (c *RegistryClient) ExpireCredential(ctx context.Context, id interfaces.CredentialID) (bool, error) {
	var resp api.ChangedResponse
	err := c.do(ctx, http.MethodPost, credentialPath(id, "/expire"), nil, "", &resp)
	return resp.Changed, err
}

// VerifyAccess reports whether user may use a credential.
func (c *RegistryClient) VerifyAccess(ctx context.Context, user interfaces.Address, id interfaces.CredentialID) (bool, error) {
	var resp api.AccessResponse
	err := c.do(ctx, http.MethodGet, credentialPath(id, "/access/"+user.Hex()), nil, "", &resp)
	return resp.Access, err
}

// GetBalance returns a principal's bucket counts.
func (c *RegistryClient) GetBalance(ctx context.Context, principal interfaces.Address) (interfaces.Balances, error) {
	var resp api.BalanceResponse
	err := c.do(ctx, http.MethodGet, accountPath(principal, "/balance"), nil, "", &resp)
	return resp.Balances, err
}

// GetUserCredentials lists a principal's credentials.
func (c *RegistryClient) GetUserCredentials(ctx context.Context, principal interfaces.Address) ([]interfaces.Credential, error) {
	var resp api.CredentialsResponse
	err := c.do(ctx, http.MethodGet, accountPath(principal, "/credentials"), nil, "", &resp)
	return resp.Credentials, err
}

// SweepExpired sweeps a principal's expired credentials.
func (c *RegistryClient) SweepExpired(ctx context.Context, principal interfaces.Address) (bool, error) {
	var resp api.ChangedResponse
	err := c.do(ctx, http.MethodPost, accountPath(principal, "/sweep"), nil, "", &resp)
	return resp.Changed, err
}

// FreezeAccount sets or clears an account-level freeze. The client must hold the admin key.
func (c *RegistryClient) FreezeAccount(ctx context.Context, account interfaces.Address, frozen bool) error {
	return c.do(ctx, http.MethodPost, accountPath(account, "/freeze"), api.FreezeRequest{Frozen: frozen}, interfaces.OpFreezeAccount, nil)
}

// IsAccountFrozen reports an account freeze flag.
func (c *RegistryClient) IsAccountFrozen(ctx context.Context, account interfaces.Address) (bool, error) {
	var resp api.FrozenResponse
	err := c.do(ctx, http.MethodGet, accountPath(account, "/frozen"), nil, "", &resp)
	return resp.Frozen, err
}

// Nonce returns the last request nonce the registry accepted from principal.
func (c *RegistryClient) Nonce(ctx context.Context, principal interfaces.Address) (uint64, error) {
	var resp api.NonceResponse
	err := c.do(ctx, http.MethodGet, accountPath(principal, "/nonce"), nil, "", &resp)
	return resp.Nonce, err
}

// SetContentMetadata registers or replaces content metadata.
func (c *RegistryClient) SetContentMetadata(ctx context.Context, meta interfaces.ContentMetadata) error {
	return c.do(ctx, http.MethodPut, contentPath(meta.ContentRef), meta, interfaces.OpSetContent, nil)
}

// GetContentMetadata returns content metadata.
func (c *RegistryClient) GetContentMetadata(ctx context.Context, ref string) (*interfaces.ContentMetadata, error) {
	var meta interfaces.ContentMetadata
	if err := c.do(ctx, http.MethodGet, contentPath(ref), nil, "", &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// nextNonce returns a nonce above every nonce this client has used. It tracks
// wall-clock nanoseconds so that a restarted client stays ahead of the registry.
func (c *RegistryClient) nextNonce() uint64 {
	for {
		last := c.lastNonce.Load()
		next := max(uint64(time.Now().UnixNano()), last+1)
		if c.lastNonce.CompareAndSwap(last, next) {
			return next
		}
	}
}

// do sends a request and decodes a 2xx response into out. A non-empty op signs
// the request for that operation. Error responses are returned as *api.ResponseError.
func (c *RegistryClient) do(ctx context.Context, method, path string, body any, op interfaces.Operation, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if op != "" {
		if c.privateKey == nil {
			return fmt.Errorf("signing key required for %s %s", method, path)
		}
		nonce := c.nextNonce()
		sig, err := auth.Sign(c.privateKey, auth.SigningMessage(op, nonce, auth.RequestPayload(method, path, payload)))
		if err != nil {
			return err
		}
		req.Header.Set(api.PrincipalHeader, c.Address().Hex())
		req.Header.Set(api.NonceHeader, strconv.FormatUint(nonce, 10))
		req.Header.Set(api.SignatureHeader, hexutil.Encode(sig))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		var errResp api.ErrorResponse
		if err := json.Unmarshal(raw, &errResp); err != nil || errResp.Code == "" {
			return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(raw))
		}
		return api.ErrorFor(resp.StatusCode, &errResp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}

func credentialPath(id interfaces.CredentialID, suffix string) string {
	return fmt.Sprintf("/api/v1/credentials/%d%s", id, suffix)
}

func accountPath(addr interfaces.Address, suffix string) string {
	return "/api/v1/accounts/" + addr.Hex() + suffix
}

func contentPath(ref string) string {
	return "/api/v1/content/" + url.PathEscape(ref)
}
