package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/accesskeys-registry/api"
	"github.com/ruteri/accesskeys-registry/auth"
	"github.com/ruteri/accesskeys-registry/interfaces"
	"github.com/ruteri/accesskeys-registry/metrics"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Handler translates HTTP requests into registry operations.
type Handler struct {
	registry interfaces.Registry
	metrics  *metrics.Recorder
	log      *slog.Logger
}

// NewHandler creates a handler serving registry. metrics may be nil.
func NewHandler(registry interfaces.Registry, recorder *metrics.Recorder, log *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		metrics:  recorder,
		log:      log,
	}
}

// Routes mounts the registry API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/initialize", h.HandleInitialize)
		r.Get("/admin", h.HandleAdmin)

		r.Post("/credentials", h.HandleMint)
		r.Get("/credentials/{id}", h.HandleGetCredential)
		r.Post("/credentials/{id}/transfer", h.HandleTransfer)
		r.Post("/credentials/{id}/freeze", h.HandleFreeze)
		r.Post("/credentials/{id}/expire", h.HandleExpire)
		r.Get("/credentials/{id}/access/{user}", h.HandleVerifyAccess)

		r.Get("/accounts/{address}/balance", h.HandleBalance)
		r.Get("/accounts/{address}/credentials", h.HandleUserCredentials)
		r.Post("/accounts/{address}/sweep", h.HandleSweep)
		r.Post("/accounts/{address}/freeze", h.HandleFreezeAccount)
		r.Get("/accounts/{address}/frozen", h.HandleAccountFrozen)
		r.Get("/accounts/{address}/nonce", h.HandleNonce)

		r.Put("/content/{ref}", h.HandleSetContent)
		r.Get("/content/{ref}", h.HandleGetContent)
	})
}

// HandleInitialize sets the admin principal.
//
// URL format: POST /api/v1/initialize
// Request body: {"admin": "0x..."}
func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req api.InitializeRequest
	if _, err := readJSON(r, &req); err != nil {
		h.fail(w, "initialize", start, err)
		return
	}
	if err := h.registry.Initialize(r.Context(), req.Admin); err != nil {
		h.fail(w, "initialize", start, err)
		return
	}
	h.ok(w, "initialize", start, http.StatusOK, api.StatusResponse{Status: "initialized"})
}

// HandleAdmin returns the admin principal.
func (h *Handler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	admin, err := h.registry.Admin(r.Context())
	if err != nil {
		h.fail(w, "admin", start, err)
		return
	}
	h.ok(w, "admin", start, http.StatusOK, api.AdminResponse{Admin: admin})
}

// HandleMint issues a credential.
//
// URL format: POST /api/v1/credentials
// Required headers: X-Principal, X-Nonce, X-Signature
// Request body: api.MintRequest
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req api.MintRequest
	body, err := readJSON(r, &req)
	if err != nil {
		h.fail(w, "mint", start, err)
		return
	}
	proof, err := proofFromRequest(r, body, interfaces.OpMint)
	if err != nil {
		h.fail(w, "mint", start, err)
		return
	}

	id, err := h.registry.Mint(r.Context(), proof, req.ToMintRequest())
	if err != nil {
		h.fail(w, "mint", start, err)
		return
	}
	h.ok(w, "mint", start, http.StatusCreated, api.MintResponse{ID: id})
}

// HandleGetCredential returns a credential record.
func (h *Handler) HandleGetCredential(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := credentialIDParam(r)
	if err != nil {
		h.fail(w, "get_credential", start, err)
		return
	}
	cred, err := h.registry.GetCredential(r.Context(), id)
	if err != nil {
		h.fail(w, "get_credential", start, err)
		return
	}
	h.ok(w, "get_credential", start, http.StatusOK, cred)
}

// HandleTransfer moves a credential to a new owner.
//
// URL format: POST /api/v1/credentials/{id}/transfer
// Required headers: X-Principal, X-Nonce, X-Signature
// Request body: {"to": "0x..."}
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := credentialIDParam(r)
	if err != nil {
		h.fail(w, "transfer", start, err)
		return
	}
	var req api.TransferRequest
	body, err := readJSON(r, &req)
	if err != nil {
		h.fail(w, "transfer", start, err)
		return
	}
	proof, err := proofFromRequest(r, body, interfaces.OpTransfer)
	if err != nil {
		h.fail(w, "transfer", start, err)
		return
	}

	if err := h.registry.Transfer(r.Context(), proof, id, req.To); err != nil {
		h.fail(w, "transfer", start, err)
		return
	}
	h.ok(w, "transfer", start, http.StatusOK, api.StatusResponse{Status: "transferred"})
}

// HandleFreeze applies or lifts a key-level freeze.
//
// URL format: POST /api/v1/credentials/{id}/freeze
// Required headers: X-Principal, X-Nonce, X-Signature
// Request body: {"frozen": true}
func (h *Handler) HandleFreeze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := credentialIDParam(r)
	if err != nil {
		h.fail(w, "freeze", start, err)
		return
	}
	var req api.FreezeRequest
	body, err := readJSON(r, &req)
	if err != nil {
		h.fail(w, "freeze", start, err)
		return
	}
	proof, err := proofFromRequest(r, body, interfaces.OpFreeze)
	if err != nil {
		h.fail(w, "freeze", start, err)
		return
	}

	if err := h.registry.Freeze(r.Context(), proof, id, req.Frozen); err != nil {
		h.fail(w, "freeze", start, err)
		return
	}
	h.ok(w, "freeze", start, http.StatusOK, api.StatusResponse{Status: "ok"})
}

// HandleExpire deactivates a single expired credential.
func (h *Handler) HandleExpire(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := credentialIDParam(r)
	if err != nil {
		h.fail(w, "expire", start, err)
		return
	}
	changed, err := h.registry.ExpireCredential(r.Context(), id)
	if err != nil {
		h.fail(w, "expire", start, err)
		return
	}
	h.ok(w, "expire", start, http.StatusOK, api.ChangedResponse{Changed: changed})
}

// HandleVerifyAccess reports whether user may use a credential.
//
// URL format: GET /api/v1/credentials/{id}/access/{user}
func (h *Handler) HandleVerifyAccess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := credentialIDParam(r)
	if err != nil {
		h.fail(w, "verify_access", start, err)
		return
	}
	user, err := addressParam(r, "user")
	if err != nil {
		h.fail(w, "verify_access", start, err)
		return
	}
	access, err := h.registry.VerifyAccess(r.Context(), user, id)
	if err != nil {
		h.fail(w, "verify_access", start, err)
		return
	}
	h.ok(w, "verify_access", start, http.StatusOK, api.AccessResponse{User: user, CredentialID: id, Access: access})
}

// HandleBalance returns a principal's bucket counts.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	principal, err := addressParam(r, "address")
	if err != nil {
		h.fail(w, "get_balance", start, err)
		return
	}
	balances, err := h.registry.GetBalance(r.Context(), principal)
	if err != nil {
		h.fail(w, "get_balance", start, err)
		return
	}
	h.ok(w, "get_balance", start, http.StatusOK, api.BalanceResponse{Principal: principal, Balances: balances})
}

// HandleUserCredentials lists a principal's credentials.
func (h *Handler) HandleUserCredentials(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	principal, err := addressParam(r, "address")
	if err != nil {
		h.fail(w, "get_user_credentials", start, err)
		return
	}
	creds, err := h.registry.GetUserCredentials(r.Context(), principal)
	if err != nil {
		h.fail(w, "get_user_credentials", start, err)
		return
	}
	h.ok(w, "get_user_credentials", start, http.StatusOK, api.CredentialsResponse{Principal: principal, Credentials: creds})
}

// HandleSweep moves a principal's expired credentials to the expired bucket.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	principal, err := addressParam(r, "address")
	if err != nil {
		h.fail(w, "sweep_expired", start, err)
		return
	}
	changed, err := h.registry.SweepExpired(r.Context(), principal)
	if err != nil {
		h.fail(w, "sweep_expired", start, err)
		return
	}
	h.ok(w, "sweep_expired", start, http.StatusOK, api.ChangedResponse{Changed: changed})
}

// HandleFreezeAccount sets or clears an account-level freeze.
//
// URL format: POST /api/v1/accounts/{address}/freeze
// Required headers: X-Principal, X-Nonce, X-Signature (admin)
// Request body: {"frozen": true}
func (h *Handler) HandleFreezeAccount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	account, err := addressParam(r, "address")
	if err != nil {
		h.fail(w, "freeze_account", start, err)
		return
	}
	var req api.FreezeRequest
	body, err := readJSON(r, &req)
	if err != nil {
		h.fail(w, "freeze_account", start, err)
		return
	}
	proof, err := proofFromRequest(r, body, interfaces.OpFreezeAccount)
	if err != nil {
		h.fail(w, "freeze_account", start, err)
		return
	}

	if err := h.registry.FreezeAccount(r.Context(), proof, account, req.Frozen); err != nil {
		h.fail(w, "freeze_account", start, err)
		return
	}
	h.ok(w, "freeze_account", start, http.StatusOK, api.FrozenResponse{Account: account, Frozen: req.Frozen})
}

// HandleAccountFrozen reports an account freeze flag.
func (h *Handler) HandleAccountFrozen(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	account, err := addressParam(r, "address")
	if err != nil {
		h.fail(w, "is_account_frozen", start, err)
		return
	}
	frozen, err := h.registry.IsAccountFrozen(r.Context(), account)
	if err != nil {
		h.fail(w, "is_account_frozen", start, err)
		return
	}
	h.ok(w, "is_account_frozen", start, http.StatusOK, api.FrozenResponse{Account: account, Frozen: frozen})
}

// HandleNonce returns the last request nonce accepted for a principal.
func (h *Handler) HandleNonce(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	principal, err := addressParam(r, "address")
	if err != nil {
		h.fail(w, "nonce", start, err)
		return
	}
	nonce, err := h.registry.Nonce(r.Context(), principal)
	if err != nil {
		h.fail(w, "nonce", start, err)
		return
	}
	h.ok(w, "nonce", start, http.StatusOK, api.NonceResponse{Principal: principal, Nonce: nonce})
}

// HandleSetContent registers or replaces content metadata.
//
// URL format: PUT /api/v1/content/{ref}
// Required headers: X-Principal, X-Nonce, X-Signature
// Request body: interfaces.ContentMetadata; content_ref is taken from the path.
func (h *Handler) HandleSetContent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var meta interfaces.ContentMetadata
	body, err := readJSON(r, &meta)
	if err != nil {
		h.fail(w, "set_content_metadata", start, err)
		return
	}
	proof, err := proofFromRequest(r, body, interfaces.OpSetContent)
	if err != nil {
		h.fail(w, "set_content_metadata", start, err)
		return
	}
	meta.ContentRef, err = contentRefParam(r)
	if err != nil {
		h.fail(w, "set_content_metadata", start, err)
		return
	}

	if err := h.registry.SetContentMetadata(r.Context(), proof, meta); err != nil {
		h.fail(w, "set_content_metadata", start, err)
		return
	}
	h.ok(w, "set_content_metadata", start, http.StatusOK, api.StatusResponse{Status: "stored"})
}

// HandleGetContent returns content metadata.
func (h *Handler) HandleGetContent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ref, err := contentRefParam(r)
	if err != nil {
		h.fail(w, "get_content_metadata", start, err)
		return
	}
	meta, err := h.registry.GetContentMetadata(r.Context(), ref)
	if err != nil {
		h.fail(w, "get_content_metadata", start, err)
		return
	}
	h.ok(w, "get_content_metadata", start, http.StatusOK, meta)
}

func (h *Handler) ok(w http.ResponseWriter, operation string, start time.Time, status int, v any) {
	if h.metrics != nil {
		h.metrics.Observe(operation, "ok", time.Since(start))
	}
	writeJSON(w, status, v)
}

func (h *Handler) fail(w http.ResponseWriter, operation string, start time.Time, err error) {
	status, code := api.StatusFor(err)
	if h.metrics != nil {
		h.metrics.Observe(operation, code, time.Since(start))
	}

	if status == http.StatusInternalServerError {
		h.log.Error("Registry operation failed", slog.String("operation", operation), "err", err)
	} else {
		h.log.Debug("Registry operation rejected",
			slog.String("operation", operation),
			slog.String("code", code),
			"err", err)
	}
	writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON returns the raw body, which signed requests need verbatim, and decodes it into v.
func readJSON(r *http.Request, v any) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read request body: %v", interfaces.ErrValidation, err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%w: request body larger than %d bytes", interfaces.ErrValidation, maxBodySize)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON body: %v", interfaces.ErrValidation, err)
	}
	return body, nil
}

// proofFromRequest builds the caller's proof for op from the signature headers.
func proofFromRequest(r *http.Request, body []byte, op interfaces.Operation) (interfaces.Proof, error) {
	principalHex := r.Header.Get(api.PrincipalHeader)
	nonceRaw := r.Header.Get(api.NonceHeader)
	signatureHex := r.Header.Get(api.SignatureHeader)
	if principalHex == "" || nonceRaw == "" || signatureHex == "" {
		return interfaces.Proof{}, fmt.Errorf("%w: %s, %s and %s headers are required",
			interfaces.ErrUnauthorized, api.PrincipalHeader, api.NonceHeader, api.SignatureHeader)
	}

	principal, err := interfaces.NewAddressFromHex(principalHex)
	if err != nil {
		return interfaces.Proof{}, fmt.Errorf("%w: %v", interfaces.ErrUnauthorized, err)
	}
	nonce, err := strconv.ParseUint(nonceRaw, 10, 64)
	if err != nil || nonce == 0 {
		return interfaces.Proof{}, fmt.Errorf("%w: invalid nonce %q", interfaces.ErrUnauthorized, nonceRaw)
	}

	return interfaces.Proof{
		Principal: principal,
		Operation: op,
		Nonce:     nonce,
		Payload:   auth.RequestPayload(r.Method, r.URL.EscapedPath(), body),
		Signature: common.FromHex(signatureHex),
	}, nil
}

func credentialIDParam(r *http.Request) (interfaces.CredentialID, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid credential id %q", interfaces.ErrValidation, raw)
	}
	return interfaces.CredentialID(id), nil
}

func addressParam(r *http.Request, name string) (interfaces.Address, error) {
	addr, err := interfaces.NewAddressFromHex(chi.URLParam(r, name))
	if err != nil {
		return interfaces.Address{}, err
	}
	return addr, nil
}

func contentRefParam(r *http.Request) (string, error) {
	ref, err := url.PathUnescape(chi.URLParam(r, "ref"))
	if err != nil {
		return "", fmt.Errorf("%w: invalid content reference: %v", interfaces.ErrValidation, err)
	}
	return ref, nil
}
