package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/accesskeys-registry/interfaces"
)

// Engine implements the credential lifecycle on top of a KVStore.
//
// Every mutating operation runs as one KVStore.Update: preconditions are checked
// first and any failure discards all writes of the invocation. Events are buffered
// during the transaction and handed to the EventSink only after commit.
type Engine struct {
	store      interfaces.KVStore
	authorizer interfaces.Authorizer
	clock      interfaces.Clock
	sink       interfaces.EventSink
	log        *slog.Logger

	counter     CredentialCounter
	credentials CredentialStore
	index       OwnershipIndex
	admin       AdminRegistry
	freezes     AccountFreezes
	content     ContentCatalog
	nonces      NonceRegistry
}

var _ interfaces.Registry = (*Engine)(nil)

// NewEngine wires the engine to its collaborators. A nil sink drops events.
func NewEngine(store interfaces.KVStore, authorizer interfaces.Authorizer, clk interfaces.Clock, sink interfaces.EventSink, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:      store,
		authorizer: authorizer,
		clock:      clk,
		sink:       sink,
		log:        log,
	}
}

// op collects the events of a single invocation.
type op struct {
	now    time.Time
	events []interfaces.Event
}

func (o *op) emit(ev interfaces.Event) {
	ev.ID = uuid.NewString()
	ev.Topic = ev.Kind.Topic()
	ev.Timestamp = o.now
	o.events = append(o.events, ev)
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

// update runs fn in a write transaction and publishes its events once committed.
func (e *Engine) update(ctx context.Context, fn func(tx interfaces.Txn, o *op) error) error {
	o := &op{now: e.now()}
	if err := e.store.Update(ctx, func(tx interfaces.Txn) error {
		o.events = o.events[:0]
		return fn(tx, o)
	}); err != nil {
		return err
	}
	e.publish(ctx, o.events)
	return nil
}

func (e *Engine) publish(ctx context.Context, events []interfaces.Event) {
	if e.sink == nil || len(events) == 0 {
		return
	}
	if err := e.sink.Publish(ctx, events...); err != nil {
		e.log.Error("Failed to publish events",
			"err", err,
			slog.String("sink", e.sink.Name()),
			slog.Int("count", len(events)))
	}
}

// authorize checks the proof names one of the allowed principals, that the
// authorizer accepts it for op, and consumes its nonce within tx.
func (e *Engine) authorize(ctx context.Context, tx interfaces.Txn, op interfaces.Operation, proof interfaces.Proof, allowed ...interfaces.Address) (interfaces.Address, error) {
	caller := proof.Principal
	if caller == (interfaces.Address{}) || !slices.Contains(allowed, caller) {
		return interfaces.Address{}, fmt.Errorf("%w: %s may not perform %s", interfaces.ErrUnauthorized, caller.Hex(), op)
	}
	if err := e.authorizer.Authorize(ctx, caller, op, proof); err != nil {
		if errors.Is(err, interfaces.ErrUnauthorized) {
			return interfaces.Address{}, err
		}
		return interfaces.Address{}, fmt.Errorf("%w: %v", interfaces.ErrUnauthorized, err)
	}
	if proof.Nonce != 0 {
		if err := e.nonces.Consume(tx, caller, proof.Nonce); err != nil {
			return interfaces.Address{}, err
		}
	}
	return caller, nil
}

func (e *Engine) requireAccountsNotFrozen(tx interfaces.Txn, accounts ...interfaces.Address) error {
	for _, account := range accounts {
		frozen, err := e.freezes.IsFrozen(tx, account)
		if err != nil {
			return err
		}
		if frozen {
			return fmt.Errorf("%w: %s", interfaces.ErrAccountFrozen, account.Hex())
		}
	}
	return nil
}

// Initialize stores the admin principal. It succeeds exactly once.
func (e *Engine) Initialize(ctx context.Context, admin interfaces.Address) error {
	err := e.update(ctx, func(tx interfaces.Txn, o *op) error {
		if err := e.admin.Set(tx, admin); err != nil {
			return err
		}
		if err := e.counter.Ensure(tx); err != nil {
			return err
		}
		o.emit(interfaces.Event{Kind: interfaces.EventInitialize, Account: &admin})
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info("Registry initialized", slog.String("admin", admin.Hex()))
	return nil
}

// Admin returns the admin principal or ErrNotFound before initialization.
func (e *Engine) Admin(ctx context.Context) (interfaces.Address, error) {
	var admin interfaces.Address
	err := e.store.View(ctx, func(tx interfaces.Txn) error {
		a, ok, err := e.admin.Get(tx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: admin not initialized", interfaces.ErrNotFound)
		}
		admin = a
		return nil
	})
	return admin, err
}

// Mint issues a new credential to req.Owner and returns its id.
// The proof must come from the owner, the admin, or the creator of the registered content.
func (e *Engine) Mint(ctx context.Context, proof interfaces.Proof, req interfaces.MintRequest) (interfaces.CredentialID, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	var id interfaces.CredentialID
	err := e.update(ctx, func(tx interfaces.Txn, o *op) error {
		issuers := []interfaces.Address{req.Owner}
		if admin, ok, err := e.admin.Get(tx); err != nil {
			return err
		} else if ok {
			issuers = append(issuers, admin)
		}
		if meta, ok, err := e.content.Get(tx, req.ContentRef); err != nil {
			return err
		} else if ok {
			issuers = append(issuers, meta.Creator)
		}

		caller, err := e.authorize(ctx, tx, interfaces.OpMint, proof, issuers...)
		if err != nil {
			return err
		}
		if err := e.requireAccountsNotFrozen(tx, req.Owner, caller); err != nil {
			return err
		}
		if err := e.content.Reserve(tx, req.ContentRef); err != nil {
			return err
		}

		id, err = e.counter.Next(tx)
		if err != nil {
			return err
		}

		cred := &interfaces.Credential{
			ID:           id,
			Owner:        req.Owner,
			ContentRef:   req.ContentRef,
			Price:        req.Price,
			Duration:     req.Duration,
			CreatedAt:    o.now,
			ExpiresAt:    o.now.Add(req.Duration),
			IsActive:     true,
			Transferable: req.Transferable,
		}
		if err := e.credentials.Create(tx, cred); err != nil {
			return err
		}
		if err := e.index.Insert(tx, req.Owner, id, interfaces.BucketActive); err != nil {
			return err
		}

		o.emit(interfaces.Event{
			Kind:         interfaces.EventMint,
			CredentialID: id,
			Owner:        &cred.Owner,
			From:         &caller,
			ContentRef:   cred.ContentRef,
			Price:        cred.Price,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("Credential minted",
		slog.Uint64("id", uint64(id)),
		slog.String("owner", req.Owner.Hex()),
		slog.String("content_ref", req.ContentRef))
	return id, nil
}

// Transfer moves an active, unexpired, transferable credential from its owner to another principal.
func (e *Engine) Transfer(ctx context.Context, proof interfaces.Proof, id interfaces.CredentialID, to interfaces.Address) error {
	var from interfaces.Address
	err := e.update(ctx, func(tx interfaces.Txn, o *op) error {
		cred, err := e.credentials.MustGet(tx, id)
		if err != nil {
			return err
		}
		from = cred.Owner

		if _, err := e.authorize(ctx, tx, interfaces.OpTransfer, proof, from); err != nil {
			return err
		}
		if to == (interfaces.Address{}) {
			return fmt.Errorf("%w: recipient is required", interfaces.ErrValidation)
		}
		if to == from {
			return fmt.Errorf("%w: recipient already owns credential %d", interfaces.ErrValidation, id)
		}
		if !cred.Transferable {
			return fmt.Errorf("%w: credential %d", interfaces.ErrNotTransferable, id)
		}
		if !cred.IsActive || cred.IsFrozen {
			return fmt.Errorf("%w: credential %d", interfaces.ErrInactiveOrFrozen, id)
		}
		if cred.ExpiredAt(o.now) {
			return fmt.Errorf("%w: credential %d expired at %s", interfaces.ErrExpired, id, cred.ExpiresAt.Format(time.RFC3339))
		}
		if err := e.requireAccountsNotFrozen(tx, from, to); err != nil {
			return err
		}

		bucket, found, err := e.index.Remove(tx, from, id)
		if err != nil {
			return err
		}
		if !found || bucket != interfaces.BucketActive {
			return fmt.Errorf("%w: credential %d is active but indexed as %s for %s (found=%t)",
				interfaces.ErrCorrupted, id, bucket, from.Hex(), found)
		}
		if err := e.index.Insert(tx, to, id, interfaces.BucketActive); err != nil {
			return err
		}
		cred.Owner = to
		if err := e.credentials.Update(tx, cred); err != nil {
			return err
		}

		o.emit(interfaces.Event{
			Kind:         interfaces.EventTransfer,
			CredentialID: id,
			From:         &from,
			To:           &to,
		})
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info("Credential transferred",
		slog.Uint64("id", uint64(id)),
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()))
	return nil
}

// Freeze applies or lifts a key-level freeze.
//
// Freezing is allowed to the admin and the owner. Unfreezing is allowed to the admin,
// and to the owner only when the owner applied the freeze. An unfrozen credential
// returns to the active bucket unless it expired meanwhile, in which case it lands
// in the expired bucket.
func (e *Engine) Freeze(ctx context.Context, proof interfaces.Proof, id interfaces.CredentialID, freeze bool) error {
	changed := false
	err := e.update(ctx, func(tx interfaces.Txn, o *op) error {
		cred, err := e.credentials.MustGet(tx, id)
		if err != nil {
			return err
		}

		allowed := []interfaces.Address{cred.Owner}
		admin, hasAdmin, err := e.admin.Get(tx)
		if err != nil {
			return err
		}
		if hasAdmin {
			allowed = append(allowed, admin)
		}
		caller, err := e.authorize(ctx, tx, interfaces.OpFreeze, proof, allowed...)
		if err != nil {
			return err
		}

		if freeze == cred.IsFrozen {
			return nil
		}

		from := interfaces.BucketFor(cred)
		if freeze {
			cred.IsFrozen = true
			cred.IsActive = false
			cred.FrozenBy = caller
		} else {
			if !(hasAdmin && caller == admin) && cred.FrozenBy != caller {
				return fmt.Errorf("%w: credential %d was frozen by %s", interfaces.ErrUnauthorized, id, cred.FrozenBy.Hex())
			}
			cred.IsFrozen = false
			cred.FrozenBy = interfaces.Address{}
			cred.IsActive = !cred.ExpiredAt(o.now)
		}

		if err := e.index.Move(tx, cred.Owner, id, from, interfaces.BucketFor(cred)); err != nil {
			return err
		}
		if err := e.credentials.Update(tx, cred); err != nil {
			return err
		}

		changed = true
		o.emit(interfaces.Event{
			Kind:         interfaces.EventFreeze,
			CredentialID: id,
			Owner:        &cred.Owner,
			Account:      &caller,
			Frozen:       &freeze,
		})
		return nil
	})
	if err != nil {
		return err
	}

	if changed {
		e.log.Info("Credential freeze updated",
			slog.Uint64("id", uint64(id)),
			slog.Bool("frozen", freeze))
	}
	return nil
}

// FreezeAccount sets or clears the account-level freeze flag. Admin only.
// Credentials held by the account keep their own flags.
func (e *Engine) FreezeAccount(ctx context.Context, proof interfaces.Proof, account interfaces.Address, freeze bool) error {
	if account == (interfaces.Address{}) {
		return fmt.Errorf("%w: account is required", interfaces.ErrValidation)
	}

	err := e.update(ctx, func(tx interfaces.Txn, o *op) error {
		admin, ok, err := e.admin.Get(tx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: admin not initialized", interfaces.ErrNotFound)
		}
		if _, err := e.authorize(ctx, tx, interfaces.OpFreezeAccount, proof, admin); err != nil {
			return err
		}
		if err := e.freezes.Set(tx, account, freeze); err != nil {
			return err
		}

		o.emit(interfaces.Event{
			Kind:    interfaces.EventFreezeAccount,
			Account: &account,
			Frozen:  &freeze,
		})
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info("Account freeze updated",
		slog.String("account", account.Hex()),
		slog.Bool("frozen", freeze))
	return nil
}

// IsAccountFrozen reports whether the account is frozen at the account level.
func (e *Engine) IsAccountFrozen(ctx context.Context, account interfaces.Address) (bool, error) {
	var frozen bool
	err := e.store.View(ctx, func(tx interfaces.Txn) error {
		var err error
		frozen, err = e.freezes.IsFrozen(tx, account)
		return err
	})
	return frozen, err
}

// VerifyAccess reports whether user currently holds a usable credential id.
// Unknown ids yield false.
func (e *Engine) VerifyAccess(ctx context.Context, user interfaces.Address, id interfaces.CredentialID) (bool, error) {
	now := e.now()
	var ok bool
	err := e.store.View(ctx, func(tx interfaces.Txn) error {
		cred, exists, err := e.credentials.Get(tx, id)
		if err != nil || !exists {
			return err
		}
		ok = cred.UsableBy(user, now)
		return nil
	})
	return ok, err
}

// SweepExpired moves every expired credential in principal's active bucket to
// the expired bucket and reports whether anything moved.
func (e *Engine) SweepExpired(ctx context.Context, principal interfaces.Address) (bool, error) {
	var swept []interfaces.CredentialID
	err := e.update(ctx, func(tx interfaces.Txn, o *op) error {
		swept = swept[:0]

		idx, err := e.index.Load(tx, principal)
		if err != nil {
			return err
		}

		for _, id := range slices.Clone(idx.Active) {
			cred, ok, err := e.credentials.Get(tx, id)
			if err != nil {
				return err
			}
			if !ok || !cred.ExpiredAt(o.now) {
				continue
			}
			if err := e.expire(tx, o, cred); err != nil {
				return err
			}
			swept = append(swept, id)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if len(swept) > 0 {
		e.log.Info("Expired credentials swept",
			slog.String("principal", principal.Hex()),
			slog.Int("count", len(swept)))
	}
	return len(swept) > 0, nil
}

// ExpireCredential deactivates a single credential if it is active and past its expiry.
func (e *Engine) ExpireCredential(ctx context.Context, id interfaces.CredentialID) (bool, error) {
	changed := false
	err := e.update(ctx, func(tx interfaces.Txn, o *op) error {
		cred, err := e.credentials.MustGet(tx, id)
		if err != nil {
			return err
		}
		if !cred.IsActive || cred.IsFrozen || !cred.ExpiredAt(o.now) {
			return nil
		}
		changed = true
		return e.expire(tx, o, cred)
	})
	return changed, err
}

func (e *Engine) expire(tx interfaces.Txn, o *op, cred *interfaces.Credential) error {
	cred.IsActive = false
	if err := e.index.Move(tx, cred.Owner, cred.ID, interfaces.BucketActive, interfaces.BucketExpired); err != nil {
		return err
	}
	if err := e.credentials.Update(tx, cred); err != nil {
		return err
	}
	o.emit(interfaces.Event{
		Kind:         interfaces.EventExpire,
		CredentialID: cred.ID,
		Owner:        &cred.Owner,
	})
	return nil
}

// GetCredential returns the credential record or ErrNotFound.
func (e *Engine) GetCredential(ctx context.Context, id interfaces.CredentialID) (*interfaces.Credential, error) {
	var cred *interfaces.Credential
	err := e.store.View(ctx, func(tx interfaces.Txn) error {
		var err error
		cred, err = e.credentials.MustGet(tx, id)
		return err
	})
	return cred, err
}

// GetBalance returns the per-bucket counts of principal's index.
func (e *Engine) GetBalance(ctx context.Context, principal interfaces.Address) (interfaces.Balances, error) {
	var balances interfaces.Balances
	err := e.store.View(ctx, func(tx interfaces.Txn) error {
		var err error
		balances, err = e.index.Balances(tx, principal)
		return err
	})
	return balances, err
}

// GetUserCredentials returns principal's active, expired and frozen credentials, in that order.
func (e *Engine) GetUserCredentials(ctx context.Context, principal interfaces.Address) ([]interfaces.Credential, error) {
	creds := []interfaces.Credential{}
	err := e.store.View(ctx, func(tx interfaces.Txn) error {
		idx, err := e.index.Load(tx, principal)
		if err != nil {
			return err
		}
		for _, id := range slices.Concat(idx.Active, idx.Expired, idx.Frozen) {
			cred, ok, err := e.credentials.Get(tx, id)
			if err != nil {
				return err
			}
			if !ok {
				e.log.Warn("Indexed credential missing from store",
					slog.Uint64("id", uint64(id)),
					slog.String("principal", principal.Hex()))
				continue
			}
			creds = append(creds, *cred)
		}
		return nil
	})
	return creds, err
}

// SetContentMetadata registers or replaces content metadata.
// A new record must be signed by meta.Creator. An existing record may only be
// replaced by its creator or the admin, and its issued count is carried over.
func (e *Engine) SetContentMetadata(ctx context.Context, proof interfaces.Proof, meta interfaces.ContentMetadata) error {
	if err := ValidateContentMetadata(&meta); err != nil {
		return err
	}

	err := e.update(ctx, func(tx interfaces.Txn, o *op) error {
		existing, ok, err := e.content.Get(tx, meta.ContentRef)
		if err != nil {
			return err
		}

		allowed := []interfaces.Address{meta.Creator}
		meta.Issued = 0
		if ok {
			allowed = []interfaces.Address{existing.Creator}
			admin, hasAdmin, err := e.admin.Get(tx)
			if err != nil {
				return err
			}
			if hasAdmin {
				allowed = append(allowed, admin)
			}
			meta.Issued = existing.Issued
		}
		if _, err := e.authorize(ctx, tx, interfaces.OpSetContent, proof, allowed...); err != nil {
			return err
		}

		if err := e.content.Put(tx, &meta); err != nil {
			return err
		}
		o.emit(interfaces.Event{
			Kind:       interfaces.EventContent,
			ContentRef: meta.ContentRef,
			Owner:      &meta.Creator,
			Price:      meta.Price,
		})
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info("Content metadata stored",
		slog.String("content_ref", meta.ContentRef),
		slog.String("creator", meta.Creator.Hex()))
	return nil
}

// GetContentMetadata returns the metadata for ref or ErrNotFound.
func (e *Engine) GetContentMetadata(ctx context.Context, ref string) (*interfaces.ContentMetadata, error) {
	var meta *interfaces.ContentMetadata
	err := e.store.View(ctx, func(tx interfaces.Txn) error {
		m, ok, err := e.content.Get(tx, ref)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: content %q", interfaces.ErrNotFound, ref)
		}
		meta = m
		return nil
	})
	return meta, err
}

// Nonce returns the last proof nonce accepted for principal.
func (e *Engine) Nonce(ctx context.Context, principal interfaces.Address) (uint64, error) {
	var nonce uint64
	err := e.store.View(ctx, func(tx interfaces.Txn) error {
		var err error
		nonce, err = e.nonces.Last(tx, principal)
		return err
	})
	return nonce, err
}
