package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/accesskeys-registry/auth"
	"github.com/ruteri/accesskeys-registry/events"
	"github.com/ruteri/accesskeys-registry/interfaces"
	"github.com/ruteri/accesskeys-registry/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var (
	admin   = interfaces.Address{0xad}
	alice   = interfaces.Address{0x01}
	bob     = interfaces.Address{0x02}
	carol   = interfaces.Address{0x03}
	creator = interfaces.Address{0xc0}
)

type harness struct {
	engine   *Engine
	store    interfaces.KVStore
	clock    *clock.Mock
	recorder *events.Recorder
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, kvstore.NewMemoryStore())
}

func newHarnessWithStore(t *testing.T, store interfaces.KVStore) *harness {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	recorder := events.NewRecorder()

	return &harness{
		engine:   NewEngine(store, auth.NewTrustedAuthorizer(), clk, recorder, testLogger()),
		store:    store,
		clock:    clk,
		recorder: recorder,
	}
}

func (h *harness) initialize(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Initialize(context.Background(), admin))
}

func (h *harness) mint(t *testing.T, owner interfaces.Address, duration time.Duration, transferable bool) interfaces.CredentialID {
	t.Helper()
	id, err := h.engine.Mint(context.Background(), auth.As(owner), interfaces.MintRequest{
		Owner:        owner,
		ContentRef:   "course",
		Price:        100,
		Duration:     duration,
		Transferable: transferable,
	})
	require.NoError(t, err)
	return id
}

func (h *harness) balance(t *testing.T, principal interfaces.Address) interfaces.Balances {
	t.Helper()
	b, err := h.engine.GetBalance(context.Background(), principal)
	require.NoError(t, err)
	return b
}

func (h *harness) verify(t *testing.T, user interfaces.Address, id interfaces.CredentialID) bool {
	t.Helper()
	ok, err := h.engine.VerifyAccess(context.Background(), user, id)
	require.NoError(t, err)
	return ok
}

func (h *harness) counter(t *testing.T) uint64 {
	t.Helper()
	var n uint64
	require.NoError(t, h.store.View(context.Background(), func(tx interfaces.Txn) error {
		var err error
		n, err = CredentialCounter{}.Current(tx)
		return err
	}))
	return n
}

// assertIndexConsistent checks every id sits in exactly one bucket of one principal,
// and that the bucket matches the record's owner and flags.
func (h *harness) assertIndexConsistent(t *testing.T, principals ...interfaces.Address) {
	t.Helper()
	seen := map[interfaces.CredentialID]string{}
	require.NoError(t, h.store.View(context.Background(), func(tx interfaces.Txn) error {
		for _, p := range principals {
			idx, err := OwnershipIndex{}.Load(tx, p)
			require.NoError(t, err)
			for _, b := range []interfaces.Bucket{interfaces.BucketActive, interfaces.BucketExpired, interfaces.BucketFrozen} {
				for _, id := range *idx.Bucket(b) {
					where := fmt.Sprintf("%s/%s", p.Hex(), b)
					if prev, dup := seen[id]; dup {
						t.Errorf("credential %d in %s and %s", id, prev, where)
					}
					seen[id] = where

					cred, ok, err := CredentialStore{}.Get(tx, id)
					require.NoError(t, err)
					require.True(t, ok)
					assert.Equal(t, p, cred.Owner, "owner of %d", id)
					assert.Equal(t, b, interfaces.BucketFor(cred), "bucket of %d", id)
				}
			}
		}
		return nil
	}))
}

func TestMint_IndexesActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.mint(t, alice, 30*day, true)
	assert.Equal(t, interfaces.CredentialID(1), id)

	cred, err := h.engine.GetCredential(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alice, cred.Owner)
	assert.Equal(t, "course", cred.ContentRef)
	assert.Equal(t, int64(100), cred.Price)
	assert.Equal(t, cred.CreatedAt.Add(30*day), cred.ExpiresAt)
	assert.True(t, cred.IsActive)
	assert.False(t, cred.IsFrozen)

	assert.Equal(t, interfaces.Balances{Active: 1}, h.balance(t, alice))
	assert.Equal(t, []interfaces.EventKind{interfaces.EventMint}, h.recorder.Kinds())
	h.assertIndexConsistent(t, alice)
}

func TestTransfer_MovesBetweenOwners(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.mint(t, alice, 30*day, true)

	require.NoError(t, h.engine.Transfer(ctx, auth.As(alice), id, bob))

	assert.Equal(t, interfaces.Balances{}, h.balance(t, alice))
	assert.Equal(t, interfaces.Balances{Active: 1}, h.balance(t, bob))
	assert.False(t, h.verify(t, alice, id))
	assert.True(t, h.verify(t, bob, id))

	cred, err := h.engine.GetCredential(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, bob, cred.Owner)

	evs := h.recorder.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, interfaces.EventTransfer, evs[1].Kind)
	assert.Equal(t, alice, *evs[1].From)
	assert.Equal(t, bob, *evs[1].To)
	h.assertIndexConsistent(t, alice, bob)
}

func TestSweepExpired_MovesExpiredCredential(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.mint(t, alice, 30*day, true)
	require.NoError(t, h.engine.Transfer(ctx, auth.As(alice), id, bob))

	h.clock.Add(30 * day)

	// Expired but not yet swept: still indexed as active, yet unusable.
	assert.False(t, h.verify(t, bob, id))
	assert.Equal(t, interfaces.Balances{Active: 1}, h.balance(t, bob))

	changed, err := h.engine.SweepExpired(ctx, bob)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.False(t, h.verify(t, bob, id))
	assert.Equal(t, interfaces.Balances{Expired: 1}, h.balance(t, bob))
	h.assertIndexConsistent(t, alice, bob)
}

func TestFreeze_AdminFreezesActiveOrExpired(t *testing.T) {
	for _, expired := range []bool{false, true} {
		t.Run(fmt.Sprintf("expired=%v", expired), func(t *testing.T) {
			h := newHarness(t)
			h.initialize(t)
			ctx := context.Background()
			id := h.mint(t, alice, 30*day, true)

			if expired {
				h.clock.Add(31 * day)
				_, err := h.engine.SweepExpired(ctx, alice)
				require.NoError(t, err)
			}

			require.NoError(t, h.engine.Freeze(ctx, auth.As(admin), id, true))
			assert.Equal(t, interfaces.Balances{Frozen: 1}, h.balance(t, alice))

			for _, user := range []interfaces.Address{alice, bob, admin} {
				assert.False(t, h.verify(t, user, id))
			}

			err := h.engine.Transfer(ctx, auth.As(alice), id, bob)
			assert.ErrorIs(t, err, interfaces.ErrInactiveOrFrozen)

			cred, err := h.engine.GetCredential(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, admin, cred.FrozenBy)
			h.assertIndexConsistent(t, alice, bob)
		})
	}
}

func TestMint_ZeroDurationLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mint(t, alice, day, false)

	_, err := h.engine.Mint(ctx, auth.As(alice), interfaces.MintRequest{
		Owner:      alice,
		ContentRef: "course",
		Duration:   0,
	})
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	assert.Equal(t, uint64(1), h.counter(t))
	_, err = h.engine.GetCredential(ctx, 2)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.Equal(t, interfaces.Balances{Active: 1}, h.balance(t, alice))
}

func TestMint_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  interfaces.MintRequest
	}{
		{name: "negative price", req: interfaces.MintRequest{Owner: alice, ContentRef: "c", Price: -1, Duration: day}},
		{name: "negative duration", req: interfaces.MintRequest{Owner: alice, ContentRef: "c", Duration: -day}},
		{name: "empty content", req: interfaces.MintRequest{Owner: alice, ContentRef: " ", Duration: day}},
		{name: "zero owner", req: interfaces.MintRequest{ContentRef: "c", Duration: day}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.engine.Mint(context.Background(), auth.As(alice), tt.req)
			assert.ErrorIs(t, err, interfaces.ErrValidation)
			assert.Zero(t, h.counter(t))
			assert.Empty(t, h.recorder.Events())
		})
	}
}

func TestMint_Authorization(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)
	ctx := context.Background()
	req := interfaces.MintRequest{Owner: alice, ContentRef: "course", Duration: day}

	_, err := h.engine.Mint(ctx, auth.As(bob), req)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	assert.Zero(t, h.counter(t))

	id, err := h.engine.Mint(ctx, auth.As(admin), req)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Balances{Active: 1}, h.balance(t, alice))

	cred, err := h.engine.GetCredential(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alice, cred.Owner)
}

func TestMint_UniqueIDs(t *testing.T) {
	h := newHarness(t)
	seen := map[interfaces.CredentialID]bool{}
	for i := 0; i < 20; i++ {
		owner := []interfaces.Address{alice, bob, carol}[i%3]
		id := h.mint(t, owner, day, true)
		assert.False(t, seen[id], "id %d reused", id)
		seen[id] = true
	}
	assert.Equal(t, uint64(20), h.counter(t))
	h.assertIndexConsistent(t, alice, bob, carol)
}

func TestTransfer_PreconditionsLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, h *harness) interfaces.CredentialID
		caller  interfaces.Address
		to      interfaces.Address
		wantErr error
	}{
		{
			name:    "unknown credential",
			setup:   func(t *testing.T, h *harness) interfaces.CredentialID { return 42 },
			caller:  alice,
			to:      bob,
			wantErr: interfaces.ErrNotFound,
		},
		{
			name:    "caller is not owner",
			setup:   func(t *testing.T, h *harness) interfaces.CredentialID { return h.mint(t, alice, day, true) },
			caller:  bob,
			to:      bob,
			wantErr: interfaces.ErrUnauthorized,
		},
		{
			name:    "admin cannot transfer",
			setup:   func(t *testing.T, h *harness) interfaces.CredentialID { return h.mint(t, alice, day, true) },
			caller:  admin,
			to:      bob,
			wantErr: interfaces.ErrUnauthorized,
		},
		{
			name:    "transfer to self",
			setup:   func(t *testing.T, h *harness) interfaces.CredentialID { return h.mint(t, alice, day, true) },
			caller:  alice,
			to:      alice,
			wantErr: interfaces.ErrValidation,
		},
		{
			name:    "transfer to zero address",
			setup:   func(t *testing.T, h *harness) interfaces.CredentialID { return h.mint(t, alice, day, true) },
			caller:  alice,
			to:      interfaces.Address{},
			wantErr: interfaces.ErrValidation,
		},
		{
			name:    "not transferable",
			setup:   func(t *testing.T, h *harness) interfaces.CredentialID { return h.mint(t, alice, day, false) },
			caller:  alice,
			to:      bob,
			wantErr: interfaces.ErrNotTransferable,
		},
		{
			name: "frozen by owner",
			setup: func(t *testing.T, h *harness) interfaces.CredentialID {
				id := h.mint(t, alice, day, true)
				require.NoError(t, h.engine.Freeze(context.Background(), auth.As(alice), id, true))
				return id
			},
			caller:  alice,
			to:      bob,
			wantErr: interfaces.ErrInactiveOrFrozen,
		},
		{
			name: "swept as expired",
			setup: func(t *testing.T, h *harness) interfaces.CredentialID {
				id := h.mint(t, alice, day, true)
				h.clock.Add(day)
				_, err := h.engine.SweepExpired(context.Background(), alice)
				require.NoError(t, err)
				return id
			},
			caller:  alice,
			to:      bob,
			wantErr: interfaces.ErrInactiveOrFrozen,
		},
		{
			name: "expired but not swept",
			setup: func(t *testing.T, h *harness) interfaces.CredentialID {
				id := h.mint(t, alice, day, true)
				h.clock.Add(day)
				return id
			},
			caller:  alice,
			to:      bob,
			wantErr: interfaces.ErrExpired,
		},
		{
			name: "sender account frozen",
			setup: func(t *testing.T, h *harness) interfaces.CredentialID {
				id := h.mint(t, alice, day, true)
				require.NoError(t, h.engine.FreezeAccount(context.Background(), auth.As(admin), alice, true))
				return id
			},
			caller:  alice,
			to:      bob,
			wantErr: interfaces.ErrAccountFrozen,
		},
		{
			name: "recipient account frozen",
			setup: func(t *testing.T, h *harness) interfaces.CredentialID {
				id := h.mint(t, alice, day, true)
				require.NoError(t, h.engine.FreezeAccount(context.Background(), auth.As(admin), bob, true))
				return id
			},
			caller:  alice,
			to:      bob,
			wantErr: interfaces.ErrAccountFrozen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.initialize(t)
			id := tt.setup(t, h)

			aliceBefore := h.balance(t, alice)
			bobBefore := h.balance(t, bob)
			eventsBefore := len(h.recorder.Events())

			err := h.engine.Transfer(context.Background(), auth.As(tt.caller), id, tt.to)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, aliceBefore, h.balance(t, alice))
			assert.Equal(t, bobBefore, h.balance(t, bob))
			assert.Len(t, h.recorder.Events(), eventsBefore)

			if cred, err := h.engine.GetCredential(context.Background(), id); err == nil {
				assert.Equal(t, alice, cred.Owner)
			}
			h.assertIndexConsistent(t, alice, bob)
		})
	}
}

func TestTransfer_ChainKeepsIndexConsistent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.mint(t, alice, 10*day, true)
	second := h.mint(t, alice, 10*day, true)
	third := h.mint(t, bob, 10*day, true)

	require.NoError(t, h.engine.Transfer(ctx, auth.As(alice), first, bob))
	require.NoError(t, h.engine.Transfer(ctx, auth.As(bob), first, carol))
	require.NoError(t, h.engine.Transfer(ctx, auth.As(bob), third, alice))

	assert.Equal(t, interfaces.Balances{Active: 2}, h.balance(t, alice))
	assert.Equal(t, interfaces.Balances{}, h.balance(t, bob))
	assert.Equal(t, interfaces.Balances{Active: 1}, h.balance(t, carol))
	assert.True(t, h.verify(t, alice, second))
	assert.True(t, h.verify(t, carol, first))
	h.assertIndexConsistent(t, alice, bob, carol)
}

func TestSweepExpired_Monotonic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	short := h.mint(t, alice, day, true)
	long := h.mint(t, alice, 10*day, true)

	changed, err := h.engine.SweepExpired(ctx, alice)
	require.NoError(t, err)
	assert.False(t, changed)

	h.clock.Add(day)
	changed, err = h.engine.SweepExpired(ctx, alice)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = h.engine.SweepExpired(ctx, alice)
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, interfaces.Balances{Active: 1, Expired: 1}, h.balance(t, alice))
	assert.False(t, h.verify(t, alice, short))
	assert.True(t, h.verify(t, alice, long))

	expireEvents := 0
	for _, ev := range h.recorder.Events() {
		if ev.Kind == interfaces.EventExpire {
			expireEvents++
			assert.Equal(t, short, ev.CredentialID)
		}
	}
	assert.Equal(t, 1, expireEvents)
	h.assertIndexConsistent(t, alice)
}

func TestSweepExpired_IgnoresFrozen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.mint(t, alice, day, true)
	require.NoError(t, h.engine.Freeze(ctx, auth.As(alice), id, true))

	h.clock.Add(2 * day)
	changed, err := h.engine.SweepExpired(ctx, alice)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, interfaces.Balances{Frozen: 1}, h.balance(t, alice))
}

func TestExpireCredential(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.mint(t, alice, day, true)

	changed, err := h.engine.ExpireCredential(ctx, id)
	require.NoError(t, err)
	assert.False(t, changed)

	h.clock.Add(day)
	changed, err = h.engine.ExpireCredential(ctx, id)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, interfaces.Balances{Expired: 1}, h.balance(t, alice))

	changed, err = h.engine.ExpireCredential(ctx, id)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = h.engine.ExpireCredential(ctx, 99)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestFreeze_OwnerFreezeAndUnfreeze(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.mint(t, alice, 10*day, true)

	require.NoError(t, h.engine.Freeze(ctx, auth.As(alice), id, true))
	assert.False(t, h.verify(t, alice, id))

	// Freezing again is a no-op and emits nothing.
	before := len(h.recorder.Events())
	require.NoError(t, h.engine.Freeze(ctx, auth.As(alice), id, true))
	assert.Len(t, h.recorder.Events(), before)

	require.NoError(t, h.engine.Freeze(ctx, auth.As(alice), id, false))
	assert.True(t, h.verify(t, alice, id))
	assert.Equal(t, interfaces.Balances{Active: 1}, h.balance(t, alice))

	cred, err := h.engine.GetCredential(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Address{}, cred.FrozenBy)
	h.assertIndexConsistent(t, alice)
}

func TestFreeze_Authorization(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)
	ctx := context.Background()
	id := h.mint(t, alice, 10*day, true)

	err := h.engine.Freeze(ctx, auth.As(bob), id, true)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	err = h.engine.Freeze(ctx, auth.As(alice), 99, true)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, h.engine.Freeze(ctx, auth.As(admin), id, true))

	// The owner cannot lift a freeze applied by the admin.
	err = h.engine.Freeze(ctx, auth.As(alice), id, false)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	assert.Equal(t, interfaces.Balances{Frozen: 1}, h.balance(t, alice))

	require.NoError(t, h.engine.Freeze(ctx, auth.As(admin), id, false))
	assert.True(t, h.verify(t, alice, id))
}

func TestFreeze_UnfreezeAfterExpiryLandsInExpired(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)
	ctx := context.Background()
	id := h.mint(t, alice, day, true)

	require.NoError(t, h.engine.Freeze(ctx, auth.As(admin), id, true))
	h.clock.Add(2 * day)
	require.NoError(t, h.engine.Freeze(ctx, auth.As(admin), id, false))

	cred, err := h.engine.GetCredential(ctx, id)
	require.NoError(t, err)
	assert.False(t, cred.IsActive)
	assert.False(t, cred.IsFrozen)
	assert.Equal(t, interfaces.Balances{Expired: 1}, h.balance(t, alice))
	assert.False(t, h.verify(t, alice, id))
	h.assertIndexConsistent(t, alice)
}

func TestFreezeAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("requires initialized admin", func(t *testing.T) {
		h := newHarness(t)
		err := h.engine.FreezeAccount(ctx, auth.As(alice), bob, true)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})

	t.Run("admin only", func(t *testing.T) {
		h := newHarness(t)
		h.initialize(t)
		err := h.engine.FreezeAccount(ctx, auth.As(alice), bob, true)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

		frozen, err := h.engine.IsAccountFrozen(ctx, bob)
		require.NoError(t, err)
		assert.False(t, frozen)
	})

	t.Run("blocks mint and transfer but not existing keys", func(t *testing.T) {
		h := newHarness(t)
		h.initialize(t)
		id := h.mint(t, alice, 10*day, true)

		require.NoError(t, h.engine.FreezeAccount(ctx, auth.As(admin), alice, true))
		frozen, err := h.engine.IsAccountFrozen(ctx, alice)
		require.NoError(t, err)
		assert.True(t, frozen)

		_, err = h.engine.Mint(ctx, auth.As(alice), interfaces.MintRequest{Owner: alice, ContentRef: "course", Duration: day})
		assert.ErrorIs(t, err, interfaces.ErrAccountFrozen)

		// Admin-issued keys for a frozen account are refused too.
		_, err = h.engine.Mint(ctx, auth.As(admin), interfaces.MintRequest{Owner: alice, ContentRef: "course", Duration: day})
		assert.ErrorIs(t, err, interfaces.ErrAccountFrozen)

		assert.ErrorIs(t, h.engine.Transfer(ctx, auth.As(alice), id, bob), interfaces.ErrAccountFrozen)

		// No cascade to the held credential.
		assert.True(t, h.verify(t, alice, id))
		assert.Equal(t, interfaces.Balances{Active: 1}, h.balance(t, alice))

		require.NoError(t, h.engine.FreezeAccount(ctx, auth.As(admin), alice, false))
		require.NoError(t, h.engine.Transfer(ctx, auth.As(alice), id, bob))
	})
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.engine.Admin(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	assert.ErrorIs(t, h.engine.Initialize(ctx, interfaces.Address{}), interfaces.ErrValidation)

	require.NoError(t, h.engine.Initialize(ctx, admin))
	assert.ErrorIs(t, h.engine.Initialize(ctx, bob), interfaces.ErrAlreadyInitialized)

	got, err := h.engine.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, got)
	assert.Equal(t, []interfaces.EventKind{interfaces.EventInitialize}, h.recorder.Kinds())
}

func TestInitialize_KeepsCounter(t *testing.T) {
	h := newHarness(t)
	h.mint(t, alice, day, true)
	h.initialize(t)

	assert.Equal(t, interfaces.CredentialID(2), h.mint(t, alice, day, true))
}

func TestGetUserCredentials_Order(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	expiring := h.mint(t, alice, day, true)
	frozen := h.mint(t, alice, 10*day, true)
	active := h.mint(t, alice, 10*day, true)

	require.NoError(t, h.engine.Freeze(ctx, auth.As(alice), frozen, true))
	h.clock.Add(day)
	_, err := h.engine.SweepExpired(ctx, alice)
	require.NoError(t, err)

	creds, err := h.engine.GetUserCredentials(ctx, alice)
	require.NoError(t, err)
	require.Len(t, creds, 3)
	assert.Equal(t, active, creds[0].ID)
	assert.Equal(t, expiring, creds[1].ID)
	assert.Equal(t, frozen, creds[2].ID)

	empty, err := h.engine.GetUserCredentials(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
}

func TestGetUserCredentials_SkipsMissingRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.mint(t, alice, day, true)

	require.NoError(t, h.store.Update(ctx, func(tx interfaces.Txn) error {
		return OwnershipIndex{}.Insert(tx, alice, 77, interfaces.BucketActive)
	}))

	creds, err := h.engine.GetUserCredentials(ctx, alice)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, id, creds[0].ID)
}

func TestVerifyAccess_UnknownID(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.verify(t, alice, 5))
}

func TestContentMetadata(t *testing.T) {
	ctx := context.Background()
	meta := interfaces.ContentMetadata{
		ContentRef: "film",
		Title:      "Film",
		Creator:    creator,
		Price:      500,
		MaxKeys:    2,
	}

	t.Run("creator issues keys up to max", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.engine.SetContentMetadata(ctx, auth.As(creator), meta))

		for _, owner := range []interfaces.Address{alice, bob} {
			_, err := h.engine.Mint(ctx, auth.As(creator), interfaces.MintRequest{Owner: owner, ContentRef: "film", Price: 500, Duration: day})
			require.NoError(t, err)
		}
		_, err := h.engine.Mint(ctx, auth.As(carol), interfaces.MintRequest{Owner: carol, ContentRef: "film", Price: 500, Duration: day})
		assert.ErrorIs(t, err, interfaces.ErrSupplyExhausted)
		assert.Equal(t, uint64(2), h.counter(t))

		got, err := h.engine.GetContentMetadata(ctx, "film")
		require.NoError(t, err)
		assert.Equal(t, uint32(2), got.Issued)
	})

	t.Run("only creator may register", func(t *testing.T) {
		h := newHarness(t)
		err := h.engine.SetContentMetadata(ctx, auth.As(alice), meta)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

		_, err = h.engine.GetContentMetadata(ctx, "film")
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})

	t.Run("replacement keeps issued count", func(t *testing.T) {
		h := newHarness(t)
		h.initialize(t)
		require.NoError(t, h.engine.SetContentMetadata(ctx, auth.As(creator), meta))
		_, err := h.engine.Mint(ctx, auth.As(alice), interfaces.MintRequest{Owner: alice, ContentRef: "film", Duration: day})
		require.NoError(t, err)

		hijack := meta
		hijack.Creator = bob
		assert.ErrorIs(t, h.engine.SetContentMetadata(ctx, auth.As(bob), hijack), interfaces.ErrUnauthorized)

		updated := meta
		updated.Title = "Film (remastered)"
		updated.Issued = 0
		require.NoError(t, h.engine.SetContentMetadata(ctx, auth.As(admin), updated))

		got, err := h.engine.GetContentMetadata(ctx, "film")
		require.NoError(t, err)
		assert.Equal(t, "Film (remastered)", got.Title)
		assert.Equal(t, uint32(1), got.Issued)
	})

	t.Run("validation", func(t *testing.T) {
		h := newHarness(t)
		bad := meta
		bad.Title = ""
		assert.ErrorIs(t, h.engine.SetContentMetadata(ctx, auth.As(creator), bad), interfaces.ErrValidation)
		bad = meta
		bad.Price = -5
		assert.ErrorIs(t, h.engine.SetContentMetadata(ctx, auth.As(creator), bad), interfaces.ErrValidation)
	})
}

func TestEngine_SinkFailureDoesNotRollBack(t *testing.T) {
	sink := new(events.MockEventSink)
	sink.On("Publish", mock.Anything, mock.Anything).Return(errors.New("sink down"))
	sink.On("Name").Return("mock")

	clk := clock.NewMock()
	engine := NewEngine(kvstore.NewMemoryStore(), auth.NewTrustedAuthorizer(), clk, sink, testLogger())

	id, err := engine.Mint(context.Background(), auth.As(alice), interfaces.MintRequest{Owner: alice, ContentRef: "course", Duration: day})
	require.NoError(t, err)

	cred, err := engine.GetCredential(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, alice, cred.Owner)
	sink.AssertNumberOfCalls(t, "Publish", 1)
}

func TestEngine_NoEventsOnFailure(t *testing.T) {
	sink := new(events.MockEventSink)
	engine := NewEngine(kvstore.NewMemoryStore(), auth.NewTrustedAuthorizer(), clock.NewMock(), sink, testLogger())

	err := engine.Transfer(context.Background(), auth.As(alice), 1, bob)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	sink.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestEngine_SQLiteStore(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", url.PathEscape(t.Name()))
	store, err := kvstore.NewSQLiteStoreFromDSN(dsn, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := newHarnessWithStore(t, store)
	h.initialize(t)
	ctx := context.Background()

	id := h.mint(t, alice, 30*day, true)
	require.NoError(t, h.engine.Transfer(ctx, auth.As(alice), id, bob))
	assert.True(t, h.verify(t, bob, id))

	cred, err := h.engine.GetCredential(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 30*day, cred.Duration)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), cred.ExpiresAt)

	h.clock.Add(30 * day)
	changed, err := h.engine.SweepExpired(ctx, bob)
	require.NoError(t, err)
	assert.True(t, changed)

	require.NoError(t, h.engine.Freeze(ctx, auth.As(admin), id, true))
	assert.Equal(t, interfaces.Balances{Frozen: 1}, h.balance(t, bob))

	_, err = h.engine.Mint(ctx, auth.As(alice), interfaces.MintRequest{Owner: alice, ContentRef: "course", Duration: 0})
	assert.ErrorIs(t, err, interfaces.ErrValidation)
	assert.Equal(t, uint64(1), h.counter(t))
	h.assertIndexConsistent(t, alice, bob)
}

func TestTransfer_CorruptedIndex(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(tx interfaces.Txn, id interfaces.CredentialID) error
	}{
		{
			name: "id missing from owner index",
			corrupt: func(tx interfaces.Txn, id interfaces.CredentialID) error {
				_, _, err := OwnershipIndex{}.Remove(tx, alice, id)
				return err
			},
		},
		{
			name: "active id filed as expired",
			corrupt: func(tx interfaces.Txn, id interfaces.CredentialID) error {
				return OwnershipIndex{}.Move(tx, alice, id, interfaces.BucketActive, interfaces.BucketExpired)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			id := h.mint(t, alice, 30*day, true)
			require.NoError(t, h.store.Update(ctx, func(tx interfaces.Txn) error {
				return tt.corrupt(tx, id)
			}))
			before := h.balance(t, alice)

			err := h.engine.Transfer(ctx, auth.As(alice), id, bob)
			require.ErrorIs(t, err, interfaces.ErrCorrupted)

			cred, err := h.engine.GetCredential(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, alice, cred.Owner)
			assert.Equal(t, before, h.balance(t, alice))
			assert.Equal(t, interfaces.Balances{}, h.balance(t, bob))
			assert.Equal(t, []interfaces.EventKind{interfaces.EventMint}, h.recorder.Kinds())
		})
	}
}

func TestEngine_ConcurrentMintAndRead(t *testing.T) {
	stores := []struct {
		name string
		open func(t *testing.T) interfaces.KVStore
	}{
		{
			name: "memory",
			open: func(t *testing.T) interfaces.KVStore { return kvstore.NewMemoryStore() },
		},
		{
			name: "sqlite file",
			open: func(t *testing.T) interfaces.KVStore {
				store, err := kvstore.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), testLogger())
				require.NoError(t, err)
				t.Cleanup(func() { _ = store.Close() })
				return store
			},
		},
	}

	const n = 32
	for _, st := range stores {
		t.Run(st.name, func(t *testing.T) {
			h := newHarnessWithStore(t, st.open(t))
			ctx := context.Background()

			ids := make([]interfaces.CredentialID, n)
			errs := make(chan error, 2*n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					id, err := h.engine.Mint(ctx, auth.As(alice), interfaces.MintRequest{
						Owner:      alice,
						ContentRef: "course",
						Duration:   day,
					})
					if err != nil {
						errs <- fmt.Errorf("mint %d: %w", i, err)
						return
					}
					ids[i] = id
				}(i)
				go func() {
					defer wg.Done()
					creds, err := h.engine.GetUserCredentials(ctx, alice)
					if err != nil {
						errs <- fmt.Errorf("read: %w", err)
						return
					}
					for _, c := range creds {
						if c.Owner != alice || !c.IsActive {
							errs <- fmt.Errorf("read inconsistent credential %d", c.ID)
							return
						}
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				assert.NoError(t, err)
			}

			seen := map[interfaces.CredentialID]bool{}
			for _, id := range ids {
				assert.NotZero(t, id)
				assert.False(t, seen[id], "id %d issued twice", id)
				seen[id] = true
			}
			assert.Len(t, seen, n)
			assert.Equal(t, interfaces.Balances{Active: n}, h.balance(t, alice))
			assert.Equal(t, uint64(n), h.counter(t))

			creds, err := h.engine.GetUserCredentials(ctx, alice)
			require.NoError(t, err)
			assert.Len(t, creds, n)
			h.assertIndexConsistent(t, alice)
		})
	}
}

func TestEngine_SignedProofNonces(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	engine := NewEngine(kvstore.NewMemoryStore(), auth.NewSignatureAuthorizer(), clk, nil, testLogger())

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)
	proof := func(op interfaces.Operation, nonce uint64) interfaces.Proof {
		p, err := auth.NewProof(key, op, nonce, []byte("request"))
		require.NoError(t, err)
		return p
	}
	req := interfaces.MintRequest{Owner: owner, ContentRef: "course", Duration: day, Transferable: true}

	mintProof := proof(interfaces.OpMint, 1)
	id, err := engine.Mint(ctx, mintProof, req)
	require.NoError(t, err)

	t.Run("reused proof", func(t *testing.T) {
		_, err := engine.Mint(ctx, mintProof, req)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

		balance, err := engine.GetBalance(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, interfaces.Balances{Active: 1}, balance)
	})

	t.Run("proof for another operation", func(t *testing.T) {
		err := engine.Transfer(ctx, proof(interfaces.OpFreeze, 2), id, bob)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	})

	t.Run("failed operation keeps nonce", func(t *testing.T) {
		err := engine.Transfer(ctx, proof(interfaces.OpTransfer, 2), id, owner)
		assert.ErrorIs(t, err, interfaces.ErrValidation)

		last, err := engine.Nonce(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), last)

		require.NoError(t, engine.Transfer(ctx, proof(interfaces.OpTransfer, 2), id, bob))
		last, err = engine.Nonce(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), last)
	})

	t.Run("unsequenced proof", func(t *testing.T) {
		_, err := engine.Mint(ctx, proof(interfaces.OpMint, 0), req)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	})
}
