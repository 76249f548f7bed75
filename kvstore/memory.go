package kvstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// MemoryStore implements interfaces.KVStore in process memory.
// Update holds an exclusive lock for the whole invocation and buffers writes,
// applying them only when the callback succeeds.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ interfaces.KVStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// View runs fn against the current state with writes disallowed.
func (s *MemoryStore) View(ctx context.Context, fn func(tx interfaces.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&memoryTxn{store: s, readOnly: true})
}

// Update runs fn and commits its writes atomically if it returns nil.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx interfaces.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTxn{
		store:   s,
		pending: make(map[string][]byte),
		removed: make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for k := range tx.removed {
		delete(s.data, k)
	}
	for k, v := range tx.pending {
		s.data[k] = v
	}
	return nil
}

// Name returns identifier for logging.
func (s *MemoryStore) Name() string {
	return "memory"
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

type memoryTxn struct {
	store    *MemoryStore
	readOnly bool
	pending  map[string][]byte
	removed  map[string]struct{}
}

func (t *memoryTxn) Get(key interfaces.Key) ([]byte, bool, error) {
	k := key.String()
	if !t.readOnly {
		if v, ok := t.pending[k]; ok {
			return bytes.Clone(v), true, nil
		}
		if _, ok := t.removed[k]; ok {
			return nil, false, nil
		}
	}
	v, ok := t.store.data[k]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (t *memoryTxn) Set(key interfaces.Key, value []byte) error {
	if t.readOnly {
		return interfaces.ErrReadOnly
	}
	k := key.String()
	delete(t.removed, k)
	t.pending[k] = bytes.Clone(value)
	return nil
}

func (t *memoryTxn) Remove(key interfaces.Key) error {
	if t.readOnly {
		return interfaces.ErrReadOnly
	}
	k := key.String()
	delete(t.pending, k)
	t.removed[k] = struct{}{}
	return nil
}
