package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

func getJSON(tx interfaces.Txn, key interfaces.Key, v any) (bool, error) {
	raw, ok, err := tx.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func putJSON(tx interfaces.Txn, key interfaces.Key, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Set(key, raw)
}
