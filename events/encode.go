package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// EncodeBatch renders events as JSON lines.
func EncodeBatch(events []interfaces.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return nil, fmt.Errorf("failed to encode event %s: %w", events[i].ID, err)
		}
	}
	return buf.Bytes(), nil
}
