package reconciler

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes a content payload after JSON normalization, so
// formatting-only edits (whitespace, key order) never trigger
// reconciliation fan-out.
func Fingerprint(payload json.RawMessage) uint64 {
	if len(payload) == 0 {
		return 0
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		// Not JSON; hash the raw bytes.
		return xxhash.Sum64(payload)
	}
	normalized, err := json.Marshal(decoded)
	if err != nil {
		return xxhash.Sum64(payload)
	}
	return xxhash.Sum64(normalized)
}
