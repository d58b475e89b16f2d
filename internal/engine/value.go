package engine

import (
	"encoding/json"
	"fmt"
)

// Value is a JSON-encoded payload stored opaquely by the engine. Callers
// produce and interpret the bytes; the engine only validates that they are
// well-formed JSON and embeds them in the record's JSON payload. Writing the
// record drops insignificant whitespace outside strings, so a value read
// back from the log is the compact form of what was written; string
// contents and object key order are kept as written. A value still held in
// the recency cache is returned exactly as it was passed to Put.
type Value = json.RawMessage

// validateValue rejects anything that isn't well-formed JSON before the
// engine ever touches the log.
func validateValue(v Value) error {
	if !json.Valid(v) {
		return fmt.Errorf("put: %w", ErrNotSerializable)
	}

	return nil
}

// validateTTL rejects negative TTLs. A nil or zero TTL both mean "no
// expiry" per spec.
func validateTTL(ttl *int64) error {
	if ttl != nil && *ttl < 0 {
		return fmt.Errorf("ttl %d: %w", *ttl, ErrInvalidTTL)
	}

	return nil
}

// expiryFor computes the absolute Unix-second expiry for a PUT/TTL-update,
// given the current time and a relative TTL in seconds (callers pass 0 for
// an absent TTL). A zero TTL yields 0 ("no expiry").
func expiryFor(now, ttl int64) int64 {
	if ttl <= 0 {
		return 0
	}

	return now + ttl
}

// isLive reports whether an index entry with the given expiry is still
// live at time now. expiry == 0 means "no expiry".
func isLive(expiry, now int64) bool {
	return expiry == 0 || expiry > now
}
