package engine

import "errors"

// ErrNotFound reports a logical absence: a TTL update against a key that
// isn't live. Get does not return it; Get reports an unknown or expired
// key through its boolean result.
//
// Callers should use errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("engine: key not found")

// ErrMalformedHeader reports a record header that isn't exactly two decimal
// ASCII integers separated by a single space.
var ErrMalformedHeader = errors.New("engine: malformed record header")

// ErrMalformedFrame reports a record whose payload isn't followed by the
// trailing newline the framing requires.
var ErrMalformedFrame = errors.New("engine: malformed record frame")

// ErrChecksumMismatch reports a payload whose CRC-32 disagrees with the
// checksum recorded in its header.
var ErrChecksumMismatch = errors.New("engine: checksum mismatch")

// ErrCorruptRecord reports a checksum-valid payload that isn't valid JSON.
var ErrCorruptRecord = errors.New("engine: corrupt record payload")

// ErrDataCorruption reports that a GET found the index pointing at an
// offset whose record fails to decode. The engine stays open; the failing
// operation does not.
//
// Callers should use errors.Is(err, ErrDataCorruption).
var ErrDataCorruption = errors.New("engine: data corruption")

// ErrNotSerializable reports a PUT value that is not valid JSON. The
// operation fails before any log write.
var ErrNotSerializable = errors.New("engine: value is not JSON-encodable")

// ErrInvalidTTL reports a negative TTL passed to Put or Ttl.
var ErrInvalidTTL = errors.New("engine: ttl must not be negative")

// ErrClosed reports an operation attempted after Close.
var ErrClosed = errors.New("engine: engine is closed")

// ErrIO wraps underlying file system failures (disk full, read error,
// atomic replace failure). For a Put/Delete/Ttl that failed before or
// during Sync, the caller must treat the mutation as indeterminate —
// the next Open's recovery pass resolves it one way or the other.
var ErrIO = errors.New("engine: io error")
