// Package engine implements BitPyStore's storage engine: an embedded,
// single-node, persistent key-value store in the Bitcask lineage.
//
// All mutations are appended to a single log file; an in-memory index
// maps each live key to the byte position of its most recent record; a
// bounded recency cache accelerates repeated reads; expired and
// superseded records are reclaimed by Compact; and the index is rebuilt
// from the log on Open.
//
// Engine is not safe for concurrent use by multiple goroutines without
// its own mutex — which is exactly what it has: every public method
// takes Engine's single mutex for its full duration (see SPEC_FULL.md's
// concurrency section for why the reader/writer split was not used).
package engine

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Options configures Open. Path is required; CacheCapacity defaults to
// 1000 when zero or negative (§6.4).
type Options struct {
	Path          string
	CacheCapacity int

	// clock overrides time.Now().Unix() for deterministic tests. Nil means
	// the real wall clock.
	clock func() int64
}

// Stats is the snapshot returned by Engine.Stats (§4.E STATS).
type Stats struct {
	KeysInIndex        int
	KeysInCache        int
	PutCount           int64
	DeleteCount        int64
	FileSizeBytes      int64
	LastCompactionTime *int64 // nil if never compacted
}

// Engine composes the record codec, log file, index, and cache and
// implements Put/Get/Delete/Ttl/Compact/Stats plus crash recovery.
type Engine struct {
	mu       sync.Mutex
	path     string
	log      *logFile
	idx      *index
	cache    *cache
	counters counters
	clock    func() int64
	closed   bool
}

// Open opens (creating if necessary) the log file at opts.Path, rebuilds
// the index by replaying it, and returns a ready Engine.
func Open(opts Options) (*Engine, error) {
	if opts.Path == "" {
		return nil, errors.New("engine: open: path is empty")
	}

	capacity := opts.CacheCapacity
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}

	clock := opts.clock
	if clock == nil {
		clock = func() int64 { return time.Now().Unix() }
	}

	log, err := openLogFile(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("engine: open: %w", err)
	}

	e := &Engine{
		path:  opts.Path,
		log:   log,
		idx:   newIndex(),
		cache: newCache(capacity),
		clock: clock,
	}

	if err := e.recover(); err != nil {
		_ = log.close()
		return nil, fmt.Errorf("engine: open: recover: %w", err)
	}

	return e, nil
}

// OpenScoped opens an engine, invokes fn, and guarantees Close runs on
// every exit path including a panic inside fn — the scoped-acquisition
// form required by §6.1.
func OpenScoped(opts Options, fn func(*Engine) error) (err error) {
	e, err := Open(opts)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := e.Close()
		err = errors.Join(err, closeErr)
	}()

	return fn(e)
}

// Close flushes and closes the underlying log file. Close is idempotent
// and safe to call on a nil Engine.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	e.closed = true

	return e.log.close()
}

// recover runs the crash-recovery replay described in §4.E. Open calls it
// before the engine is otherwise used; Compact calls it again, after
// clearing the index, to rebuild the index from the compacted file.
func (e *Engine) recover() error {
	size, err := e.log.size()
	if err != nil {
		return err
	}

	offset := int64(0)
	lastGood := int64(0)

	for offset < size {
		headerOffset := offset

		rec, payloadOffset, payloadLength, err := decodeAt(e.log, headerOffset)
		if err != nil {
			// Any framing/integrity failure ends recovery cleanly: the
			// remainder is a torn write from a prior crash, not an error.
			break
		}

		if rec.Op != opPut && rec.Op != opDelete {
			// An unrecognized op is itself a corruption signal; stop here
			// too, same as a codec error would.
			break
		}

		switch rec.Op {
		case opPut:
			e.idx.put(rec.Key, indexEntry{HeaderOffset: headerOffset, Expiry: rec.Expiry})
		case opDelete:
			e.idx.remove(rec.Key)
		}

		offset = payloadOffset + payloadLength + 1
		lastGood = offset
	}

	if lastGood < size {
		return e.log.truncate(lastGood)
	}

	return nil
}

// Put appends a PUT record for key/value, durably, then updates the
// index and cache. ttl is the relative number of seconds until expiry;
// nil or zero means no expiry (§4.E PUT).
func (e *Engine) Put(key string, value Value, ttl *int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if err := validateValue(value); err != nil {
		return err
	}

	if err := validateTTL(ttl); err != nil {
		return err
	}

	var ttlSeconds int64
	if ttl != nil {
		ttlSeconds = *ttl
	}

	expiry := expiryFor(e.clock(), ttlSeconds)

	return e.putLocked(key, value, expiry)
}

// putLocked performs the PUT append+index+cache sequence. Caller must
// hold e.mu.
func (e *Engine) putLocked(key string, value Value, expiry int64) error {
	fr, err := encodeFrame(record{Op: opPut, Key: key, Value: value, Expiry: expiry})
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}

	headerStart, err := e.log.appendBytes(fr.bytes)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}

	if err := e.log.sync(); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}

	e.idx.put(key, indexEntry{HeaderOffset: headerStart, Expiry: expiry})
	e.cache.insert(key, value)
	e.counters.puts++

	return nil
}

// Get returns the live value for key, or (nil, false, nil) if the key is
// absent or has expired (§4.E GET).
func (e *Engine) Get(key string) (Value, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, false, ErrClosed
	}

	entry, ok := e.idx.get(key)
	if !ok {
		return nil, false, nil
	}

	if !isLive(entry.Expiry, e.clock()) {
		e.idx.remove(key)
		e.cache.invalidate(key)

		return nil, false, nil
	}

	if value, hit := e.cache.lookup(key); hit {
		return value, true, nil
	}

	rec, _, _, err := decodeAt(e.log, entry.HeaderOffset)
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w: %w", key, ErrDataCorruption, err)
	}

	e.cache.insert(key, rec.Value)

	return rec.Value, true, nil
}

// Delete always appends a tombstone, even for a key not currently in the
// index — this keeps the operation idempotent with respect to the log
// and needs no pre-read (§4.E DELETE). It returns whether the key had
// been live.
func (e *Engine) Delete(key string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false, ErrClosed
	}

	wasLive := false
	if entry, ok := e.idx.get(key); ok && isLive(entry.Expiry, e.clock()) {
		wasLive = true
	}

	fr, err := encodeFrame(record{Op: opDelete, Key: key})
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}

	if _, err := e.log.appendBytes(fr.bytes); err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}

	if err := e.log.sync(); err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}

	e.idx.remove(key)
	e.cache.invalidate(key)
	e.counters.deletes++

	return wasLive, nil
}

// Ttl rewrites key's record with a new expiry computed from ttl seconds
// from now. It fails with ErrNotFound if key is absent or already
// expired (§4.E TTL-update).
func (e *Engine) Ttl(key string, ttl int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if err := validateTTL(&ttl); err != nil {
		return err
	}

	entry, ok := e.idx.get(key)
	if !ok || !isLive(entry.Expiry, e.clock()) {
		return fmt.Errorf("ttl %q: %w", key, ErrNotFound)
	}

	value, hit := e.cache.lookup(key)
	if !hit {
		rec, _, _, err := decodeAt(e.log, entry.HeaderOffset)
		if err != nil {
			return fmt.Errorf("ttl %q: %w: %w", key, ErrDataCorruption, err)
		}

		value = rec.Value
	}

	expiry := expiryFor(e.clock(), ttl)

	return e.putLocked(key, value, expiry)
}

// Compact rewrites the log to contain only the most recent live record
// for each live key, then atomically replaces the old log with the new
// one (§4.E COMPACT). Compact excludes all other operations for its
// duration — it already holds e.mu for that.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	tmpPath, err := reserveCompactTempPath(e.path)
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	if err := e.writeCompactedLog(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("compact: %w", err)
	}

	if err := e.log.atomicReplace(tmpPath); err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	e.idx.clear()

	if err := e.recover(); err != nil {
		return fmt.Errorf("compact: rebuild index: %w", err)
	}

	e.cache.clear()

	now := e.clock()
	e.counters.lastCompactionAt = now
	e.counters.hasCompacted = true

	return nil
}

// writeCompactedLog writes one fresh PUT record per live, non-expired
// key (as of compaction start) into a new file at tmpPath.
func (e *Engine) writeCompactedLog(tmpPath string) error {
	tmp, err := openLogFile(tmpPath)
	if err != nil {
		return err
	}

	defer func() { _ = tmp.close() }()

	now := e.clock()

	for _, key := range e.idx.keys() {
		entry, ok := e.idx.get(key)
		if !ok || !isLive(entry.Expiry, now) {
			continue
		}

		rec, _, _, err := decodeAt(e.log, entry.HeaderOffset)
		if err != nil {
			return fmt.Errorf("read %q for compaction: %w: %w", key, ErrDataCorruption, err)
		}

		fr, err := encodeFrame(record{Op: opPut, Key: key, Value: rec.Value, Expiry: entry.Expiry})
		if err != nil {
			return fmt.Errorf("encode %q for compaction: %w", key, err)
		}

		if _, err := tmp.appendBytes(fr.bytes); err != nil {
			return fmt.Errorf("write %q for compaction: %w", key, err)
		}
	}

	return tmp.sync()
}

// Stats returns a snapshot of engine activity and sizing (§4.E STATS).
func (e *Engine) Stats() (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Stats{}, ErrClosed
	}

	size, err := e.log.size()
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	stats := Stats{
		KeysInIndex:   e.idx.size(),
		KeysInCache:   e.cache.size(),
		PutCount:      e.counters.puts,
		DeleteCount:   e.counters.deletes,
		FileSizeBytes: size,
	}

	if e.counters.hasCompacted {
		t := e.counters.lastCompactionAt
		stats.LastCompactionTime = &t
	}

	return stats, nil
}
