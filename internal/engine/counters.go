package engine

// counters tracks per-engine activity since Open. They are not persisted
// — they describe this process's activity, not the log's history — and
// are only ever touched from inside an Engine method already holding the
// engine's mutex, so no atomics are needed (§4.F).
type counters struct {
	puts             int64
	deletes          int64
	lastCompactionAt int64 // Unix seconds; meaningful only when hasCompacted is set
	hasCompacted     bool
}
