package model

// PoolEntry is one interest-set record: the set of callers currently
// interested in a code, and when it was last touched by any of them.
// Sources is never empty for an entry present in the pool: an entry is
// created with one caller and only ever gains callers; eviction removes
// the whole entry once LastTouched is older than the TTL.
type PoolEntry struct {
	Sources     map[CallerTag]struct{}
	LastTouched int64 // unix nanos
}

// NewPoolEntry creates an entry already carrying caller as a source.
func NewPoolEntry(caller CallerTag, touched int64) PoolEntry {
	return PoolEntry{
		Sources:     map[CallerTag]struct{}{caller: {}},
		LastTouched: touched,
	}
}

// HasSource reports whether caller is one of the entry's contributing
// sources.
func (e PoolEntry) HasSource(caller CallerTag) bool {
	_, ok := e.Sources[caller]
	return ok
}

// AddSource unions caller into the entry's sources, in place.
func (e PoolEntry) AddSource(caller CallerTag) {
	e.Sources[caller] = struct{}{}
}
