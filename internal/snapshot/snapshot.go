package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/modqueue/modq/internal/record"
)

// ErrStaleRef indicates a surrogate ref that does not belong to the current
// snapshot: it was issued by a superseded snapshot, by a previous process
// run, or never at all. Resolution must fail definitively rather than risk
// acting on the wrong record.
var ErrStaleRef = errors.New("stale snapshot reference")

// Ref is the short-lived surrogate id embedded in UI callbacks. Gen ties
// the ref to one snapshot generation so refs from an older snapshot can
// never alias entries of a newer one, even when sequence numbers repeat.
type Ref struct {
	Gen uint64
	Seq int
}

func (r Ref) String() string { return strconv.FormatUint(r.Gen, 10) + "-" + strconv.Itoa(r.Seq) }

// ParseRef parses the "<gen>-<seq>" form produced by Ref.String.
func ParseRef(s string) (Ref, error) {
	i := strings.IndexByte(s, '-')
	if i <= 0 || i == len(s)-1 {
		return Ref{}, fmt.Errorf("malformed snapshot ref %q", s)
	}
	gen, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return Ref{}, fmt.Errorf("malformed snapshot ref %q: %w", s, err)
	}
	seq, err := strconv.Atoi(s[i+1:])
	if err != nil || seq < 0 {
		return Ref{}, fmt.Errorf("malformed snapshot ref %q", s)
	}
	return Ref{Gen: gen, Seq: seq}, nil
}

// Entry is one pending record with its resolved identity and surrogate ref.
type Entry struct {
	Ref Ref
	Key record.Key
	Rec record.Record
}

// Snapshot is the immutable result of one poll cycle. Entries carry
// sequential refs scoped to this snapshot only. Records whose keys collide
// are kept out of Entries and reported via Duplicates.
type Snapshot struct {
	gen     uint64
	taken   time.Time
	entries []Entry
	byKey   map[record.Key]int
	dups    []record.DuplicateKeyError
}

func (s *Snapshot) Gen() uint64      { return s.gen }
func (s *Snapshot) Taken() time.Time { return s.taken }
func (s *Snapshot) Len() int         { return len(s.entries) }
func (s *Snapshot) Entries() []Entry { return s.entries }

// Duplicates lists key collisions detected while building this snapshot.
func (s *Snapshot) Duplicates() []record.DuplicateKeyError { return s.dups }

// ByKey returns the entry for a durable key, if present.
func (s *Snapshot) ByKey(k record.Key) (Entry, bool) {
	i, ok := s.byKey[k]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Cache holds the single current snapshot and serves ref lookups for
// incoming decisions. Refresh replaces the snapshot atomically: a reader
// sees either the old snapshot or the new one, never a half-built state.
type Cache struct {
	mu  sync.RWMutex
	gen uint64
	cur *Snapshot
}

func NewCache() *Cache { return &Cache{} }

// Refresh builds a snapshot from freshly fetched records and installs it as
// current. Keys are resolved via record.KeyOf; colliding keys are excluded
// from the entry table and reported on the snapshot.
func (c *Cache) Refresh(recs []record.Record) *Snapshot {
	byKey := make(map[record.Key][]record.Record, len(recs))
	order := make([]record.Key, 0, len(recs))
	for _, r := range recs {
		k := record.KeyOf(r)
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], r)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	snap := &Snapshot{
		gen:   c.gen,
		taken: time.Now(),
		byKey: make(map[record.Key]int),
	}
	for _, k := range order {
		group := byKey[k]
		if len(group) > 1 {
			snap.dups = append(snap.dups, record.DuplicateKeyError{Key: k, Records: group})
			continue
		}
		snap.byKey[k] = len(snap.entries)
		snap.entries = append(snap.entries, Entry{
			Ref: Ref{Gen: c.gen, Seq: len(snap.entries)},
			Key: k,
			Rec: group[0],
		})
	}
	c.cur = snap
	return snap
}

// Current returns the current snapshot, or nil before the first Refresh.
func (c *Cache) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur
}

// Resolve maps a surrogate ref back to its entry. Any ref that is not part
// of the current snapshot fails with ErrStaleRef. The returned entry is a
// copy, so it stays usable for a write-back even if the snapshot is
// replaced while the decision is in flight.
func (c *Cache) Resolve(ref Ref) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cur == nil || ref.Gen != c.cur.gen {
		return Entry{}, fmt.Errorf("%w: ref %s", ErrStaleRef, ref)
	}
	if ref.Seq < 0 || ref.Seq >= len(c.cur.entries) {
		return Entry{}, fmt.Errorf("%w: ref %s was never issued", ErrStaleRef, ref)
	}
	return c.cur.entries[ref.Seq], nil
}
