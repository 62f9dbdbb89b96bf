package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/modqueue/modq/internal/record"
)

// Memory is an in-process adapter used by tests and the embeddable
// examples. Rows are addressed the same way the SQL backends address them:
// by native id or natural key, with a conditional status transition.
type Memory struct {
	mu   sync.Mutex
	rows []memRow
	// failures, when > 0, makes the next operations fail with
	// ErrUnavailable. Lets tests exercise the transient-failure paths.
	failures int
}

type memRow struct {
	rec record.Record
}

func NewMemory(_ Config) *Memory { return &Memory{} }

func (m *Memory) EnsureSchema(_ context.Context) error { return nil }
func (m *Memory) Ping(_ context.Context) error         { return nil }
func (m *Memory) Close() error                         { return nil }

// Seed replaces the stored rows.
func (m *Memory) Seed(recs ...record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = m.rows[:0]
	for _, r := range recs {
		m.rows = append(m.rows, memRow{rec: r})
	}
}

// InsertAt inserts a row at position i, shifting later rows down — the
// store-side mutation that invalidates positional addressing.
func (m *Memory) InsertAt(i int, r record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i > len(m.rows) {
		i = len(m.rows)
	}
	m.rows = append(m.rows[:i], append([]memRow{{rec: r}}, m.rows[i:]...)...)
}

// StatusOf reports the stored status for the row matching rec's identity.
func (m *Memory) StatusOf(rec record.Record) (record.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.locate(rec); i >= 0 {
		return m.rows[i].rec.Status, true
	}
	return "", false
}

// FailNext makes the next n operations return ErrUnavailable.
func (m *Memory) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

func (m *Memory) failing() bool {
	if m.failures > 0 {
		m.failures--
		return true
	}
	return false
}

func (m *Memory) FetchPending(_ context.Context) ([]record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return nil, fmt.Errorf("%w: injected failure", ErrUnavailable)
	}
	var out []record.Record
	for i, row := range m.rows {
		if row.rec.Status == record.StatusPending {
			r := row.rec
			r.Position = i
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) WriteStatus(_ context.Context, rec record.Record, from, to record.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return fmt.Errorf("%w: injected failure", ErrUnavailable)
	}
	i := m.locate(rec)
	if i < 0 {
		return fmt.Errorf("%w: %s/%s/%s", ErrNotFound, rec.ScheduledAt, rec.Platform, rec.NativeID)
	}
	if m.rows[i].rec.Status != from {
		return fmt.Errorf("%w: have %s, want %s", ErrConflict, m.rows[i].rec.Status, from)
	}
	m.rows[i].rec.Status = to
	return nil
}

// locate finds a row by identity, ignoring the cached Position. Callers
// hold m.mu.
func (m *Memory) locate(rec record.Record) int {
	for i, row := range m.rows {
		if rec.NativeID != "" {
			if row.rec.NativeID == rec.NativeID {
				return i
			}
			continue
		}
		if row.rec.Content == rec.Content &&
			row.rec.Platform == rec.Platform &&
			row.rec.ScheduledAt == rec.ScheduledAt {
			return i
		}
	}
	return -1
}
