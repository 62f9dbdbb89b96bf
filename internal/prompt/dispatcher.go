// Package prompt turns snapshot entries into decision prompts and tracks
// which records have already been surfaced, so repeated poll cycles over an
// unchanged pending set never re-notify.
package prompt

import (
	"context"
	"fmt"
	"sync"

	"github.com/modqueue/modq/internal/record"
	"github.com/modqueue/modq/internal/snapshot"
	"github.com/modqueue/modq/internal/transport"
)

// Dispatcher sends one prompt per durable key and remembers the delivered
// handle until the record is resolved. The prompted set is keyed by durable
// key, not surrogate ref, so it survives snapshot refreshes.
type Dispatcher struct {
	mu   sync.Mutex
	tr   transport.Transport
	sent map[record.Key]transport.Handle
}

func NewDispatcher(tr transport.Transport) *Dispatcher {
	return &Dispatcher{tr: tr, sent: make(map[record.Key]transport.Handle)}
}

// Text renders the decision prompt for a record.
func Text(r record.Record) string {
	return fmt.Sprintf("%s | %s\n\n%s", r.ScheduledAt, r.Platform, r.Content)
}

// FinalText renders the resolved form a prompt is rewritten to.
func FinalText(r record.Record, v record.Verdict) string {
	switch v {
	case record.VerdictApprove:
		return fmt.Sprintf("✅ Approved: %s | %s", r.ScheduledAt, r.Platform)
	default:
		return fmt.Sprintf("❌ Rejected: %s | %s", r.ScheduledAt, r.Platform)
	}
}

// Dispatch sends prompts for snapshot entries not yet prompted and returns
// how many went out. With force set, every entry is (re-)sent and its
// stored handle replaced; this backs the explicit /pending re-list.
//
// Keys prompted earlier but absent from this snapshot are dropped from the
// prompted set: the record left Pending outside a local decision, and if it
// ever reverts, it is prompted again as a new candidate.
//
// Send failures do not abort the pass; remaining entries are still
// attempted and the first failure is reported. A failed entry stays out of
// the prompted set so the next cycle retries it.
func (d *Dispatcher) Dispatch(ctx context.Context, snap *snapshot.Snapshot, force bool) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	live := make(map[record.Key]struct{}, snap.Len())
	for _, e := range snap.Entries() {
		live[e.Key] = struct{}{}
	}
	for k := range d.sent {
		if _, ok := live[k]; !ok {
			delete(d.sent, k)
		}
	}

	var firstErr error
	n := 0
	for _, e := range snap.Entries() {
		if _, done := d.sent[e.Key]; done && !force {
			continue
		}
		h, err := d.tr.SendPrompt(ctx, transport.Prompt{Ref: e.Ref.String(), Text: Text(e.Rec)})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("dispatch prompt for %s: %w", e.Key, err)
			}
			continue
		}
		d.sent[e.Key] = h
		n++
	}
	return n, firstErr
}

// Prompted reports whether a key currently awaits resolution.
func (d *Dispatcher) Prompted(k record.Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sent[k]
	return ok
}

// Resolve removes a key from the prompted set and returns its prompt
// handle so the caller can rewrite the prompt UI.
func (d *Dispatcher) Resolve(k record.Key) (transport.Handle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.sent[k]
	if ok {
		delete(d.sent, k)
	}
	return h, ok
}

// Pending reports the number of unresolved prompts.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}
