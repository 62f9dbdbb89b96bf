// Package engine ties the approval queue together: a poll loop snapshots
// pending records from the store, prompts the operator once per record, and
// applies decisions back idempotently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modqueue/modq/internal/metrics"
	"github.com/modqueue/modq/internal/prompt"
	"github.com/modqueue/modq/internal/record"
	"github.com/modqueue/modq/internal/snapshot"
	"github.com/modqueue/modq/internal/store"
	"github.com/modqueue/modq/internal/transport"
)

var (
	// ErrStaleReference marks a decision that referenced a superseded
	// snapshot. The operator has to re-list pending items; the decision is
	// never applied to whatever record now occupies the slot.
	ErrStaleReference = errors.New("prompt reference is stale")
	// ErrAlreadyResolved marks a duplicate decision attempt. The store was
	// not written again; the earlier outcome stands.
	ErrAlreadyResolved = errors.New("record already resolved")
)

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	Schedule      string        // "@every <duration>", default "@every 5m"
	StoreTimeout  time.Duration // per store call, default 10s
	WriteRetries  int           // write-back attempts on ErrUnavailable, default 3
	RetryInterval time.Duration // pause between attempts, default 2s
	Logger        *slog.Logger
}

// Engine runs one poll timeline and one decision handler against a shared
// snapshot cache and prompted set.
type Engine struct {
	st     store.Adapter
	tr     transport.Transport
	cache  *snapshot.Cache
	disp   *prompt.Dispatcher
	logger *slog.Logger

	period        time.Duration
	storeTimeout  time.Duration
	writeRetries  int
	retryInterval time.Duration

	// cycling enforces non-overlap: a tick that fires while the previous
	// cycle still runs is skipped, never queued.
	cycling atomic.Bool
	// decideMu serializes decisions so two verdicts for the same record
	// race on the store's conditional write exactly once.
	decideMu sync.Mutex

	dupMu   sync.Mutex
	dupSeen map[record.Key]struct{}

	quit chan struct{}
	done chan struct{}
}

func New(st store.Adapter, tr transport.Transport, opts Options) (*Engine, error) {
	if opts.Schedule == "" {
		opts.Schedule = "@every 5m"
	}
	period, err := ParseEvery(opts.Schedule)
	if err != nil {
		return nil, err
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.WriteRetries < 1 {
		opts.WriteRetries = 3
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		st:            st,
		tr:            tr,
		cache:         snapshot.NewCache(),
		disp:          prompt.NewDispatcher(tr),
		logger:        opts.Logger,
		period:        period,
		storeTimeout:  opts.StoreTimeout,
		writeRetries:  opts.WriteRetries,
		retryInterval: opts.RetryInterval,
		dupSeen:       make(map[record.Key]struct{}),
	}, nil
}

// Start launches the poll loop and the decision consumer. Call Stop to end.
func (e *Engine) Start() error {
	if e.quit != nil {
		return errors.New("engine already started")
	}
	e.quit = make(chan struct{})
	e.done = make(chan struct{})
	go e.run()
	return nil
}

func (e *Engine) Stop() {
	if e.quit == nil {
		return
	}
	close(e.quit)
	<-e.done
	e.quit = nil
}

func (e *Engine) run() {
	defer close(e.done)
	t := time.NewTicker(e.period)
	defer t.Stop()

	ctx := context.Background()
	if err := e.Cycle(ctx); err != nil {
		e.logger.Warn("initial poll cycle failed", "error", err)
	}
	for {
		select {
		case <-e.quit:
			return
		case <-t.C:
			if err := e.Cycle(ctx); err != nil {
				// Missed cycle: report and keep the scheduler alive, the
				// next tick retries unconditionally.
				e.logger.Warn("poll cycle failed", "error", err)
			}
		case d, ok := <-e.tr.Decisions():
			if !ok {
				return
			}
			e.handleDecision(ctx, d)
		case c, ok := <-e.tr.Commands():
			if !ok {
				return
			}
			if c.Kind == transport.CommandList {
				if err := e.Relist(ctx); err != nil {
					e.logger.Warn("re-list failed", "error", err)
				}
			}
		}
	}
}

// Cycle runs one fetch → resolve → refresh → dispatch sequence. Prompts go
// out only for records not already prompted.
func (e *Engine) Cycle(ctx context.Context) error {
	return e.cycle(ctx, false)
}

// Relist re-fetches and re-sends prompts for every currently pending
// record, the /pending command. Prompted bookkeeping is replaced by the
// fresh handles.
func (e *Engine) Relist(ctx context.Context) error {
	if err := e.cycle(ctx, true); err != nil {
		return err
	}
	if snap := e.cache.Current(); snap != nil && snap.Len() == 0 {
		if err := e.tr.Notify(ctx, "No posts pending approval."); err != nil {
			e.logger.Warn("notify failed", "error", err)
		}
	}
	return nil
}

func (e *Engine) cycle(ctx context.Context, force bool) error {
	if !e.cycling.CompareAndSwap(false, true) {
		e.logger.Debug("poll cycle still running, tick skipped")
		return nil
	}
	defer e.cycling.Store(false)

	fctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	recs, err := e.st.FetchPending(fctx)
	cancel()
	if err != nil {
		metrics.PollCycle("fetch_error")
		return fmt.Errorf("fetch pending: %w", err)
	}

	snap := e.cache.Refresh(recs)
	metrics.SetPending(snap.Len())
	metrics.SetDuplicateKeys(len(snap.Duplicates()))
	e.reportDuplicates(ctx, snap)

	n, err := e.disp.Dispatch(ctx, snap, force)
	metrics.PromptsSent(n)
	if err != nil {
		metrics.PollCycle("dispatch_error")
		return fmt.Errorf("dispatch prompts: %w", err)
	}
	metrics.PollCycle("ok")
	e.logger.Info("poll cycle complete",
		"gen", snap.Gen(), "pending", snap.Len(),
		"prompted", n, "duplicates", len(snap.Duplicates()))
	return nil
}

// reportDuplicates surfaces key collisions to the operator once per key.
// The colliding records stay out of the snapshot until the store is fixed.
func (e *Engine) reportDuplicates(ctx context.Context, snap *snapshot.Snapshot) {
	for i := range snap.Duplicates() {
		d := &snap.Duplicates()[i]
		e.dupMu.Lock()
		_, seen := e.dupSeen[d.Key]
		if !seen {
			e.dupSeen[d.Key] = struct{}{}
		}
		e.dupMu.Unlock()
		if seen {
			continue
		}
		e.logger.Warn("duplicate durable key, records excluded from prompting",
			"key", d.Key, "count", len(d.Records))
		text := fmt.Sprintf("⚠️ %d pending posts share the same identity (%s | %s) and were excluded until the sheet is fixed.",
			len(d.Records), d.Records[0].ScheduledAt, d.Records[0].Platform)
		if err := e.tr.Notify(ctx, text); err != nil {
			e.logger.Warn("notify failed", "error", err)
		}
	}
}

// Decide applies an operator verdict. The surrogate ref must belong to the
// current snapshot and the record must still be pending in the store; the
// write is a conditional pending→verdict transition, so a second decision
// for the same record observes ErrAlreadyResolved instead of overwriting.
func (e *Engine) Decide(ctx context.Context, ref snapshot.Ref, v record.Verdict) (snapshot.Entry, error) {
	to, ok := v.Status()
	if !ok {
		return snapshot.Entry{}, fmt.Errorf("unknown verdict %q", v)
	}

	e.decideMu.Lock()
	defer e.decideMu.Unlock()

	entry, err := e.cache.Resolve(ref)
	if err != nil {
		metrics.Decision(string(v), "stale")
		return snapshot.Entry{}, fmt.Errorf("%w: %v", ErrStaleReference, err)
	}

	switch err := e.writeStatus(ctx, entry.Rec, to); {
	case err == nil:
	case errors.Is(err, store.ErrConflict):
		metrics.Decision(string(v), "already_resolved")
		return entry, fmt.Errorf("%w: %v", ErrAlreadyResolved, err)
	case errors.Is(err, store.ErrNotFound):
		// The record left the store between snapshot and decision.
		metrics.Decision(string(v), "stale")
		return entry, fmt.Errorf("%w: %v", ErrStaleReference, err)
	default:
		// Transient store failure: the prompt stays actionable.
		metrics.Decision(string(v), "store_error")
		return entry, err
	}

	if h, prompted := e.disp.Resolve(entry.Key); prompted {
		if err := e.tr.UpdatePrompt(ctx, h, prompt.FinalText(entry.Rec, v)); err != nil {
			e.logger.Warn("prompt update failed", "key", entry.Key, "error", err)
		}
	}
	metrics.Decision(string(v), "ok")
	e.logger.Info("decision applied", "key", entry.Key, "verdict", v)
	return entry, nil
}

// writeStatus performs the bounded-retry conditional write-back.
func (e *Engine) writeStatus(ctx context.Context, rec record.Record, to record.Status) error {
	var err error
	for attempt := 1; ; attempt++ {
		wctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
		err = e.st.WriteStatus(wctx, rec, record.StatusPending, to)
		cancel()
		if err == nil || !errors.Is(err, store.ErrUnavailable) || attempt >= e.writeRetries {
			return err
		}
		metrics.StoreRetry()
		e.logger.Warn("write-back failed, retrying",
			"attempt", attempt, "of", e.writeRetries, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(e.retryInterval):
		}
	}
}

func (e *Engine) handleDecision(ctx context.Context, d transport.Decision) {
	ref, err := snapshot.ParseRef(d.Ref)
	if err != nil {
		e.logger.Warn("decision with malformed ref", "ref", d.Ref, "error", err)
		return
	}
	_, err = e.Decide(ctx, ref, d.Verdict)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyResolved):
		e.notify(ctx, "Already resolved — nothing changed.")
	case errors.Is(err, ErrStaleReference):
		e.notify(ctx, "That prompt is out of date. Use /pending to re-list.")
	default:
		e.logger.Warn("decision failed", "ref", d.Ref, "error", err)
		e.notify(ctx, "Could not reach the store, please try again.")
	}
}

func (e *Engine) notify(ctx context.Context, text string) {
	if err := e.tr.Notify(ctx, text); err != nil {
		e.logger.Warn("notify failed", "error", err)
	}
}

// Snapshot returns the current snapshot, nil before the first cycle.
func (e *Engine) Snapshot() *snapshot.Snapshot { return e.cache.Current() }

// PromptedCount reports unresolved prompts.
func (e *Engine) PromptedCount() int { return e.disp.Pending() }

// Period returns the configured poll period.
func (e *Engine) Period() time.Duration { return e.period }
