package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modqueue/modq/internal/record"
	"github.com/modqueue/modq/internal/snapshot"
	"github.com/modqueue/modq/internal/store"
	"github.com/modqueue/modq/internal/transport"
)

func pending(id, content, platform, date string) record.Record {
	return record.Record{NativeID: id, Content: content, Platform: platform, ScheduledAt: date, Status: record.StatusPending}
}

func newTestEngine(t *testing.T, recs ...record.Record) (*Engine, *store.Memory, *transport.Memory) {
	t.Helper()
	st := store.NewMemory(store.Config{})
	st.Seed(recs...)
	tr := transport.NewMemory()
	eng, err := New(st, tr, Options{
		Schedule:      "@every 1h",
		StoreTimeout:  time.Second,
		WriteRetries:  3,
		RetryInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng, st, tr
}

func TestCycleDispatchesOncePerRecord(t *testing.T) {
	eng, _, tr := newTestEngine(t,
		pending("a", "first", "x", "2025-07-01"),
		pending("b", "second", "x", "2025-07-02"),
	)
	ctx := context.Background()
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if tr.SentCount() != 2 {
		t.Fatalf("want 2 prompts, got %d", tr.SentCount())
	}
	// Unchanged pending set: a second cycle must not re-notify.
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if tr.SentCount() != 2 {
		t.Fatalf("second cycle re-notified: %d prompts", tr.SentCount())
	}
}

func TestDecideEndToEnd(t *testing.T) {
	eng, st, tr := newTestEngine(t,
		pending("a", "first", "x", "2025-07-01"),
		pending("b", "second", "x", "2025-07-02"),
	)
	ctx := context.Background()
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}

	snap := eng.Snapshot()
	var entryA snapshot.Entry
	for _, e := range snap.Entries() {
		if e.Rec.NativeID == "a" {
			entryA = e
		}
	}

	if _, err := eng.Decide(ctx, entryA.Ref, record.VerdictApprove); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got, _ := st.StatusOf(entryA.Rec); got != record.StatusApproved {
		t.Fatalf("store shows %s", got)
	}
	if got, _ := st.StatusOf(record.Record{NativeID: "b"}); got != record.StatusPending {
		t.Fatalf("unrelated record touched: %s", got)
	}

	// The prompt was rewritten to its resolved form.
	resolved := false
	for h := range tr.Sent() {
		if text, ok := tr.FinalText(h); ok && strings.Contains(text, "Approved") {
			resolved = true
		}
	}
	if !resolved {
		t.Fatalf("prompt not marked resolved")
	}

	// Second click: no write, explicit no-op.
	if _, err := eng.Decide(ctx, entryA.Ref, record.VerdictApprove); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("duplicate decide: %v", err)
	}
	if got, _ := st.StatusOf(entryA.Rec); got != record.StatusApproved {
		t.Fatalf("store changed by duplicate decide: %s", got)
	}
}

func TestDecideStaleRefAfterRefresh(t *testing.T) {
	eng, _, _ := newTestEngine(t, pending("a", "first", "x", "2025-07-01"))
	ctx := context.Background()
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	stale := eng.Snapshot().Entries()[0].Ref

	// Same record still pending, but the snapshot moved on.
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Decide(ctx, stale, record.VerdictApprove); !errors.Is(err, ErrStaleReference) {
		t.Fatalf("stale ref accepted: %v", err)
	}
}

func TestDecidePositionIndependent(t *testing.T) {
	eng, st, _ := newTestEngine(t, pending("", "original", "x", "2025-07-01"))
	ctx := context.Background()
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	entry := eng.Snapshot().Entries()[0]

	// A new pending record lands ahead of the prompted one, shifting its
	// position in the store.
	st.InsertAt(0, pending("", "newcomer", "x", "2025-06-30"))

	if _, err := eng.Decide(ctx, entry.Ref, record.VerdictReject); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got, _ := st.StatusOf(entry.Rec); got != record.StatusRejected {
		t.Fatalf("prompted record shows %s", got)
	}
	newcomer := record.Record{Content: "newcomer", Platform: "x", ScheduledAt: "2025-06-30"}
	if got, _ := st.StatusOf(newcomer); got != record.StatusPending {
		t.Fatalf("newcomer was written instead: %s", got)
	}
}

func TestConcurrentDecidesOneWins(t *testing.T) {
	eng, st, _ := newTestEngine(t, pending("a", "contested", "x", "2025-07-01"))
	ctx := context.Background()
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	entry := eng.Snapshot().Entries()[0]

	var wg sync.WaitGroup
	errs := make([]error, 2)
	verdicts := []record.Verdict{record.VerdictApprove, record.VerdictReject}
	for i := range verdicts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Decide(ctx, entry.Ref, verdicts[i])
		}(i)
	}
	wg.Wait()

	var okCount, dupCount int
	var winner record.Verdict
	for i, err := range errs {
		switch {
		case err == nil:
			okCount++
			winner = verdicts[i]
		case errors.Is(err, ErrAlreadyResolved):
			dupCount++
		default:
			t.Fatalf("unexpected decide error: %v", err)
		}
	}
	if okCount != 1 || dupCount != 1 {
		t.Fatalf("want exactly one winner, got ok=%d dup=%d", okCount, dupCount)
	}
	want, _ := winner.Status()
	if got, _ := st.StatusOf(entry.Rec); got != want {
		t.Fatalf("store shows %s, winner was %s", got, winner)
	}
}

func TestWriteRetriesOnTransientFailure(t *testing.T) {
	eng, st, _ := newTestEngine(t, pending("a", "flaky", "x", "2025-07-01"))
	ctx := context.Background()
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	entry := eng.Snapshot().Entries()[0]

	st.FailNext(2)
	if _, err := eng.Decide(ctx, entry.Ref, record.VerdictApprove); err != nil {
		t.Fatalf("decide should have survived 2 transient failures: %v", err)
	}
	if got, _ := st.StatusOf(entry.Rec); got != record.StatusApproved {
		t.Fatalf("store shows %s", got)
	}
}

func TestWriteGivesUpAfterBoundedRetries(t *testing.T) {
	eng, st, _ := newTestEngine(t, pending("a", "down", "x", "2025-07-01"))
	ctx := context.Background()
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	entry := eng.Snapshot().Entries()[0]

	st.FailNext(10)
	if _, err := eng.Decide(ctx, entry.Ref, record.VerdictApprove); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
	// The prompt stays actionable: once the store recovers, the same ref
	// still works.
	st.FailNext(0)
	st.Seed(pending("a", "down", "x", "2025-07-01"))
	if _, err := eng.Decide(ctx, entry.Ref, record.VerdictApprove); err != nil {
		t.Fatalf("decide after recovery: %v", err)
	}
}

func TestFetchFailureSkipsCycle(t *testing.T) {
	eng, st, tr := newTestEngine(t, pending("a", "first", "x", "2025-07-01"))
	st.FailNext(1)
	ctx := context.Background()
	if err := eng.Cycle(ctx); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("want fetch failure, got %v", err)
	}
	// Next cycle retries unconditionally and succeeds.
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if tr.SentCount() != 1 {
		t.Fatalf("want 1 prompt after recovery, got %d", tr.SentCount())
	}
}

func TestDuplicateKeysSurfacedNotMerged(t *testing.T) {
	eng, _, tr := newTestEngine(t,
		pending("", "twin", "x", "2025-07-01"),
		pending("", "twin", "x", "2025-07-01"),
	)
	ctx := context.Background()
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if tr.SentCount() != 0 {
		t.Fatalf("colliding records were prompted")
	}
	notices := tr.Notices()
	if len(notices) != 1 {
		t.Fatalf("want 1 duplicate notice, got %d", len(notices))
	}
	// Repeated cycles do not repeat the notice.
	if err := eng.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if len(tr.Notices()) != 1 {
		t.Fatalf("duplicate notice repeated")
	}
}

func TestDecisionEventsViaTransport(t *testing.T) {
	eng, st, tr := newTestEngine(t, pending("a", "first", "x", "2025-07-01"))
	if err := eng.Start(); err != nil {
		t.Fatal(err)
	}
	defer eng.Stop()

	waitFor(t, func() bool { return tr.SentCount() == 1 })
	var ref string
	for _, p := range tr.Sent() {
		ref = p.Ref
	}

	tr.PushDecision(transport.Decision{Ref: ref, Verdict: record.VerdictApprove})
	waitFor(t, func() bool {
		got, _ := st.StatusOf(record.Record{NativeID: "a"})
		return got == record.StatusApproved
	})

	// A stale replay of the same event yields an operator notice, not a
	// second write.
	tr.PushDecision(transport.Decision{Ref: ref, Verdict: record.VerdictReject})
	waitFor(t, func() bool { return len(tr.Notices()) == 1 })
	if got, _ := st.StatusOf(record.Record{NativeID: "a"}); got != record.StatusApproved {
		t.Fatalf("replayed decision changed the store: %s", got)
	}
}

func TestListCommandResendsPrompts(t *testing.T) {
	eng, _, tr := newTestEngine(t, pending("a", "first", "x", "2025-07-01"))
	if err := eng.Start(); err != nil {
		t.Fatal(err)
	}
	defer eng.Stop()

	waitFor(t, func() bool { return tr.SentCount() == 1 })
	tr.PushList()
	waitFor(t, func() bool { return tr.SentCount() == 2 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within deadline")
}
