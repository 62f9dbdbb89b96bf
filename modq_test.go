package modq

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/modqueue/modq/internal/engine"
	"github.com/modqueue/modq/internal/store"
	"github.com/modqueue/modq/internal/transport"
)

func TestFacadeEndToEnd(t *testing.T) {
	st, err := NewStore(StoreConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	mem := st.(*store.Memory)
	mem.Seed(Record{NativeID: "a", Content: "hello", Platform: "x", ScheduledAt: "2025-07-01", Status: StatusPending})

	tr, err := NewTransport(TransportConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("transport: %v", err)
	}

	eng, err := NewEngine(st, tr, Options{Schedule: "@every 1h"})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	ctx := context.Background()
	if err := eng.Cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := tr.(*transport.Memory).SentCount(); got != 1 {
		t.Fatalf("want 1 prompt, got %d", got)
	}

	ref := eng.Snapshot().Entries()[0].Ref
	if _, err := eng.Decide(ctx, ref, VerdictApprove); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got, _ := mem.StatusOf(Record{NativeID: "a"}); got != StatusApproved {
		t.Fatalf("store shows %s", got)
	}
	if _, err := eng.Decide(ctx, ref, VerdictReject); !errors.Is(err, engine.ErrAlreadyResolved) {
		t.Fatalf("replay: %v", err)
	}
}

func TestParseRefFacade(t *testing.T) {
	r, err := ParseRef("4-2")
	if err != nil {
		t.Fatal(err)
	}
	if r.Gen != 4 || r.Seq != 2 {
		t.Fatalf("parsed %+v", r)
	}
	if _, err := ParseRef("nope"); err == nil {
		t.Fatalf("malformed ref accepted")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Schedule != "@every 5m" || cfg.Store.Type != "sqlite" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestRegisterMetricsFacade(t *testing.T) {
	if err := RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatal(err)
	}
}
