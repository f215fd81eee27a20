package store

import (
	"context"
	"testing"
	"time"

	"github.com/Elore26/assistant/internal/config"
	"github.com/Elore26/assistant/internal/guardrail"
	"github.com/Elore26/assistant/internal/signal"
	"github.com/Elore26/assistant/internal/types"
)

func TestOpen_DriverSelection(t *testing.T) {
	s, err := Open(config.StoreConfig{Driver: "memory"}, nil)
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("got %T, want *Memory", s)
	}

	if _, err := Open(config.StoreConfig{Driver: "sqlite"}, nil); err == nil {
		t.Error("unknown driver should fail")
	}

	s, err = Open(config.StoreConfig{}, nil)
	if err != nil {
		t.Fatalf("Open default: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("empty driver should default to memory, got %T", s)
	}
}

func TestMemory_BudgetLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	b, err := m.LoadBudget(ctx, "career", "2026-08-29")
	if err != nil {
		t.Fatalf("LoadBudget: %v", err)
	}
	if b != nil {
		t.Fatal("missing budget should load as nil")
	}

	b, err = m.ApplyUsage(ctx, "career", "2026-08-29", guardrail.UsageDelta{
		Tokens: 1000, ToolCalls: 2, Runs: 1, Cost: 0.01,
	})
	if err != nil {
		t.Fatalf("ApplyUsage: %v", err)
	}
	if b.TokensUsed != 1000 || b.Runs != 1 {
		t.Errorf("first apply: %+v", b)
	}

	b, err = m.ApplyUsage(ctx, "career", "2026-08-29", guardrail.UsageDelta{
		Tokens: 500, ToolCalls: 1, Runs: 1, Cost: 0.005, ConsecutiveFailures: 1,
	})
	if err != nil {
		t.Fatalf("ApplyUsage: %v", err)
	}
	if b.TokensUsed != 1500 || b.ToolCalls != 3 || b.Runs != 2 {
		t.Errorf("additive apply: %+v", b)
	}
	if b.ConsecutiveFailures != 1 {
		t.Errorf("failures are absolute, got %d", b.ConsecutiveFailures)
	}

	// Different date is a fresh row.
	b, _ = m.LoadBudget(ctx, "career", "2026-08-30")
	if b != nil {
		t.Error("next day should start empty")
	}

	if err := m.SetBreaker(ctx, "career", "2026-08-29", true, 3); err != nil {
		t.Fatalf("SetBreaker: %v", err)
	}
	b, _ = m.LoadBudget(ctx, "career", "2026-08-29")
	if !b.CircuitBroken || b.ConsecutiveFailures != 3 {
		t.Errorf("after SetBreaker: %+v", b)
	}
}

func TestMemory_SignalQueryFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	insert := func(id, typ, source, target string, priority int, createdAt, expiresAt time.Time, consumed bool) {
		m.InsertSignal(ctx, &signal.Signal{
			ID: id, Type: typ, Source: source, Target: target,
			Priority: priority, CreatedAt: createdAt, ExpiresAt: expiresAt, Consumed: consumed,
		})
	}
	insert("a", "alert", "finance", "", signal.PriorityCritical, now.Add(-time.Hour), now.Add(time.Hour), false)
	insert("b", "status", "career", "career", signal.PriorityInfo, now.Add(-2*time.Hour), now.Add(time.Hour), false)
	insert("c", "status", "career", "health", signal.PriorityInfo, now.Add(-time.Hour), now.Add(time.Hour), false)
	insert("d", "status", "career", "", signal.PriorityInfo, now.Add(-time.Hour), now.Add(-time.Minute), false)
	insert("e", "status", "career", "", signal.PriorityInfo, now.Add(-time.Hour), now.Add(time.Hour), true)
	// Expires at exactly Now: already invisible, same as expires_at > now in SQL.
	insert("f", "status", "career", "", signal.PriorityInfo, now.Add(-time.Hour), now, false)

	base := signal.Query{Agent: "career", Since: now.Add(-24 * time.Hour), Now: now}

	got, err := m.QuerySignals(ctx, base)
	if err != nil {
		t.Fatalf("QuerySignals: %v", err)
	}
	// a (broadcast), b (targeted); not c (other target), d (expired),
	// e (consumed), f (expiring at exactly Now).
	if len(got) != 2 {
		t.Fatalf("got %d signals: %+v", len(got), got)
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("expected newest first [a b], got [%s %s]", got[0].ID, got[1].ID)
	}

	q := base
	q.IncludeConsumed = true
	if got, _ := m.QuerySignals(ctx, q); len(got) != 3 {
		t.Errorf("IncludeConsumed: got %d, want 3", len(got))
	}

	q = base
	q.Types = []string{"alert"}
	if got, _ := m.QuerySignals(ctx, q); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("type filter: %+v", got)
	}

	q = base
	q.MinPriority = signal.PriorityCritical
	if got, _ := m.QuerySignals(ctx, q); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("priority filter: %+v", got)
	}

	q = base
	q.Source = "finance"
	if got, _ := m.QuerySignals(ctx, q); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("source filter: %+v", got)
	}

	q = base
	q.Limit = 1
	if got, _ := m.QuerySignals(ctx, q); len(got) != 1 {
		t.Errorf("limit: got %d", len(got))
	}

	if err := m.MarkConsumed(ctx, []string{"a"}); err != nil {
		t.Fatalf("MarkConsumed: %v", err)
	}
	if got, _ := m.QuerySignals(ctx, base); len(got) != 1 || got[0].ID != "b" {
		t.Errorf("after consume: %+v", got)
	}
}

func TestMemory_RunAudit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.InsertRun(ctx, types.AgentResult{
		Agent: "career", Task: "daily check", Success: true, TotalLoops: 2,
	})
	if err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
	runs := m.Runs()
	if len(runs) != 1 || runs[0].Agent != "career" {
		t.Errorf("runs = %+v", runs)
	}
}
