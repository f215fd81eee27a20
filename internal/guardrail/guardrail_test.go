package guardrail

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Elore26/assistant/internal/config"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]*Budget
	failing bool
	applies int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*Budget)}
}

func (s *fakeStore) LoadBudget(ctx context.Context, agent, date string) (*Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errors.New("store unavailable")
	}
	b, ok := s.rows[agent+"|"+date]
	if !ok {
		return nil, nil
	}
	copy := *b
	return &copy, nil
}

func (s *fakeStore) ApplyUsage(ctx context.Context, agent, date string, d UsageDelta) (*Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errors.New("store unavailable")
	}
	s.applies++
	key := agent + "|" + date
	b, ok := s.rows[key]
	if !ok {
		b = &Budget{Agent: agent, Date: date}
		s.rows[key] = b
	}
	b.TokensUsed += d.Tokens
	b.ToolCalls += d.ToolCalls
	b.Runs += d.Runs
	b.EstimatedCost += d.Cost
	b.ConsecutiveFailures = d.ConsecutiveFailures
	b.CircuitBroken = d.CircuitBroken
	b.BrokenAt = d.BrokenAt
	copy := *b
	return &copy, nil
}

func (s *fakeStore) SetBreaker(ctx context.Context, agent, date string, broken bool, failures int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("store unavailable")
	}
	key := agent + "|" + date
	b, ok := s.rows[key]
	if !ok {
		b = &Budget{Agent: agent, Date: date}
		s.rows[key] = b
	}
	b.CircuitBroken = broken
	b.ConsecutiveFailures = failures
	return nil
}

type alertRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *alertRecorder) record(ctx context.Context, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *alertRecorder) containing(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.messages {
		if strings.Contains(m, substr) {
			count++
		}
	}
	return count
}

func testConfig() config.GuardrailConfig {
	return config.GuardrailConfig{
		MaxTokensPerDay:         10_000,
		MaxToolCallsPerRun:      15,
		MaxLoopsPerRun:          8,
		MaxRunsPerDay:           3,
		MaxCostPerDay:           1.0,
		CircuitBreakerThreshold: 3,
		BlockedTools:            []string{"delete_everything"},
		GatedTools:              []string{"send_money"},
	}
}

func TestCanRun_AllowsFreshAgent(t *testing.T) {
	e := NewEngine(testConfig(), newFakeStore(), nil)
	d := e.CanRun(context.Background(), "career")
	if !d.Allowed {
		t.Fatalf("expected fresh agent to be allowed, got reason %q", d.Reason)
	}
}

func TestCanRun_DenialOrder(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(e *Engine, s *fakeStore)
		wantReason string
	}{
		{
			name: "kill switch beats everything",
			setup: func(e *Engine, s *fakeStore) {
				s.rows["career|2026-08-29"] = &Budget{Agent: "career", Date: "2026-08-29", Runs: 99, CircuitBroken: true}
				e.ActivateKillSwitch(context.Background())
			},
			wantReason: "kill switch",
		},
		{
			name: "open circuit beats exhausted budget",
			setup: func(e *Engine, s *fakeStore) {
				s.rows["career|2026-08-29"] = &Budget{Agent: "career", Date: "2026-08-29", Runs: 99, TokensUsed: 99_999, CircuitBroken: true, ConsecutiveFailures: 3}
			},
			wantReason: "circuit breaker",
		},
		{
			name: "run limit beats token budget",
			setup: func(e *Engine, s *fakeStore) {
				s.rows["career|2026-08-29"] = &Budget{Agent: "career", Date: "2026-08-29", Runs: 3, TokensUsed: 99_999}
			},
			wantReason: "run limit",
		},
		{
			name: "token budget beats cost budget",
			setup: func(e *Engine, s *fakeStore) {
				s.rows["career|2026-08-29"] = &Budget{Agent: "career", Date: "2026-08-29", TokensUsed: 10_000, EstimatedCost: 5}
			},
			wantReason: "token budget",
		},
		{
			name: "cost budget checked last",
			setup: func(e *Engine, s *fakeStore) {
				s.rows["career|2026-08-29"] = &Budget{Agent: "career", Date: "2026-08-29", EstimatedCost: 1.0}
			},
			wantReason: "cost budget",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
			e := NewEngine(testConfig(), store, nil, WithClock(func() time.Time { return fixed }))
			tt.setup(e, store)

			d := e.CanRun(context.Background(), "career")
			if d.Allowed {
				t.Fatal("expected denial")
			}
			if !strings.Contains(d.Reason, tt.wantReason) {
				t.Errorf("reason %q does not mention %q", d.Reason, tt.wantReason)
			}
		})
	}
}

func TestCanUseTool(t *testing.T) {
	e := NewEngine(testConfig(), newFakeStore(), nil)

	if d := e.CanUseTool("delete_everything"); d.Allowed {
		t.Error("blocked tool must be denied")
	}
	if d := e.CanUseTool("send_money"); !d.Allowed || !d.NeedsApproval {
		t.Errorf("gated tool: got allowed=%v needsApproval=%v, want true/true", d.Allowed, d.NeedsApproval)
	}
	if d := e.CanUseTool("read_budget"); !d.Allowed || d.NeedsApproval {
		t.Errorf("plain tool: got allowed=%v needsApproval=%v, want true/false", d.Allowed, d.NeedsApproval)
	}
}

func TestRecordUsage_Accumulates(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(testConfig(), store, nil)
	ctx := context.Background()

	e.RecordUsage(ctx, "career", 1000, 2, "gpt-4o-mini", true)
	e.RecordUsage(ctx, "career", 500, 1, "gpt-4o-mini", true)

	b := e.BudgetFor(ctx, "career")
	if b.TokensUsed != 1500 {
		t.Errorf("TokensUsed = %d, want 1500", b.TokensUsed)
	}
	if b.ToolCalls != 3 {
		t.Errorf("ToolCalls = %d, want 3", b.ToolCalls)
	}
	if b.Runs != 2 {
		t.Errorf("Runs = %d, want 2", b.Runs)
	}
	wantCost := CostFor("gpt-4o-mini", 1500)
	if diff := b.EstimatedCost - wantCost; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("EstimatedCost = %f, want %f", b.EstimatedCost, wantCost)
	}
	if store.applies != 2 {
		t.Errorf("store applies = %d, want 2", store.applies)
	}
}

func TestRecordUsage_FailedRunStillCounts(t *testing.T) {
	e := NewEngine(testConfig(), newFakeStore(), nil)
	ctx := context.Background()

	e.RecordUsage(ctx, "career", 800, 1, "gpt-4o-mini", false)

	b := e.BudgetFor(ctx, "career")
	if b.TokensUsed != 800 || b.Runs != 1 {
		t.Errorf("failed run must still accumulate: tokens=%d runs=%d", b.TokensUsed, b.Runs)
	}
	if b.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", b.ConsecutiveFailures)
	}
}

func TestCircuitBreaker_TripAndManualReset(t *testing.T) {
	store := newFakeStore()
	alerts := &alertRecorder{}
	e := NewEngine(testConfig(), store, nil, WithAlertFunc(alerts.record))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e.RecordUsage(ctx, "career", 100, 0, "gpt-4o-mini", false)
	}

	b := e.BudgetFor(ctx, "career")
	if !b.CircuitBroken {
		t.Fatal("circuit should be open after 3 consecutive failures")
	}
	if alerts.containing("circuit breaker tripped") != 1 {
		t.Errorf("trip alert count = %d, want 1", alerts.containing("circuit breaker tripped"))
	}
	if d := e.CanRun(ctx, "career"); d.Allowed {
		t.Fatal("open circuit must deny runs")
	}

	// Time passing never closes the circuit under ManualReset.
	if d := e.CanRun(ctx, "career"); d.Allowed {
		t.Fatal("circuit must stay open without an explicit reset")
	}

	e.ResetCircuitBreaker(ctx, "career")
	b = e.BudgetFor(ctx, "career")
	if b.CircuitBroken {
		t.Error("reset must close the circuit")
	}
	if b.ConsecutiveFailures != 0 {
		t.Errorf("reset must clear failures, got %d", b.ConsecutiveFailures)
	}
	if d := e.CanRun(ctx, "career"); !d.Allowed {
		t.Errorf("run should be allowed after reset, got %q", d.Reason)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	e := NewEngine(testConfig(), newFakeStore(), nil)
	ctx := context.Background()

	e.RecordUsage(ctx, "career", 100, 0, "gpt-4o-mini", false)
	e.RecordUsage(ctx, "career", 100, 0, "gpt-4o-mini", false)
	e.RecordUsage(ctx, "career", 100, 0, "gpt-4o-mini", true)
	e.RecordUsage(ctx, "career", 100, 0, "gpt-4o-mini", false)

	b := e.BudgetFor(ctx, "career")
	if b.CircuitBroken {
		t.Error("non-consecutive failures must not trip the breaker")
	}
	if b.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", b.ConsecutiveFailures)
	}
}

func TestAlertThresholds_FireOnceOnCrossing(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTokensPerDay = 1000
	alerts := &alertRecorder{}
	e := NewEngine(cfg, newFakeStore(), nil, WithAlertFunc(alerts.record))
	ctx := context.Background()

	e.RecordUsage(ctx, "career", 800, 0, "gpt-4o-mini", true)
	if got := alerts.containing("daily tokens"); got != 0 {
		t.Fatalf("alert fired below 90%% threshold: %d", got)
	}
	e.RecordUsage(ctx, "career", 150, 0, "gpt-4o-mini", true)
	if got := alerts.containing("daily tokens"); got != 1 {
		t.Fatalf("token alert count = %d, want 1", got)
	}
	e.RecordUsage(ctx, "career", 10, 0, "gpt-4o-mini", true)
	if got := alerts.containing("daily tokens"); got != 1 {
		t.Errorf("token alert must not repeat after crossing, got %d", got)
	}
}

func TestKillSwitch_LifecycleAndAlerts(t *testing.T) {
	alerts := &alertRecorder{}
	e := NewEngine(testConfig(), newFakeStore(), nil, WithAlertFunc(alerts.record))
	ctx := context.Background()

	e.ActivateKillSwitch(ctx)
	if !e.KillSwitchActive() {
		t.Fatal("kill switch should be active")
	}
	if d := e.CanRun(ctx, "career"); d.Allowed {
		t.Fatal("kill switch must deny all runs")
	}

	e.DeactivateKillSwitch(ctx)
	if e.KillSwitchActive() {
		t.Fatal("kill switch should be inactive")
	}
	if d := e.CanRun(ctx, "career"); !d.Allowed {
		t.Errorf("run should be allowed after deactivation, got %q", d.Reason)
	}
	if alerts.containing("kill switch") != 2 {
		t.Errorf("expected 2 kill switch alerts, got %d", alerts.containing("kill switch"))
	}
}

func TestStoreFailure_InMemoryStateAuthoritative(t *testing.T) {
	store := newFakeStore()
	store.failing = true
	e := NewEngine(testConfig(), store, nil)
	ctx := context.Background()

	e.RecordUsage(ctx, "career", 2000, 1, "gpt-4o-mini", true)
	e.RecordUsage(ctx, "career", 3000, 1, "gpt-4o-mini", true)

	b := e.BudgetFor(ctx, "career")
	if b.TokensUsed != 5000 {
		t.Errorf("in-memory budget must survive store outage: tokens=%d, want 5000", b.TokensUsed)
	}
	if d := e.CanRun(ctx, "career"); !d.Allowed {
		t.Errorf("runs should continue during store outage, got %q", d.Reason)
	}
}

func TestCostFor_FallbackRate(t *testing.T) {
	known := CostFor("gpt-4o-mini", 1000)
	if known != 0.0006 {
		t.Errorf("gpt-4o-mini rate = %f, want 0.0006", known)
	}
	unknown := CostFor("some-new-model", 1000)
	if unknown != fallbackRatePerKTokens {
		t.Errorf("unknown model must use fallback rate, got %f", unknown)
	}
	if CostFor("llama3.2", 50_000) != 0 {
		t.Error("local models cost nothing")
	}
}
