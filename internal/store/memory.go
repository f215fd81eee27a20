package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Elore26/assistant/internal/guardrail"
	"github.com/Elore26/assistant/internal/signal"
	"github.com/Elore26/assistant/internal/types"
)

// Memory is a process-local Store. Nothing survives a restart.
type Memory struct {
	mu      sync.Mutex
	budgets map[string]*guardrail.Budget
	signals []signal.Signal
	runs    []types.AgentResult
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{budgets: make(map[string]*guardrail.Budget)}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func budgetKey(agent, date string) string { return agent + "|" + date }

// LoadBudget implements guardrail.BudgetStore.
func (m *Memory) LoadBudget(ctx context.Context, agent, date string) (*guardrail.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.budgets[budgetKey(agent, date)]
	if !ok {
		return nil, nil
	}
	clone := *b
	return &clone, nil
}

// ApplyUsage implements guardrail.BudgetStore.
func (m *Memory) ApplyUsage(ctx context.Context, agent, date string, d guardrail.UsageDelta) (*guardrail.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := budgetKey(agent, date)
	b, ok := m.budgets[key]
	if !ok {
		b = &guardrail.Budget{Agent: agent, Date: date}
		m.budgets[key] = b
	}
	b.TokensUsed += d.Tokens
	b.ToolCalls += d.ToolCalls
	b.Runs += d.Runs
	b.EstimatedCost += d.Cost
	b.ConsecutiveFailures = d.ConsecutiveFailures
	b.CircuitBroken = d.CircuitBroken
	b.BrokenAt = d.BrokenAt
	clone := *b
	return &clone, nil
}

// SetBreaker implements guardrail.BudgetStore.
func (m *Memory) SetBreaker(ctx context.Context, agent, date string, broken bool, failures int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := budgetKey(agent, date)
	b, ok := m.budgets[key]
	if !ok {
		b = &guardrail.Budget{Agent: agent, Date: date}
		m.budgets[key] = b
	}
	b.CircuitBroken = broken
	b.ConsecutiveFailures = failures
	if !broken {
		b.BrokenAt = time.Time{}
	}
	return nil
}

// InsertSignal implements signal.SignalStore.
func (m *Memory) InsertSignal(ctx context.Context, s *signal.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, *s)
	return nil
}

// QuerySignals implements signal.SignalStore. Results come back newest
// first, matching the relational backend.
func (m *Memory) QuerySignals(ctx context.Context, q signal.Query) ([]signal.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []signal.Signal
	for _, s := range m.signals {
		if s.Target != "" && s.Target != q.Agent {
			continue
		}
		if s.CreatedAt.Before(q.Since) {
			continue
		}
		if s.Expired(q.Now) {
			continue
		}
		if !q.IncludeConsumed && s.Consumed {
			continue
		}
		if q.Source != "" && s.Source != q.Source {
			continue
		}
		if len(q.Types) > 0 && !containsString(q.Types, s.Type) {
			continue
		}
		if q.MinPriority > 0 && s.Priority > q.MinPriority {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// MarkConsumed implements signal.SignalStore.
func (m *Memory) MarkConsumed(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		for i := range m.signals {
			if m.signals[i].ID == id {
				m.signals[i].Consumed = true
			}
		}
	}
	return nil
}

// InsertRun implements react.RunStore.
func (m *Memory) InsertRun(ctx context.Context, r types.AgentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

// Runs returns the recorded audit rows (status displays and tests).
func (m *Memory) Runs() []types.AgentResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.AgentResult, len(m.runs))
	copy(out, m.runs)
	return out
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
