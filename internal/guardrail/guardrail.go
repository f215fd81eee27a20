// Package guardrail enforces per-agent daily budgets, a consecutive-failure
// circuit breaker, and a global kill switch. Every check returns a
// structured decision, never an error: a denied run is policy, not failure.
package guardrail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Elore26/assistant/internal/config"
)

// Budget is the accumulated usage for one (agent, date) pair. A new row
// implicitly starts at midnight because the key includes the date.
type Budget struct {
	Agent               string
	Date                string // YYYY-MM-DD
	TokensUsed          int
	ToolCalls           int
	Runs                int
	EstimatedCost       float64
	ConsecutiveFailures int
	CircuitBroken       bool
	BrokenAt            time.Time
}

// UsageDelta is one recordUsage application. Tokens, ToolCalls, Runs and
// Cost are additive; ConsecutiveFailures, CircuitBroken and BrokenAt are
// the absolute post-state (the engine serializes their computation).
type UsageDelta struct {
	Tokens              int
	ToolCalls           int
	Runs                int
	Cost                float64
	ConsecutiveFailures int
	CircuitBroken       bool
	BrokenAt            time.Time
}

// BudgetStore persists budgets. Implementations must make ApplyUsage an
// atomic additive upsert so concurrent processes cannot lose updates.
type BudgetStore interface {
	// LoadBudget returns the stored budget, or nil when none exists yet.
	LoadBudget(ctx context.Context, agent, date string) (*Budget, error)
	// ApplyUsage adds the delta to the row (creating it if needed) and
	// returns the updated budget.
	ApplyUsage(ctx context.Context, agent, date string, d UsageDelta) (*Budget, error)
	// SetBreaker overwrites the circuit breaker state of the row.
	SetBreaker(ctx context.Context, agent, date string, broken bool, failures int) error
}

// ResetPolicy controls how an open circuit closes. The shipped policy is
// ManualReset: repeated failures demand human attention, so only an
// explicit reset closes the circuit. Alternate policies (e.g. timed
// half-open) can be substituted without touching call sites.
type ResetPolicy interface {
	// AllowReset reports whether an open circuit may be treated as closed
	// without an explicit operator reset.
	AllowReset(openedAt, now time.Time) bool
}

// ManualReset never closes the circuit on its own.
type ManualReset struct{}

// AllowReset always reports false.
func (ManualReset) AllowReset(openedAt, now time.Time) bool { return false }

// Decision is the outcome of a canRun check.
type Decision struct {
	Allowed bool
	Reason  string
}

// ToolDecision is the outcome of a canUseTool check.
type ToolDecision struct {
	Allowed       bool
	NeedsApproval bool
	Reason        string
}

// AlertFunc delivers guardrail alerts (thresholds, breaker trips, kill
// switch flips). Alerts inform; they never block.
type AlertFunc func(ctx context.Context, message string)

// Engine tracks budgets and evaluates guardrail policy. The in-memory
// state is authoritative for the process lifetime; persistence is
// best-effort and failures are logged, never propagated.
type Engine struct {
	store  BudgetStore
	logger *zap.Logger
	alert  AlertFunc
	policy ResetPolicy
	now    func() time.Time

	mu         sync.Mutex
	limits     config.GuardrailConfig
	blocked    map[string]bool
	gated      map[string]bool
	killSwitch bool
	cache      map[string]*Budget
	keyLocks   map[string]*sync.Mutex
}

// Option customizes an Engine.
type Option func(*Engine)

// WithAlertFunc wires alert delivery (typically the notifier).
func WithAlertFunc(fn AlertFunc) Option {
	return func(e *Engine) { e.alert = fn }
}

// WithResetPolicy overrides the circuit breaker reset policy.
func WithResetPolicy(p ResetPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine with the given startup configuration.
func NewEngine(cfg config.GuardrailConfig, store BudgetStore, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:      store,
		logger:     logger,
		policy:     ManualReset{},
		now:        time.Now,
		limits:     cfg,
		blocked:    toSet(cfg.BlockedTools),
		gated:      toSet(cfg.GatedTools),
		killSwitch: cfg.KillSwitch,
		cache:      make(map[string]*Budget),
		keyLocks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CanRun evaluates whether the agent may start a run. Checks apply in
// fixed priority order; the first failing check wins.
func (e *Engine) CanRun(ctx context.Context, agent string) Decision {
	date := e.today()
	unlock := e.lockKey(agent, date)
	defer unlock()

	if e.killSwitchActive() {
		return Decision{Reason: "kill switch is active: all agent runs are disabled"}
	}

	b := e.budgetLocked(ctx, agent, date)

	if b.CircuitBroken && !e.policy.AllowReset(b.BrokenAt, e.now()) {
		return Decision{Reason: fmt.Sprintf(
			"circuit breaker is open for %s after %d consecutive failures; reset required", agent, b.ConsecutiveFailures)}
	}
	limits := e.snapshotLimits()
	if b.Runs >= limits.MaxRunsPerDay {
		return Decision{Reason: fmt.Sprintf("daily run limit reached (%d/%d)", b.Runs, limits.MaxRunsPerDay)}
	}
	if b.TokensUsed >= limits.MaxTokensPerDay {
		return Decision{Reason: fmt.Sprintf("daily token budget exhausted (%d/%d)", b.TokensUsed, limits.MaxTokensPerDay)}
	}
	if b.EstimatedCost >= limits.MaxCostPerDay {
		return Decision{Reason: fmt.Sprintf("daily cost budget exhausted ($%.2f/$%.2f)", b.EstimatedCost, limits.MaxCostPerDay)}
	}

	return Decision{Allowed: true}
}

// CanUseTool evaluates the config-driven tool policy. This is a second,
// coarser gate than the registry's own per-tool tier; both must agree for
// a gated or blocked tool to be stopped.
func (e *Engine) CanUseTool(tool string) ToolDecision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.blocked[tool] {
		return ToolDecision{Reason: fmt.Sprintf("tool %q is blocked by guardrail policy", tool)}
	}
	if e.gated[tool] {
		return ToolDecision{Allowed: true, NeedsApproval: true}
	}
	return ToolDecision{Allowed: true}
}

// RecordUsage folds one finished run into the agent's daily budget:
// unconditional accumulation of tokens, tool calls, run count and
// estimated cost, plus circuit breaker bookkeeping. Persistence is
// best-effort; the in-memory row stays authoritative when the store is
// unreachable.
func (e *Engine) RecordUsage(ctx context.Context, agent string, tokensUsed, toolCalls int, model string, success bool) {
	date := e.today()
	unlock := e.lockKey(agent, date)
	defer unlock()

	b := e.budgetLocked(ctx, agent, date)
	limits := e.snapshotLimits()

	prevCost := b.EstimatedCost
	prevTokens := b.TokensUsed
	cost := CostFor(model, tokensUsed)

	b.TokensUsed += tokensUsed
	b.ToolCalls += toolCalls
	b.Runs++
	b.EstimatedCost += cost

	if success {
		b.ConsecutiveFailures = 0
	} else {
		b.ConsecutiveFailures++
		if !b.CircuitBroken && b.ConsecutiveFailures >= limits.CircuitBreakerThreshold {
			b.CircuitBroken = true
			b.BrokenAt = e.now()
			e.sendAlert(ctx, fmt.Sprintf(
				"🚨 circuit breaker tripped for %s after %d consecutive failures; runs are blocked until reset",
				agent, b.ConsecutiveFailures))
		}
	}

	if _, err := e.store.ApplyUsage(ctx, agent, date, UsageDelta{
		Tokens:              tokensUsed,
		ToolCalls:           toolCalls,
		Runs:                1,
		Cost:                cost,
		ConsecutiveFailures: b.ConsecutiveFailures,
		CircuitBroken:       b.CircuitBroken,
		BrokenAt:            b.BrokenAt,
	}); err != nil {
		e.logger.Warn("budget persistence failed, in-memory state remains authoritative",
			zap.String("agent", agent),
			zap.Error(err))
	}

	e.checkThreshold(ctx, agent,
		prevCost, b.EstimatedCost, 0.8*limits.MaxCostPerDay,
		fmt.Sprintf("⚠️ %s has used $%.2f of its $%.2f daily cost budget", agent, b.EstimatedCost, limits.MaxCostPerDay))
	e.checkThreshold(ctx, agent,
		float64(prevTokens), float64(b.TokensUsed), 0.9*float64(limits.MaxTokensPerDay),
		fmt.Sprintf("⚠️ %s has used %d of its %d daily tokens", agent, b.TokensUsed, limits.MaxTokensPerDay))
}

// ResetCircuitBreaker closes the circuit for today's budget. This is the
// only way an open circuit closes under the ManualReset policy.
func (e *Engine) ResetCircuitBreaker(ctx context.Context, agent string) {
	date := e.today()
	unlock := e.lockKey(agent, date)
	defer unlock()

	b := e.budgetLocked(ctx, agent, date)
	b.CircuitBroken = false
	b.ConsecutiveFailures = 0
	b.BrokenAt = time.Time{}

	if err := e.store.SetBreaker(ctx, agent, date, false, 0); err != nil {
		e.logger.Warn("breaker reset persistence failed",
			zap.String("agent", agent),
			zap.Error(err))
	}
	e.logger.Info("circuit breaker reset", zap.String("agent", agent))
}

// ActivateKillSwitch disables every agent's next canRun immediately. It
// does not abort runs already in flight.
func (e *Engine) ActivateKillSwitch(ctx context.Context) {
	e.mu.Lock()
	e.killSwitch = true
	e.mu.Unlock()
	e.logger.Warn("kill switch activated")
	e.sendAlert(ctx, "🛑 kill switch activated: all agent runs are disabled")
}

// DeactivateKillSwitch re-enables agent runs.
func (e *Engine) DeactivateKillSwitch(ctx context.Context) {
	e.mu.Lock()
	e.killSwitch = false
	e.mu.Unlock()
	e.logger.Info("kill switch deactivated")
	e.sendAlert(ctx, "✅ kill switch deactivated: agent runs are enabled again")
}

// KillSwitchActive reports the current kill switch state.
func (e *Engine) KillSwitchActive() bool {
	return e.killSwitchActive()
}

// BudgetFor returns a copy of the agent's budget for today.
func (e *Engine) BudgetFor(ctx context.Context, agent string) Budget {
	date := e.today()
	unlock := e.lockKey(agent, date)
	defer unlock()
	return *e.budgetLocked(ctx, agent, date)
}

// Limits returns the configured ceilings.
func (e *Engine) Limits() config.GuardrailConfig {
	return e.snapshotLimits()
}

// budgetLocked returns the cached budget, lazily loading it from the
// store on first access per day. Callers must hold the key lock.
func (e *Engine) budgetLocked(ctx context.Context, agent, date string) *Budget {
	key := agent + "|" + date

	e.mu.Lock()
	if b, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return b
	}
	e.mu.Unlock()

	b, err := e.store.LoadBudget(ctx, agent, date)
	if err != nil {
		e.logger.Warn("budget load failed, starting from zero",
			zap.String("agent", agent),
			zap.Error(err))
	}
	if b == nil {
		b = &Budget{Agent: agent, Date: date}
	}

	e.mu.Lock()
	e.cache[key] = b
	e.mu.Unlock()
	return b
}

// lockKey serializes recordUsage and breaker mutations per (agent, date)
// so concurrent runs of different agents do not contend on one lock.
func (e *Engine) lockKey(agent, date string) func() {
	key := agent + "|" + date
	e.mu.Lock()
	l, ok := e.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		e.keyLocks[key] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (e *Engine) checkThreshold(ctx context.Context, agent string, prev, curr, threshold float64, message string) {
	if threshold <= 0 {
		return
	}
	if prev < threshold && curr >= threshold {
		e.sendAlert(ctx, message)
	}
}

func (e *Engine) sendAlert(ctx context.Context, message string) {
	if e.alert == nil {
		return
	}
	e.alert(ctx, message)
}

func (e *Engine) killSwitchActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killSwitch
}

func (e *Engine) snapshotLimits() config.GuardrailConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limits
}

func (e *Engine) today() string {
	return e.now().Format("2006-01-02")
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
