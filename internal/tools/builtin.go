// Package tools registers the builtin kernel tools: signal bus access,
// budget visibility, user notification and plain HTTP fetch. Domain tools
// (calendar, job boards, banking) register themselves the same way.
package tools

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Elore26/assistant/internal/guardrail"
	"github.com/Elore26/assistant/internal/httpx"
	"github.com/Elore26/assistant/internal/notify"
	"github.com/Elore26/assistant/internal/registry"
	"github.com/Elore26/assistant/internal/signal"
	"github.com/Elore26/assistant/internal/types"
)

// Deps are the collaborators the builtins close over.
type Deps struct {
	Signals  signal.SignalStore
	Guard    *guardrail.Engine
	Notifier notify.Notifier
	HTTP     *httpx.Client
	Logger   *zap.Logger
}

// RegisterBuiltins wires the builtin tools into the registry.
func RegisterBuiltins(reg *registry.Registry, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.HTTP == nil {
		deps.HTTP = httpx.New(20*time.Second, deps.Logger)
	}

	registerSignalEmit(reg, deps)
	registerSignalPeek(reg, deps)
	registerSignalDismiss(reg, deps)
	registerBudgetStatus(reg, deps)
	registerNotifyUser(reg, deps)
	registerHTTPFetch(reg, deps)
}

// bus builds a signal bus bound to the agent executing the current call.
func (d Deps) bus(ctx context.Context) *signal.Bus {
	return signal.NewBus(registry.AgentFromContext(ctx), d.Signals, d.Logger)
}

func registerSignalEmit(reg *registry.Registry, deps Deps) {
	reg.Register(registry.Definition{
		Name:        "signal_emit",
		Description: "Leave a signal for another agent (or broadcast to all). Use it to hand off findings that some other agent should act on.",
		Category:    registry.CategoryAction,
		Tier:        registry.TierAuto,
		Parameters: []registry.Parameter{
			{Name: "signal_type", Type: "string", Description: "Short type tag, e.g. skill_gap or spending_alert", Required: true},
			{Name: "message", Type: "string", Description: "Human-readable summary", Required: true},
			{Name: "target_agent", Type: "string", Description: "Receiving agent name; omit to broadcast"},
			{Name: "priority", Type: "integer", Description: "1=critical, 2=warning, 3=info"},
			{Name: "ttl_hours", Type: "integer", Description: "Hours until the signal expires (default 24)"},
			{Name: "payload", Type: "object", Description: "Structured data for the receiver"},
		},
	}, func(ctx context.Context, args map[string]any) types.ToolResult {
		id := deps.bus(ctx).Emit(ctx,
			stringArg(args, "signal_type"),
			stringArg(args, "message"),
			mapArg(args, "payload"),
			signal.EmitOptions{
				Target:   stringArg(args, "target_agent"),
				Priority: intArg(args, "priority"),
				TTL:      time.Duration(intArg(args, "ttl_hours")) * time.Hour,
			})
		if id == "" {
			return types.Err("signal could not be stored")
		}
		return types.Ok(map[string]any{"id": id})
	})
}

func registerSignalPeek(reg *registry.Registry, deps Deps) {
	reg.Register(registry.Definition{
		Name:        "signal_peek",
		Description: "Read signals addressed to you (or broadcast) without consuming them.",
		Category:    registry.CategoryData,
		Tier:        registry.TierAuto,
		Parameters: []registry.Parameter{
			{Name: "types", Type: "array", Description: "Signal types to include; omit for all", Items: &registry.Parameter{Type: "string"}},
			{Name: "source_agent", Type: "string", Description: "Only signals from this agent"},
			{Name: "hours_back", Type: "integer", Description: "Lookback window in hours (default 24)"},
			{Name: "min_priority", Type: "integer", Description: "Only signals at this priority or more urgent"},
			{Name: "limit", Type: "integer", Description: "Maximum number of signals"},
			{Name: "consume", Type: "boolean", Description: "Mark the returned signals consumed so they stop resurfacing"},
		},
	}, func(ctx context.Context, args map[string]any) types.ToolResult {
		bus := deps.bus(ctx)
		var signals []signal.Signal
		if boolArg(args, "consume") {
			signals = bus.Consume(ctx, signal.ConsumeOptions{
				Types:        stringsArg(args, "types"),
				Limit:        intArg(args, "limit"),
				MarkConsumed: true,
			})
		} else {
			signals = bus.Peek(ctx, signal.PeekOptions{
				Types:       stringsArg(args, "types"),
				Source:      stringArg(args, "source_agent"),
				HoursBack:   intArg(args, "hours_back"),
				MinPriority: intArg(args, "min_priority"),
				Limit:       intArg(args, "limit"),
			})
		}

		out := make([]map[string]any, 0, len(signals))
		for _, s := range signals {
			out = append(out, map[string]any{
				"id":         s.ID,
				"type":       s.Type,
				"source":     s.Source,
				"message":    s.Message,
				"payload":    s.Payload,
				"priority":   s.Priority,
				"created_at": s.CreatedAt.Format(time.RFC3339),
			})
		}
		return types.Ok(map[string]any{"count": len(out), "signals": out})
	})
}

func registerSignalDismiss(reg *registry.Registry, deps Deps) {
	reg.Register(registry.Definition{
		Name:        "signal_dismiss",
		Description: "Dismiss one signal you have fully acted on so it stops resurfacing.",
		Category:    registry.CategoryAction,
		Tier:        registry.TierAuto,
		Parameters: []registry.Parameter{
			{Name: "id", Type: "string", Description: "Signal id from signal_peek", Required: true},
		},
	}, func(ctx context.Context, args map[string]any) types.ToolResult {
		id := stringArg(args, "id")
		if !deps.bus(ctx).Dismiss(ctx, id) {
			return types.Err("signal %s could not be dismissed", id)
		}
		return types.Ok("dismissed")
	})
}

func registerBudgetStatus(reg *registry.Registry, deps Deps) {
	reg.Register(registry.Definition{
		Name:        "budget_status",
		Description: "Check your remaining daily budget: tokens, runs, estimated cost and circuit breaker state.",
		Category:    registry.CategoryData,
		Tier:        registry.TierAuto,
	}, func(ctx context.Context, args map[string]any) types.ToolResult {
		agent := registry.AgentFromContext(ctx)
		b := deps.Guard.BudgetFor(ctx, agent)
		limits := deps.Guard.Limits()
		return types.Ok(map[string]any{
			"date":             b.Date,
			"tokens_used":      b.TokensUsed,
			"tokens_limit":     limits.MaxTokensPerDay,
			"runs":             b.Runs,
			"runs_limit":       limits.MaxRunsPerDay,
			"estimated_cost":   b.EstimatedCost,
			"cost_limit":       limits.MaxCostPerDay,
			"circuit_broken":   b.CircuitBroken,
			"consecutive_fail": b.ConsecutiveFailures,
		})
	})
}

func registerNotifyUser(reg *registry.Registry, deps Deps) {
	reg.Register(registry.Definition{
		Name:        "notify_user",
		Description: "Send a message straight to the user's notification channel. Use sparingly, for things that need attention now.",
		Category:    registry.CategoryAction,
		Tier:        registry.TierAuto,
		Parameters: []registry.Parameter{
			{Name: "message", Type: "string", Description: "Message text, short markdown allowed", Required: true},
		},
	}, func(ctx context.Context, args map[string]any) types.ToolResult {
		if err := deps.Notifier.Notify(ctx, stringArg(args, "message")); err != nil {
			return types.Err("notification failed: %v", err)
		}
		return types.Ok("sent")
	})
}

func registerHTTPFetch(reg *registry.Registry, deps Deps) {
	reg.Register(registry.Definition{
		Name:        "http_fetch",
		Description: "Fetch a URL over HTTP GET and return the raw body. For public read-only endpoints only.",
		Category:    registry.CategoryExternal,
		Tier:        registry.TierAuto,
		Parameters: []registry.Parameter{
			{Name: "url", Type: "string", Description: "Absolute http(s) URL", Required: true},
		},
	}, func(ctx context.Context, args map[string]any) types.ToolResult {
		body, err := deps.HTTP.Get(ctx, stringArg(args, "url"), nil)
		if err != nil {
			return types.Err("fetch failed: %v", err)
		}
		const maxToolBody = 64 * 1024
		if len(body) > maxToolBody {
			body = body[:maxToolBody]
		}
		return types.Ok(string(body))
	})
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg tolerates JSON numbers, which decode as float64.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func mapArg(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}

func stringsArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
