// Package react runs the think/act/observe loop that drives one agent
// run. The loop is a plain bounded for loop: it ends on a natural answer,
// on tool-call budget exhaustion, or on the loop cap, never by exception.
package react

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Elore26/assistant/internal/llm"
	"github.com/Elore26/assistant/internal/registry"
	"github.com/Elore26/assistant/internal/types"
)

// RunStore persists finished runs as audit rows.
type RunStore interface {
	InsertRun(ctx context.Context, result types.AgentResult) error
}

// Options configure a single run.
type Options struct {
	Agent        string
	Task         string
	SystemPrompt string
	Model        string
	Temperature  float32

	// MaxLoops bounds iterations; the last one is a forced summarization
	// with tools disabled. MaxToolCalls is cumulative across the run.
	// MaxTokensPerCall caps each individual completion call.
	MaxLoops         int
	MaxToolCalls     int
	MaxTokensPerCall int

	// AllowedTools restricts the run to the named tools on top of the
	// registry's own visibility rules. Empty means no extra restriction.
	// Off-list tools are not offered to the model and calls to them are
	// denied.
	AllowedTools []string

	// OnBeforeToolCall vetoes individual tool calls (guardrail wiring). A
	// denial becomes a synthetic failed tool result in the conversation;
	// the run continues.
	OnBeforeToolCall func(tool string, args map[string]any) (allowed bool, reason string)

	// OnApprovalNeeded and AutoApproveGated pass through to the registry
	// for gated tools.
	OnApprovalNeeded func(tool string, args map[string]any) bool
	AutoApproveGated bool

	// OnLoopComplete fires after each observe phase (live logging).
	OnLoopComplete func(trace types.LoopTrace)

	// Events, when set, receives state transitions for a live console.
	// Sends never block: when the channel is full or unread the event is
	// dropped, so a console that stopped reading cannot stall the run.
	Events chan<- types.AgentEvent
}

// Loop executes runs. It does not record usage into the guardrail engine;
// the caller owns cost attribution.
type Loop struct {
	llm      llm.Client
	registry *registry.Registry
	runs     RunStore
	logger   *zap.Logger
}

// New creates a Loop. runs may be nil when audit persistence is off.
func New(client llm.Client, reg *registry.Registry, runs RunStore, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{llm: client, registry: reg, runs: runs, logger: logger}
}

// Run executes the loop to completion and returns the aggregate result.
// It never returns an error; failures are folded into the result.
func (l *Loop) Run(ctx context.Context, opts Options) types.AgentResult {
	start := time.Now()
	result := types.AgentResult{Agent: opts.Agent, Task: opts.Task}

	maxLoops := opts.MaxLoops
	if maxLoops <= 0 {
		maxLoops = 1
	}

	tools := l.toolSpecs(opts)
	messages := []types.Message{
		{Role: "system", Content: opts.SystemPrompt},
		{Role: "user", Content: opts.Task},
	}

	for loop := 1; loop <= maxLoops; loop++ {
		result.TotalLoops = loop
		finalLoop := loop == maxLoops

		callTools := tools
		if finalLoop {
			// Forced summarization: no more tools, wrap up what we have.
			callTools = nil
			messages = append(messages, types.Message{Role: "user", Content: llm.FinalSummaryPrompt})
		}

		l.emit(opts, types.AgentEvent{State: types.StateThinking, Loop: loop})
		resp, err := l.llm.Chat(ctx, llm.Request{
			Model:       opts.Model,
			Messages:    messages,
			Tools:       callTools,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokensPerCall,
		})
		if err != nil {
			l.logger.Warn("completion call failed, ending run",
				zap.String("agent", opts.Agent),
				zap.Int("loop", loop),
				zap.Error(err))
			result.Output = fmt.Sprintf("run aborted: completion service unavailable (%v)", err)
			return l.finish(ctx, opts, result, start)
		}
		result.TokensUsed += resp.TokensUsed

		if finalLoop || len(resp.ToolCalls) == 0 {
			result.Output = resp.Content
			result.Success = true
			if finalLoop && len(tools) > 0 {
				result.StoppedByGuardrail = true
				result.GuardrailReason = fmt.Sprintf("max loops reached (%d)", maxLoops)
			}
			result.Trace = append(result.Trace, types.LoopTrace{
				LoopNumber:  loop,
				Reasoning:   resp.Content,
				Observation: "final answer produced",
			})
			return l.finish(ctx, opts, result, start)
		}

		if opts.MaxToolCalls > 0 && result.TotalToolCalls+len(resp.ToolCalls) > opts.MaxToolCalls {
			result.StoppedByGuardrail = true
			result.GuardrailReason = fmt.Sprintf(
				"tool call budget exhausted: %d requested on top of %d used, limit %d",
				len(resp.ToolCalls), result.TotalToolCalls, opts.MaxToolCalls)
			result.Output = resp.Content
			result.Trace = append(result.Trace, types.LoopTrace{
				LoopNumber:  loop,
				Reasoning:   resp.Content,
				Observation: "stopped before executing requested tools: " + result.GuardrailReason,
			})
			return l.finish(ctx, opts, result, start)
		}

		messages = append(messages, types.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		l.emit(opts, types.AgentEvent{State: types.StateActing, Loop: loop})
		succeeded, failed := 0, 0
		for _, call := range resp.ToolCalls {
			toolResult := l.dispatch(ctx, call, opts)
			if toolResult.Success {
				succeeded++
			} else {
				failed++
			}
			l.emit(opts, types.AgentEvent{State: types.StateActing, Loop: loop, ToolCall: &call, ToolResult: &toolResult})
			messages = append(messages, types.Message{
				Role:       "tool",
				Content:    marshalResult(toolResult),
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
		result.TotalToolCalls += len(resp.ToolCalls)

		trace := types.LoopTrace{
			LoopNumber: loop,
			Reasoning:  resp.Content,
			ToolCalls:  resp.ToolCalls,
			Observation: fmt.Sprintf("executed %d tool call(s): %d ok, %d failed",
				len(resp.ToolCalls), succeeded, failed),
		}
		result.Trace = append(result.Trace, trace)
		l.emit(opts, types.AgentEvent{State: types.StateObserving, Loop: loop, Trace: &trace})
		if opts.OnLoopComplete != nil {
			opts.OnLoopComplete(trace)
		}
	}

	// Unreachable: the final iteration always returns above.
	return l.finish(ctx, opts, result, start)
}

// dispatch routes one tool call through the allowlist, the veto hook and
// the registry.
func (l *Loop) dispatch(ctx context.Context, call types.ToolCall, opts Options) types.ToolResult {
	if !toolAllowed(opts.AllowedTools, call.Name) {
		l.logger.Info("tool call outside the agent's allowlist",
			zap.String("agent", opts.Agent),
			zap.String("tool", call.Name))
		return types.Err("tool %q is not in this agent's tool list", call.Name)
	}
	if opts.OnBeforeToolCall != nil {
		if allowed, reason := opts.OnBeforeToolCall(call.Name, call.Args); !allowed {
			if reason == "" {
				reason = "denied by guardrail policy"
			}
			l.logger.Info("tool call vetoed",
				zap.String("agent", opts.Agent),
				zap.String("tool", call.Name),
				zap.String("reason", reason))
			return types.Err("%s", reason)
		}
	}
	return l.registry.Execute(ctx, call, registry.ExecContext{
		Agent:            opts.Agent,
		OnApprovalNeeded: opts.OnApprovalNeeded,
		AutoApproveGated: opts.AutoApproveGated,
	})
}

func (l *Loop) finish(ctx context.Context, opts Options, result types.AgentResult, start time.Time) types.AgentResult {
	result.Duration = time.Since(start)

	if l.runs != nil {
		if err := l.runs.InsertRun(ctx, result); err != nil {
			l.logger.Warn("run audit persistence failed",
				zap.String("agent", opts.Agent),
				zap.Error(err))
		}
	}

	l.emit(opts, types.AgentEvent{State: types.StateStopped, Loop: result.TotalLoops, Result: &result})
	l.logger.Info("run finished",
		zap.String("agent", opts.Agent),
		zap.Bool("success", result.Success),
		zap.Int("loops", result.TotalLoops),
		zap.Int("tool_calls", result.TotalToolCalls),
		zap.Int("tokens", result.TokensUsed),
		zap.Bool("stopped_by_guardrail", result.StoppedByGuardrail),
		zap.Duration("duration", result.Duration))
	return result
}

func (l *Loop) toolSpecs(opts Options) []llm.ToolSpec {
	defs := l.registry.ToolsForAgent(opts.Agent)
	specs := make([]llm.ToolSpec, 0, len(defs))
	for _, def := range defs {
		if !toolAllowed(opts.AllowedTools, def.Name) {
			continue
		}
		specs = append(specs, llm.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.ParametersSchema(),
		})
	}
	return specs
}

func (l *Loop) emit(opts Options, ev types.AgentEvent) {
	if opts.Events == nil {
		return
	}
	select {
	case opts.Events <- ev:
	default:
	}
}

func toolAllowed(allowed []string, name string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, t := range allowed {
		if t == name {
			return true
		}
	}
	return false
}

func marshalResult(r types.ToolResult) string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"unserializable result: %v"}`, err)
	}
	return string(data)
}
