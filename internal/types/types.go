// Package types defines the shared data structures of the agent kernel.
package types

import (
	"fmt"
	"time"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult is the outcome of a tool execution. Executors never panic or
// return Go errors across the registry boundary; failures travel inside
// this value. Construct results with Ok and Err only.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ok builds a successful result carrying data.
func Ok(data any) ToolResult {
	return ToolResult{Success: true, Data: data}
}

// Err builds a failed result with a formatted reason.
func Err(format string, args ...any) ToolResult {
	return ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// ToolExecution is one audit entry in the registry's execution log.
type ToolExecution struct {
	Tool      string         `json:"tool"`
	Agent     string         `json:"agent"`
	Args      map[string]any `json:"args"`
	Result    ToolResult     `json:"result"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
}

// Message is a conversation message exchanged with the completion service.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// LoopTrace records what happened in one think/act/observe iteration.
type LoopTrace struct {
	LoopNumber  int        `json:"loop_number"`
	Reasoning   string     `json:"reasoning,omitempty"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	Observation string     `json:"observation"`
}

// AgentResult aggregates a finished run. TotalToolCalls always equals the
// sum of len(ToolCalls) across Trace entries.
type AgentResult struct {
	Agent              string        `json:"agent"`
	Task               string        `json:"task"`
	Success            bool          `json:"success"`
	Output             string        `json:"output"`
	Trace              []LoopTrace   `json:"trace"`
	TotalToolCalls     int           `json:"total_tool_calls"`
	TotalLoops         int           `json:"total_loops"`
	Duration           time.Duration `json:"duration"`
	TokensUsed         int           `json:"tokens_used"`
	StoppedByGuardrail bool          `json:"stopped_by_guardrail"`
	GuardrailReason    string        `json:"guardrail_reason,omitempty"`
}

// AgentState represents the current phase of a running agent.
type AgentState int

const (
	StateIdle AgentState = iota
	StateChecking
	StateThinking
	StateActing
	StateObserving
	StateReporting
	StateStopped
	StateError
)

// String returns a human-readable state name.
func (s AgentState) String() string {
	names := [...]string{
		"Idle",
		"Checking guardrails",
		"Thinking",
		"Executing tools",
		"Observing",
		"Reporting",
		"Stopped",
		"Error",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// AgentEvent is emitted during a run to update the live console.
type AgentEvent struct {
	State      AgentState
	Loop       int
	Message    string
	ToolCall   *ToolCall
	ToolResult *ToolResult
	Trace      *LoopTrace
	Result     *AgentResult
	Error      error
}
