package ui

import (
	"strings"
	"testing"

	"github.com/Elore26/assistant/internal/types"
)

func TestNewRunModel(t *testing.T) {
	m := NewRunModel("career", "daily check", nil)
	if m.agent != "career" || m.task != "daily check" {
		t.Errorf("model = %+v", m)
	}
	if m.state != types.StateIdle {
		t.Errorf("initial state = %v", m.state)
	}
	if m.ready {
		t.Error("model should not be ready before the first resize")
	}
}

func TestHandleEvent_BuildsFeed(t *testing.T) {
	m := NewRunModel("career", "daily check", nil)

	m = m.handleEvent(types.AgentEvent{State: types.StateThinking, Loop: 1})
	m = m.handleEvent(types.AgentEvent{
		State:      types.StateActing,
		Loop:       1,
		ToolCall:   &types.ToolCall{Name: "signal_peek", Args: map[string]any{"limit": 5}},
		ToolResult: &types.ToolResult{Success: true},
	})
	m = m.handleEvent(types.AgentEvent{
		State: types.StateObserving,
		Loop:  1,
		Trace: &types.LoopTrace{LoopNumber: 1, Observation: "executed 1 tool call(s): 1 ok, 0 failed"},
	})

	if len(m.entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(m.entries))
	}
	if m.entries[0].kind != "loop" || m.entries[1].kind != "tool" || m.entries[2].kind != "observation" {
		t.Errorf("entry kinds = %v %v %v", m.entries[0].kind, m.entries[1].kind, m.entries[2].kind)
	}
	if m.entries[1].toolName != "signal_peek" || !m.entries[1].toolSuccess {
		t.Errorf("tool entry = %+v", m.entries[1])
	}
	if m.state != types.StateObserving || m.loop != 1 {
		t.Errorf("state = %v loop = %d", m.state, m.loop)
	}
}

func TestHandleEvent_StoresResult(t *testing.T) {
	m := NewRunModel("career", "daily check", nil)
	m = m.handleEvent(types.AgentEvent{
		State:  types.StateStopped,
		Result: &types.AgentResult{Success: true, Output: "all good", TotalLoops: 2},
	})
	if m.result == nil || m.result.Output != "all good" {
		t.Errorf("result = %+v", m.result)
	}
}

func TestRenderResult(t *testing.T) {
	m := NewRunModel("career", "daily check", nil)

	view := m.renderResult(types.AgentResult{
		Success: true, Output: "two openings found", TotalLoops: 3, TotalToolCalls: 4, TokensUsed: 900,
	})
	for _, want := range []string{"Completed", "two openings found", "3 loop(s)", "4 tool call(s)"} {
		if !strings.Contains(view, want) {
			t.Errorf("result view missing %q", want)
		}
	}

	view = m.renderResult(types.AgentResult{
		StoppedByGuardrail: true,
		GuardrailReason:    "max loops reached (8)",
		Output:             "partial summary",
	})
	if !strings.Contains(view, "Stopped by guardrail") || !strings.Contains(view, "max loops reached") {
		t.Errorf("guardrail view = %q", view)
	}
}

func TestRenderTool_FailureShowsError(t *testing.T) {
	m := NewRunModel("career", "daily check", nil)
	view := m.renderTool(entry{
		kind:      "tool",
		toolName:  "http_fetch",
		toolArgs:  map[string]any{"url": "https://example.com"},
		toolError: "fetch failed: timeout",
	})
	if !strings.Contains(view, "http_fetch") || !strings.Contains(view, "fetch failed") {
		t.Errorf("tool view = %q", view)
	}
}
