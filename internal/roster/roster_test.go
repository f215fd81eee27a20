package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleManifest = `
agents:
  - name: career
    role: a career development agent
    goal: surface relevant openings and skill gaps
    model: gpt-4o
    tools: [signal_peek, http_fetch, notify_user]
    schedule: "daily 08:00"
    budgets:
      max_loops: 6
      max_tool_calls: 10
  - name: finance
    role: a personal finance agent
    goal: watch spending and flag anomalies
    tools: [signal_peek, budget_status]
`

func TestParse_Valid(t *testing.T) {
	r, err := Parse([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := r.Names(); len(got) != 2 || got[0] != "career" || got[1] != "finance" {
		t.Errorf("Names = %v", got)
	}

	career, ok := r.Get("career")
	if !ok {
		t.Fatal("career not found")
	}
	if career.Model != "gpt-4o" || career.Schedule != "daily 08:00" {
		t.Errorf("career = %+v", career)
	}
	if career.Budgets.MaxLoops != 6 || career.Budgets.MaxToolCalls != 10 {
		t.Errorf("career budgets = %+v", career.Budgets)
	}

	finance, _ := r.Get("finance")
	if finance.Model != "" || finance.Budgets.MaxLoops != 0 {
		t.Errorf("finance should inherit defaults: %+v", finance)
	}

	if _, ok := r.Get("health"); ok {
		t.Error("unknown agent should not resolve")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty manifest", "agents: []", "no agents"},
		{"missing name", "agents:\n  - role: something", "has no name"},
		{"missing role", "agents:\n  - name: career", "has no role"},
		{
			"duplicate name",
			"agents:\n  - {name: career, role: r}\n  - {name: career, role: r}",
			"duplicate agent name",
		},
		{
			"negative budget",
			"agents:\n  - {name: career, role: r, budgets: {max_loops: -1}}",
			"negative budget",
		},
		{"not yaml", "agents: [::", "parse roster"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(r.Agents()) != 2 {
		t.Errorf("got %d agents", len(r.Agents()))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestAgent_AllowsTool(t *testing.T) {
	restricted := Agent{Name: "career", Tools: []string{"signal_peek", "notify_user"}}
	open := Agent{Name: "finance"}

	tests := []struct {
		name  string
		agent Agent
		tool  string
		want  bool
	}{
		{"listed tool", restricted, "signal_peek", true},
		{"off-list tool", restricted, "signal_dismiss", false},
		{"empty list allows everything", open, "signal_dismiss", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.agent.AllowsTool(tt.tool); got != tt.want {
				t.Errorf("AllowsTool(%q) = %v, want %v", tt.tool, got, tt.want)
			}
		})
	}
}
