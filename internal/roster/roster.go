// Package roster loads the agent manifest: who the agents are, what they
// may call, and how their run budgets deviate from the defaults.
package roster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BudgetOverrides narrow the global run budgets for one agent. Zero means
// inherit the configured default.
type BudgetOverrides struct {
	MaxLoops     int `yaml:"max_loops"`
	MaxToolCalls int `yaml:"max_tool_calls"`
}

// Agent is one roster entry. Tools lists the registry names this agent is
// allowed to call; an empty list means every non-blocked tool.
type Agent struct {
	Name     string          `yaml:"name"`
	Role     string          `yaml:"role"`
	Goal     string          `yaml:"goal"`
	Model    string          `yaml:"model"`
	Tools    []string        `yaml:"tools"`
	Schedule string          `yaml:"schedule"`
	Budgets  BudgetOverrides `yaml:"budgets"`
}

type manifest struct {
	Agents []Agent `yaml:"agents"`
}

// Roster holds the loaded manifest in file order.
type Roster struct {
	agents []Agent
	byName map[string]int
}

// Load reads and validates an agents.yaml manifest.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw manifest bytes.
func Parse(data []byte) (*Roster, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if len(m.Agents) == 0 {
		return nil, fmt.Errorf("roster defines no agents")
	}

	r := &Roster{agents: m.Agents, byName: make(map[string]int, len(m.Agents))}
	for i, a := range m.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agent %d has no name", i)
		}
		if _, dup := r.byName[a.Name]; dup {
			return nil, fmt.Errorf("duplicate agent name %q", a.Name)
		}
		if a.Role == "" {
			return nil, fmt.Errorf("agent %q has no role", a.Name)
		}
		if a.Budgets.MaxLoops < 0 || a.Budgets.MaxToolCalls < 0 {
			return nil, fmt.Errorf("agent %q has negative budget overrides", a.Name)
		}
		r.byName[a.Name] = i
	}
	return r, nil
}

// AllowsTool reports whether the agent's manifest permits the named tool.
// An empty tool list permits everything.
func (a Agent) AllowsTool(name string) bool {
	if len(a.Tools) == 0 {
		return true
	}
	for _, t := range a.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// Get returns the named agent.
func (r *Roster) Get(name string) (Agent, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Agent{}, false
	}
	return r.agents[i], true
}

// Agents returns all entries in file order.
func (r *Roster) Agents() []Agent {
	out := make([]Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// Names returns agent names in file order.
func (r *Roster) Names() []string {
	names := make([]string, len(r.agents))
	for i, a := range r.agents {
		names[i] = a.Name
	}
	return names
}
