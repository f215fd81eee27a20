// Package registry provides the tool framework for the agent kernel: static
// capability descriptors, per-agent visibility, tier gating with approval,
// and timed execution with a bounded audit log.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Elore26/assistant/internal/types"
)

// Tier controls how a tool may be invoked.
type Tier string

const (
	// TierAuto tools execute without approval.
	TierAuto Tier = "auto"
	// TierGated tools require an approval decision before executing.
	TierGated Tier = "gated"
	// TierBlocked tools never execute.
	TierBlocked Tier = "blocked"
)

// Category classifies what a tool does.
type Category string

const (
	CategoryData     Category = "data"
	CategoryAction   Category = "action"
	CategoryAnalysis Category = "analysis"
	CategoryExternal Category = "external"
)

// Parameter describes one tool parameter for validation and for the
// LLM-facing schema.
type Parameter struct {
	Name        string     `json:"name"`
	Type        string     `json:"type"` // "string", "number", "integer", "boolean", "array", "object"
	Description string     `json:"description,omitempty"`
	Required    bool       `json:"required"`
	Enum        []string   `json:"enum,omitempty"`
	Items       *Parameter `json:"items,omitempty"` // element schema when Type == "array"
}

// Definition is a static capability descriptor. Definitions are registered
// once at process start and treated as immutable afterwards.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Category    Category    `json:"category"`
	Parameters  []Parameter `json:"parameters,omitempty"`
	// AllowedAgents restricts visibility; empty means every agent.
	AllowedAgents []string `json:"allowed_agents,omitempty"`
	Tier          Tier     `json:"tier"`
}

// AllowsAgent reports whether the named agent may see and invoke this tool.
func (d Definition) AllowsAgent(agent string) bool {
	if len(d.AllowedAgents) == 0 {
		return true
	}
	for _, a := range d.AllowedAgents {
		if a == agent {
			return true
		}
	}
	return false
}

// ParametersSchema renders the parameter list as a JSON-schema object for
// the completion service's function-calling payload.
func (d Definition) ParametersSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	var required []string
	for _, p := range d.Parameters {
		properties[p.Name] = p.schema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (p Parameter) schema() map[string]any {
	s := map[string]any{"type": p.Type}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	if p.Type == "array" && p.Items != nil {
		s["items"] = p.Items.schema()
	}
	return s
}

// Executor runs a tool. Executors translate their own failures into a
// failed ToolResult; anything they panic with is recovered at the registry
// boundary.
type Executor func(ctx context.Context, args map[string]any) types.ToolResult

// ExecContext carries per-call policy into Execute.
type ExecContext struct {
	// Agent is the invoking agent's name, checked against AllowedAgents.
	Agent string
	// OnApprovalNeeded decides gated calls. When nil, gated tools are
	// denied unless AutoApproveGated is set.
	OnApprovalNeeded func(tool string, args map[string]any) bool
	// AutoApproveGated lets gated tools run without an approver. Off by
	// default; enabling it is an explicit operator decision.
	AutoApproveGated bool
}

type entry struct {
	def  Definition
	exec Executor
}

// Registry holds tool definitions and executes them.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]entry
	log    *ExecutionLog
	logger *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]entry),
		log:    NewExecutionLog(DefaultLogCapacity),
		logger: logger,
	}
}

// Register adds a tool. Re-registering a name silently replaces the
// previous definition.
func (r *Registry) Register(def Definition, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		r.logger.Debug("replacing tool registration", zap.String("tool", def.Name))
	}
	r.tools[def.Name] = entry{def: def, exec: exec}
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.def, ok
}

// ToolsForAgent returns every non-blocked definition visible to the agent,
// sorted by name. This is the schema shown to the model: agents never see
// tools they cannot use.
func (r *Registry) ToolsForAgent(agent string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, e := range r.tools {
		if e.def.Tier == TierBlocked {
			continue
		}
		if !e.def.AllowsAgent(agent) {
			continue
		}
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Log exposes the bounded execution log.
func (r *Registry) Log() *ExecutionLog {
	return r.log
}

// Execute runs a tool call under the given execution context. It never
// returns a Go error and never lets an executor panic escape: every
// failure mode is a failed ToolResult.
func (r *Registry) Execute(ctx context.Context, call types.ToolCall, ec ExecContext) types.ToolResult {
	r.mu.RLock()
	e, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		return types.Err("unknown tool: %s", call.Name)
	}
	if !e.def.AllowsAgent(ec.Agent) {
		return types.Err("tool %q is not available to agent %q", call.Name, ec.Agent)
	}
	if e.def.Tier == TierBlocked {
		return types.Err("tool %q is blocked by policy", call.Name)
	}
	if e.def.Tier == TierGated {
		if denied := r.checkApproval(call, ec); denied != nil {
			return *denied
		}
	}
	if err := validateArgs(e.def, call.Args); err != nil {
		return types.Err("invalid arguments for %q: %v", call.Name, err)
	}

	start := time.Now()
	result := r.runExecutor(ContextWithAgent(ctx, ec.Agent), e.exec, call)
	elapsed := time.Since(start)

	r.log.Append(types.ToolExecution{
		Tool:      call.Name,
		Agent:     ec.Agent,
		Args:      call.Args,
		Result:    result,
		Duration:  elapsed,
		Timestamp: start,
	})

	r.logger.Debug("tool executed",
		zap.String("tool", call.Name),
		zap.String("agent", ec.Agent),
		zap.Bool("success", result.Success),
		zap.Duration("duration", elapsed))

	return result
}

type agentKey struct{}

// ContextWithAgent attaches the calling agent's identity to the context
// handed to executors.
func ContextWithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentKey{}, agent)
}

// AgentFromContext returns the calling agent's identity, or "" when the
// call did not come through Execute.
func AgentFromContext(ctx context.Context) string {
	agent, _ := ctx.Value(agentKey{}).(string)
	return agent
}

// checkApproval returns a denial result for a gated call, or nil when the
// call may proceed. Gated tools without an approver are denied unless the
// auto-approve override is set.
func (r *Registry) checkApproval(call types.ToolCall, ec ExecContext) *types.ToolResult {
	if ec.OnApprovalNeeded != nil {
		if !ec.OnApprovalNeeded(call.Name, call.Args) {
			res := types.Err("tool %q requires approval and was not approved", call.Name)
			return &res
		}
		return nil
	}
	if ec.AutoApproveGated {
		return nil
	}
	res := types.Err("tool %q requires approval but no approver is configured", call.Name)
	return &res
}

// runExecutor invokes the executor, converting panics and nil argument
// maps at the boundary.
func (r *Registry) runExecutor(ctx context.Context, exec Executor, call types.ToolCall) (result types.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool executor panicked",
				zap.String("tool", call.Name),
				zap.Any("panic", rec))
			result = types.Err("tool %q failed: %v", call.Name, rec)
		}
	}()

	args := call.Args
	if args == nil {
		args = make(map[string]any)
	}
	return exec(ctx, args)
}

// validateArgs checks required parameters and enum membership.
func validateArgs(def Definition, args map[string]any) error {
	for _, p := range def.Parameters {
		value, present := args[p.Name]
		if p.Required && !present {
			return fmt.Errorf("missing required parameter %q", p.Name)
		}
		if present && len(p.Enum) > 0 {
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("parameter %q must be a string", p.Name)
			}
			valid := false
			for _, allowed := range p.Enum {
				if str == allowed {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("parameter %q must be one of %v", p.Name, p.Enum)
			}
		}
	}
	return nil
}
